package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SlotCount is the number of generic custom property slots per kind.
const SlotCount = 10

// CustomSlots holds the generic custom property values of an incident.
// Slots are addressed numerically (0-based); the external names
// TEXT_01..TEXT_10 and LIST_01..LIST_10 map onto them via ParseSlot.
type CustomSlots struct {
	Text [SlotCount]string
	List [SlotCount]*int
}

// Slot addresses one custom property slot.
type Slot struct {
	Kind  CustomPropertyType
	Index int
}

// Name returns the external slot name, e.g. "LIST_04".
func (s Slot) Name() string {
	prefix := "TEXT"
	if s.Kind == CustomPropertyList {
		prefix = "LIST"
	}
	return fmt.Sprintf("%s_%02d", prefix, s.Index+1)
}

// ParseSlot converts an external slot name into a Slot.
func ParseSlot(name string) (Slot, bool) {
	prefix, num, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(name)), "_")
	if !ok || len(num) != 2 {
		return Slot{}, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > SlotCount {
		return Slot{}, false
	}
	switch prefix {
	case "TEXT":
		return Slot{Kind: CustomPropertyText, Index: n - 1}, true
	case "LIST":
		return Slot{Kind: CustomPropertyList, Index: n - 1}, true
	}
	return Slot{}, false
}

// TextValue returns the text stored under the named slot.
func (c *CustomSlots) TextValue(name string) (string, bool) {
	s, ok := ParseSlot(name)
	if !ok || s.Kind != CustomPropertyText {
		return "", false
	}
	return c.Text[s.Index], true
}

// SetText stores v under the named text slot. Unknown names are ignored.
func (c *CustomSlots) SetText(name, v string) bool {
	s, ok := ParseSlot(name)
	if !ok || s.Kind != CustomPropertyText {
		return false
	}
	c.Text[s.Index] = v
	return true
}

// ListValue returns the list option id stored under the named slot.
func (c *CustomSlots) ListValue(name string) (*int, bool) {
	s, ok := ParseSlot(name)
	if !ok || s.Kind != CustomPropertyList {
		return nil, false
	}
	return c.List[s.Index], true
}

// SetList stores v under the named list slot. Unknown names are ignored.
func (c *CustomSlots) SetList(name string, v *int) bool {
	s, ok := ParseSlot(name)
	if !ok || s.Kind != CustomPropertyList {
		return false
	}
	c.List[s.Index] = v
	return true
}

// MarshalJSON encodes populated slots as an object keyed by slot name.
func (c CustomSlots) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	for i := 0; i < SlotCount; i++ {
		if c.Text[i] != "" {
			out[Slot{Kind: CustomPropertyText, Index: i}.Name()] = c.Text[i]
		}
		if c.List[i] != nil {
			out[Slot{Kind: CustomPropertyList, Index: i}.Name()] = *c.List[i]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object keyed by slot name. Unknown keys are ignored.
func (c *CustomSlots) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CustomSlots{}
	for name, value := range raw {
		slot, ok := ParseSlot(name)
		if !ok || string(value) == "null" {
			continue
		}
		switch slot.Kind {
		case CustomPropertyText:
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("custom property %s: %w", name, err)
			}
			c.Text[slot.Index] = s
		case CustomPropertyList:
			var n int
			if err := json.Unmarshal(value, &n); err != nil {
				return fmt.Errorf("custom property %s: %w", name, err)
			}
			c.List[slot.Index] = &n
		}
	}
	return nil
}

// SlotName returns the external name of slot idx (0-based) of the given kind.
func SlotName(kind CustomPropertyType, idx int) string {
	return Slot{Kind: kind, Index: idx}.Name()
}
