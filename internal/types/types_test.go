package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlot(t *testing.T) {
	tests := []struct {
		name   string
		want   Slot
		wantOK bool
	}{
		{"TEXT_01", Slot{Kind: CustomPropertyText, Index: 0}, true},
		{"TEXT_10", Slot{Kind: CustomPropertyText, Index: 9}, true},
		{"LIST_04", Slot{Kind: CustomPropertyList, Index: 3}, true},
		{"list_02", Slot{Kind: CustomPropertyList, Index: 1}, true},
		{"TEXT_11", Slot{}, false},
		{"TEXT_00", Slot{}, false},
		{"TEXT_1", Slot{}, false},
		{"DATE_01", Slot{}, false},
		{"", Slot{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseSlot(tt.name)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseSlot(%q) = %+v, %v; want %+v, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSlotNameRoundTrip(t *testing.T) {
	for i := 0; i < SlotCount; i++ {
		for _, kind := range []CustomPropertyType{CustomPropertyText, CustomPropertyList} {
			s := Slot{Kind: kind, Index: i}
			got, ok := ParseSlot(s.Name())
			require.True(t, ok, s.Name())
			assert.Equal(t, s, got)
		}
	}
}

func TestCustomSlotsAccessors(t *testing.T) {
	var c CustomSlots

	assert.True(t, c.SetText("TEXT_03", "lab-7"))
	assert.False(t, c.SetText("LIST_03", "wrong kind"))
	v, ok := c.TextValue("TEXT_03")
	assert.True(t, ok)
	assert.Equal(t, "lab-7", v)

	assert.True(t, c.SetList("LIST_02", IntPtr(12)))
	lv, ok := c.ListValue("LIST_02")
	require.True(t, ok)
	require.NotNil(t, lv)
	assert.Equal(t, 12, *lv)

	_, ok = c.ListValue("TEXT_03")
	assert.False(t, ok)
}

func TestCustomSlotsJSON(t *testing.T) {
	var c CustomSlots
	c.SetText("TEXT_01", "win11")
	c.SetList("LIST_10", IntPtr(4))

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"TEXT_01":"win11","LIST_10":4}`, string(data))

	var back CustomSlots
	require.NoError(t, json.Unmarshal([]byte(`{"TEXT_01":"win11","LIST_10":4,"BOGUS":1,"LIST_01":null}`), &back))
	assert.Equal(t, c, back)
}

func TestNewCaseIsUnset(t *testing.T) {
	c := NewCase()
	for name, v := range map[string]int{
		"ID": c.ID, "Project": c.Project, "Status": c.Status, "Category": c.Category,
		"Priority": c.Priority, "PersonAssignedTo": c.PersonAssignedTo,
		"PersonOpenedBy": c.PersonOpenedBy, "FixFor": c.FixFor, "Area": c.Area,
		"HrsCurrEst": c.HrsCurrEst,
	} {
		assert.Equal(t, Unset, v, name)
	}
}

func TestIncidentIsNew(t *testing.T) {
	assert.True(t, (&Incident{}).IsNew())
	assert.False(t, (&Incident{ID: IntPtr(5)}).IsNew())
}

func TestParseNames(t *testing.T) {
	a, err := ParseArtifactType("Releases")
	require.NoError(t, err)
	assert.Equal(t, ArtifactRelease, a)
	assert.Equal(t, "release", a.String())

	f, err := ParseFieldKind("status")
	require.NoError(t, err)
	assert.Equal(t, FieldStatus, f)
	assert.Equal(t, "status", f.String())

	_, err = ParseFieldKind("resolution")
	assert.Error(t, err)
	_, err = ParseArtifactType("task")
	assert.Error(t, err)
}
