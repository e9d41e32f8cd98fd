package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/casesync/casesync/internal/types"
)

// Outcome classifies the result of translating a value through a mapping table.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	NotNumeric
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotNumeric:
		return "not-numeric"
	default:
		return "not-found"
	}
}

// Resolution is the explicit result of resolving a numeric id through a
// mapping. Value is only meaningful when Outcome is Found; Raw carries the
// offending key when Outcome is NotNumeric.
type Resolution struct {
	Outcome Outcome
	Value   int
	Raw     string
}

func (r Resolution) String() string {
	switch r.Outcome {
	case Found:
		return fmt.Sprintf("found(%d)", r.Value)
	case NotNumeric:
		return fmt.Sprintf("not-numeric(%q)", r.Raw)
	default:
		return "not-found"
	}
}

// ParseNumericKey interprets an external key as an integer identifier.
func ParseNumericKey(raw string) Resolution {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return Resolution{Outcome: NotNumeric, Raw: raw}
	}
	return Resolution{Outcome: Found, Value: n}
}

// ExternalID resolves the numeric external id carried by m. A nil mapping
// resolves to NotFound.
func ExternalID(m *types.DataMapping) Resolution {
	if m == nil {
		return Resolution{Outcome: NotFound}
	}
	return ParseNumericKey(m.ExternalKey)
}

// InternalID returns the internal id carried by m, or NotFound for nil.
func InternalID(m *types.DataMapping) Resolution {
	if m == nil {
		return Resolution{Outcome: NotFound}
	}
	return Resolution{Outcome: Found, Value: m.InternalID}
}

// ByInternalID finds the row mapping internalID within projectID. The primary
// flag is not consulted: an internal id is unique per project.
func ByInternalID(rows []types.DataMapping, projectID, internalID int) *types.DataMapping {
	for i := range rows {
		if rows[i].InternalID == internalID && rows[i].ProjectID == projectID {
			return &rows[i]
		}
	}
	return nil
}

// ByExternalKey finds the row mapping key within projectID. With primaryOnly
// set, secondary rows are never returned so a historical mapping cannot
// shadow the live one.
func ByExternalKey(rows []types.DataMapping, projectID int, key string, primaryOnly bool) *types.DataMapping {
	for i := range rows {
		if rows[i].ExternalKey != key || rows[i].ProjectID != projectID {
			continue
		}
		if !primaryOnly || rows[i].Primary {
			return &rows[i]
		}
	}
	return nil
}

// UserByInternalID searches the global user table.
func UserByInternalID(rows []types.DataMapping, internalID int) *types.DataMapping {
	for i := range rows {
		if rows[i].InternalID == internalID {
			return &rows[i]
		}
	}
	return nil
}

// UserByExternalKey searches the global user table.
func UserByExternalKey(rows []types.DataMapping, key string) *types.DataMapping {
	for i := range rows {
		if rows[i].ExternalKey == key {
			return &rows[i]
		}
	}
	return nil
}
