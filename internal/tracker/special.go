package tracker

import (
	"github.com/casesync/casesync/internal/types"
)

// Remote status conventions.
const (
	// ClosedStatusKey is the external key of the status mapping row that stands
	// for "assigned to the closed user" rather than a numeric remote status.
	ClosedStatusKey = "Closed"
	// ClosedUserID is the remote person id cases are assigned to when closed.
	ClosedUserID = 1
	// closedRemoteStatus is the remote status sent with the closed user.
	closedRemoteStatus = 0
)

// specialField describes a remote case scalar that a custom property can be
// mapped onto by using the field's name as the property's alias.
type specialField struct {
	kind types.CustomPropertyType

	getText func(*types.Case) string
	setText func(*types.Case, string)

	// List fields carry the numeric remote option id.
	getList func(*types.Case) int
	setList func(*types.Case, int)
}

// specialFields is the closed set of aliases that target case scalars.
var specialFields = map[string]specialField{
	"Area": {
		kind:    types.CustomPropertyList,
		getList: func(c *types.Case) int { return c.Area },
		setList: func(c *types.Case, v int) { c.Area = v },
	},
	"Version": {
		kind:    types.CustomPropertyText,
		getText: func(c *types.Case) string { return c.Version },
		setText: func(c *types.Case, v string) { c.Version = v },
	},
	"Computer": {
		kind:    types.CustomPropertyText,
		getText: func(c *types.Case) string { return c.Computer },
		setText: func(c *types.Case, v string) { c.Computer = v },
	},
}

// lookupSpecialField returns the special field a property targets. ok is false
// when the alias is not special or the property kind does not match.
func lookupSpecialField(prop types.CustomProperty) (specialField, bool) {
	f, ok := specialFields[prop.Alias]
	if !ok || f.kind != prop.Type {
		return specialField{}, false
	}
	return f, true
}
