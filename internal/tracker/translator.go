package tracker

import (
	"strconv"

	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/types"
)

// Field translation between the two systems. Internal -> external lookups go
// by (project, internal id) and ignore the primary flag; external -> internal
// lookups filter to primary rows unless a caller opts out.

// toExternal resolves a local value to the remote numeric id it maps to.
func toExternal(rows []types.DataMapping, projectID, internalID int) mapping.Resolution {
	return mapping.ExternalID(mapping.ByInternalID(rows, projectID, internalID))
}

// toInternal resolves a remote numeric id to the local value it maps to.
func toInternal(rows []types.DataMapping, projectID, externalID int, primaryOnly bool) mapping.Resolution {
	return mapping.InternalID(mapping.ByExternalKey(rows, projectID, strconv.Itoa(externalID), primaryOnly))
}

// userToExternal resolves a local user through the global user table.
func userToExternal(users []types.DataMapping, internalID int) mapping.Resolution {
	return mapping.ExternalID(mapping.UserByInternalID(users, internalID))
}

// userToInternal resolves a remote person through the global user table.
func userToInternal(users []types.DataMapping, externalID int) mapping.Resolution {
	return mapping.InternalID(mapping.UserByExternalKey(users, strconv.Itoa(externalID)))
}

// firstByInternalID searches each table in turn.
func firstByInternalID(projectID, internalID int, tables ...[]types.DataMapping) *types.DataMapping {
	for _, rows := range tables {
		if m := mapping.ByInternalID(rows, projectID, internalID); m != nil {
			return m
		}
	}
	return nil
}

// firstByExternalKey searches each table in turn.
func firstByExternalKey(projectID int, key string, primaryOnly bool, tables ...[]types.DataMapping) *types.DataMapping {
	for _, rows := range tables {
		if m := mapping.ByExternalKey(rows, projectID, key, primaryOnly); m != nil {
			return m
		}
	}
	return nil
}
