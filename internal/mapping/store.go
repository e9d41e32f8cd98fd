// Package mapping holds the persistent id/key correspondence tables that drive
// reconciliation, together with the pure lookups the engine runs over them.
//
// Three Store backends live here: MemoryStore (tests and embedding), FileStore
// (a YAML document on disk) and SQLStore (a MySQL-compatible server). The
// local system's own mapping service is implemented in internal/spira.
package mapping

import (
	"context"

	"github.com/casesync/casesync/internal/types"
)

// Store is the mapping repository contract. All reads are scoped to the
// SyncSystemID the store was opened with.
//
// AddArtifactMappings must be idempotent on (artifact, ProjectID, InternalID):
// a row whose internal id is already mapped in that project is ignored.
type Store interface {
	ProjectMappings(ctx context.Context) ([]types.DataMapping, error)
	UserMappings(ctx context.Context) ([]types.DataMapping, error)
	FieldMappings(ctx context.Context, artifact types.ArtifactType, field types.FieldKind) ([]types.DataMapping, error)
	ArtifactMappings(ctx context.Context, artifact types.ArtifactType) ([]types.DataMapping, error)

	// CustomPropertyMapping returns nil, nil when the property is not mapped.
	CustomPropertyMapping(ctx context.Context, artifact types.ArtifactType, propertyID int) (*types.DataMapping, error)
	CustomPropertyValueMappings(ctx context.Context, artifact types.ArtifactType, propertyID int) ([]types.DataMapping, error)

	AddArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error
	RemoveArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error
}
