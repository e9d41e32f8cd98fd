package mapping

import (
	"context"
	"sync"

	"github.com/casesync/casesync/internal/types"
)

type fieldKey struct {
	artifact types.ArtifactType
	field    types.FieldKind
}

type propertyKey struct {
	artifact   types.ArtifactType
	propertyID int
}

// MemoryStore is a mutex-guarded in-process Store. Reads return copies, so
// callers may keep snapshots across writes.
type MemoryStore struct {
	mu sync.RWMutex

	projects       []types.DataMapping
	users          []types.DataMapping
	fields         map[fieldKey][]types.DataMapping
	artifacts      map[types.ArtifactType][]types.DataMapping
	properties     map[propertyKey]types.DataMapping
	propertyValues map[propertyKey][]types.DataMapping
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fields:         make(map[fieldKey][]types.DataMapping),
		artifacts:      make(map[types.ArtifactType][]types.DataMapping),
		properties:     make(map[propertyKey]types.DataMapping),
		propertyValues: make(map[propertyKey][]types.DataMapping),
	}
}

func clone(rows []types.DataMapping) []types.DataMapping {
	if rows == nil {
		return []types.DataMapping{}
	}
	out := make([]types.DataMapping, len(rows))
	copy(out, rows)
	return out
}

// SetProjectMappings replaces the project table.
func (m *MemoryStore) SetProjectMappings(rows ...types.DataMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = clone(rows)
}

// SetUserMappings replaces the user table.
func (m *MemoryStore) SetUserMappings(rows ...types.DataMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = clone(rows)
}

// SetFieldMappings replaces one field-value table.
func (m *MemoryStore) SetFieldMappings(artifact types.ArtifactType, field types.FieldKind, rows ...types.DataMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[fieldKey{artifact, field}] = clone(rows)
}

// SetCustomPropertyMapping maps a custom property to an external field name.
func (m *MemoryStore) SetCustomPropertyMapping(artifact types.ArtifactType, propertyID int, row types.DataMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[propertyKey{artifact, propertyID}] = row
}

// SetCustomPropertyValueMappings replaces the option table of a list property.
func (m *MemoryStore) SetCustomPropertyValueMappings(artifact types.ArtifactType, propertyID int, rows ...types.DataMapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.propertyValues[propertyKey{artifact, propertyID}] = clone(rows)
}

func (m *MemoryStore) ProjectMappings(ctx context.Context) ([]types.DataMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.projects), nil
}

func (m *MemoryStore) UserMappings(ctx context.Context) ([]types.DataMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.users), nil
}

func (m *MemoryStore) FieldMappings(ctx context.Context, artifact types.ArtifactType, field types.FieldKind) ([]types.DataMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.fields[fieldKey{artifact, field}]), nil
}

func (m *MemoryStore) ArtifactMappings(ctx context.Context, artifact types.ArtifactType) ([]types.DataMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.artifacts[artifact]), nil
}

func (m *MemoryStore) CustomPropertyMapping(ctx context.Context, artifact types.ArtifactType, propertyID int) (*types.DataMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.properties[propertyKey{artifact, propertyID}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *MemoryStore) CustomPropertyValueMappings(ctx context.Context, artifact types.ArtifactType, propertyID int) ([]types.DataMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.propertyValues[propertyKey{artifact, propertyID}]), nil
}

func (m *MemoryStore) AddArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[artifact] = appendUnique(m.artifacts[artifact], rows)
	return nil
}

func (m *MemoryStore) RemoveArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[artifact] = removeRows(m.artifacts[artifact], rows)
	return nil
}

// appendUnique appends rows whose (ProjectID, InternalID) is not yet present.
func appendUnique(existing, rows []types.DataMapping) []types.DataMapping {
	for _, row := range rows {
		if ByInternalID(existing, row.ProjectID, row.InternalID) != nil {
			continue
		}
		existing = append(existing, row)
	}
	return existing
}

func removeRows(existing, rows []types.DataMapping) []types.DataMapping {
	if len(rows) == 0 {
		return existing
	}
	out := existing[:0]
	for _, e := range existing {
		drop := false
		for _, r := range rows {
			if e.ProjectID == r.ProjectID && e.InternalID == r.InternalID && e.ExternalKey == r.ExternalKey {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, e)
		}
	}
	return out
}
