package spira

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/casesync/casesync/internal/types"
)

// MappingStore reads and writes the data-mapping tables the local system keeps
// for one sync-system configuration. It shares the client's session.
type MappingStore struct {
	cn     *conn
	system types.SyncSystemID
}

// NewMappingStore returns a store for the given sync system. The client must
// be authenticated before the store is used.
func NewMappingStore(c *Client, system types.SyncSystemID) *MappingStore {
	return &MappingStore{cn: c.conn(c.httpClient), system: system}
}

func (s *MappingStore) path(format string, args ...interface{}) string {
	return fmt.Sprintf("/data-mappings/%d", int(s.system)) + fmt.Sprintf(format, args...)
}

func (s *MappingStore) list(ctx context.Context, path string) ([]types.DataMapping, error) {
	var out []types.DataMapping
	if err := s.cn.get(ctx, path, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.DataMapping{}
	}
	return out, nil
}

func (s *MappingStore) ProjectMappings(ctx context.Context) ([]types.DataMapping, error) {
	return s.list(ctx, s.path("/projects"))
}

func (s *MappingStore) UserMappings(ctx context.Context) ([]types.DataMapping, error) {
	return s.list(ctx, s.path("/users"))
}

func (s *MappingStore) FieldMappings(ctx context.Context, artifact types.ArtifactType, field types.FieldKind) ([]types.DataMapping, error) {
	return s.list(ctx, s.path("/fields/%d/%d", int(artifact), int(field)))
}

func (s *MappingStore) ArtifactMappings(ctx context.Context, artifact types.ArtifactType) ([]types.DataMapping, error) {
	return s.list(ctx, s.path("/artifacts/%d", int(artifact)))
}

// CustomPropertyMapping returns nil, nil when the server has no mapping.
func (s *MappingStore) CustomPropertyMapping(ctx context.Context, artifact types.ArtifactType, propertyID int) (*types.DataMapping, error) {
	var out types.DataMapping
	err := s.cn.get(ctx, s.path("/custom-properties/%d/%d", int(artifact), propertyID), &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MappingStore) CustomPropertyValueMappings(ctx context.Context, artifact types.ArtifactType, propertyID int) ([]types.DataMapping, error) {
	return s.list(ctx, s.path("/custom-properties/%d/%d/values", int(artifact), propertyID))
}

// AddArtifactMappings relies on the server ignoring rows whose internal id is
// already mapped in the project.
func (s *MappingStore) AddArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	if len(rows) == 0 {
		return nil
	}
	return s.cn.send(ctx, http.MethodPost, s.path("/artifacts/%d", int(artifact)), rows, nil)
}

func (s *MappingStore) RemoveArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	if len(rows) == 0 {
		return nil
	}
	return s.cn.send(ctx, http.MethodPost, s.path("/artifacts/%d/remove", int(artifact)), rows, nil)
}
