package mapping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/casesync/casesync/internal/types"
	"github.com/casesync/casesync/internal/utils"
)

// fileDocument is the on-disk layout of a FileStore:
//
//	projects:  [{project_id, internal_id, external_key, primary}]
//	users:     [...]
//	fields:    [{artifact: incident, field: status, mappings: [...]}]
//	artifacts: [{artifact: release, mappings: [...]}]
//	custom_properties:
//	  - {artifact: incident, property_id: 3, mapping: {...}, values: [...]}
type fileDocument struct {
	Projects         []types.DataMapping  `yaml:"projects"`
	Users            []types.DataMapping  `yaml:"users"`
	Fields           []fileFieldTable     `yaml:"fields,omitempty"`
	Artifacts        []fileArtifactTable  `yaml:"artifacts,omitempty"`
	CustomProperties []fileCustomProperty `yaml:"custom_properties,omitempty"`
}

type fileFieldTable struct {
	Artifact string              `yaml:"artifact"`
	Field    string              `yaml:"field"`
	Mappings []types.DataMapping `yaml:"mappings"`
}

type fileArtifactTable struct {
	Artifact string              `yaml:"artifact"`
	Mappings []types.DataMapping `yaml:"mappings"`
}

type fileCustomProperty struct {
	Artifact   string              `yaml:"artifact"`
	PropertyID int                 `yaml:"property_id"`
	Mapping    *types.DataMapping  `yaml:"mapping,omitempty"`
	Values     []types.DataMapping `yaml:"values,omitempty"`
}

// FileStore is a Store persisted as a YAML document. Every write rewrites the
// whole file atomically.
type FileStore struct {
	*MemoryStore
	path string
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads path. A missing file yields an empty store that is
// created on the first write.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}

	data, err := os.ReadFile(path) // #nosec G304 - path from configuration
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}
	if err := fs.load(&doc); err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	return fs, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) load(doc *fileDocument) error {
	m := f.MemoryStore
	m.SetProjectMappings(doc.Projects...)
	m.SetUserMappings(doc.Users...)

	for _, t := range doc.Fields {
		artifact, err := types.ParseArtifactType(t.Artifact)
		if err != nil {
			return err
		}
		field, err := types.ParseFieldKind(t.Field)
		if err != nil {
			return err
		}
		m.SetFieldMappings(artifact, field, t.Mappings...)
	}
	for _, t := range doc.Artifacts {
		artifact, err := types.ParseArtifactType(t.Artifact)
		if err != nil {
			return err
		}
		m.artifacts[artifact] = clone(t.Mappings)
	}
	for _, p := range doc.CustomProperties {
		artifact, err := types.ParseArtifactType(p.Artifact)
		if err != nil {
			return err
		}
		if p.Mapping != nil {
			m.SetCustomPropertyMapping(artifact, p.PropertyID, *p.Mapping)
		}
		if len(p.Values) > 0 {
			m.SetCustomPropertyValueMappings(artifact, p.PropertyID, p.Values...)
		}
	}
	return nil
}

func (f *FileStore) AddArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	if len(rows) == 0 {
		return nil
	}
	if err := f.MemoryStore.AddArtifactMappings(ctx, artifact, rows); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) RemoveArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	if len(rows) == 0 {
		return nil
	}
	if err := f.MemoryStore.RemoveArtifactMappings(ctx, artifact, rows); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) save() error {
	data, err := yaml.Marshal(f.snapshot())
	if err != nil {
		return fmt.Errorf("encode mapping file: %w", err)
	}
	if err := utils.WriteFileAtomic(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write mapping file: %w", err)
	}
	return nil
}

// snapshot renders the store in a stable order so rewrites diff cleanly.
func (f *FileStore) snapshot() *fileDocument {
	m := f.MemoryStore
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := &fileDocument{
		Projects: clone(m.projects),
		Users:    clone(m.users),
	}
	for k, rows := range m.fields {
		doc.Fields = append(doc.Fields, fileFieldTable{
			Artifact: k.artifact.String(),
			Field:    k.field.String(),
			Mappings: clone(rows),
		})
	}
	sort.Slice(doc.Fields, func(i, j int) bool {
		if doc.Fields[i].Artifact != doc.Fields[j].Artifact {
			return doc.Fields[i].Artifact < doc.Fields[j].Artifact
		}
		return doc.Fields[i].Field < doc.Fields[j].Field
	})

	for a, rows := range m.artifacts {
		doc.Artifacts = append(doc.Artifacts, fileArtifactTable{Artifact: a.String(), Mappings: clone(rows)})
	}
	sort.Slice(doc.Artifacts, func(i, j int) bool { return doc.Artifacts[i].Artifact < doc.Artifacts[j].Artifact })

	props := make(map[propertyKey]*fileCustomProperty)
	entry := func(k propertyKey) *fileCustomProperty {
		if p, ok := props[k]; ok {
			return p
		}
		p := &fileCustomProperty{Artifact: k.artifact.String(), PropertyID: k.propertyID}
		props[k] = p
		return p
	}
	for k, row := range m.properties {
		row := row
		entry(k).Mapping = &row
	}
	for k, rows := range m.propertyValues {
		entry(k).Values = clone(rows)
	}
	for _, p := range props {
		doc.CustomProperties = append(doc.CustomProperties, *p)
	}
	sort.Slice(doc.CustomProperties, func(i, j int) bool {
		a, b := doc.CustomProperties[i], doc.CustomProperties[j]
		if a.Artifact != b.Artifact {
			return a.Artifact < b.Artifact
		}
		return a.PropertyID < b.PropertyID
	})
	return doc
}
