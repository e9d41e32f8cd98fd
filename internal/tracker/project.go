package tracker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/casesync/casesync/internal/types"
)

// projectPass holds the mapping snapshot and accumulators for one project
// during one pass. It is never shared between goroutines.
type projectPass struct {
	engine          *Engine
	pass            *passContext
	projectID       int
	remoteProjectID int
	session         LocalProject
	log             zerolog.Logger

	severity []types.DataMapping
	priority []types.DataMapping
	status   []types.DataMapping
	typ      []types.DataMapping

	// properties carry their alias, taken from the custom-property mapping.
	properties     []types.CustomProperty
	propertyValues map[int][]types.DataMapping

	incidents []types.DataMapping
	releases  []types.DataMapping

	newIncidents  []types.DataMapping
	newReleases   []types.DataMapping
	staleReleases []types.DataMapping
}

func (p *projectPass) load(ctx context.Context) error {
	store := p.engine.Store
	tables := []struct {
		field types.FieldKind
		dst   *[]types.DataMapping
	}{
		{types.FieldSeverity, &p.severity},
		{types.FieldPriority, &p.priority},
		{types.FieldStatus, &p.status},
		{types.FieldType, &p.typ},
	}
	for _, t := range tables {
		rows, err := store.FieldMappings(ctx, types.ArtifactIncident, t.field)
		if err != nil {
			return fmt.Errorf("load %s mappings: %w", t.field, err)
		}
		*t.dst = rows
	}

	props, err := p.session.CustomProperties(ctx, types.ArtifactIncident)
	if err != nil {
		return fmt.Errorf("load custom properties: %w", err)
	}
	p.propertyValues = make(map[int][]types.DataMapping)
	for _, prop := range props {
		m, err := store.CustomPropertyMapping(ctx, types.ArtifactIncident, prop.ID)
		if err != nil {
			return fmt.Errorf("load mapping for custom property %d: %w", prop.ID, err)
		}
		if m != nil {
			prop.Alias = m.ExternalKey
		}
		if prop.Type == types.CustomPropertyList {
			values, err := store.CustomPropertyValueMappings(ctx, types.ArtifactIncident, prop.ID)
			if err != nil {
				return fmt.Errorf("load value mappings for custom property %d: %w", prop.ID, err)
			}
			p.propertyValues[prop.ID] = values
		}
		if prop.Alias != "" {
			if _, ok := lookupSpecialField(prop); !ok {
				p.log.Debug().Str("property", prop.Name).Str("alias", prop.Alias).Msg("Custom property alias is not a special field, ignoring")
			}
		}
		p.properties = append(p.properties, prop)
	}

	if p.incidents, err = store.ArtifactMappings(ctx, types.ArtifactIncident); err != nil {
		return fmt.Errorf("load incident mappings: %w", err)
	}
	if p.releases, err = store.ArtifactMappings(ctx, types.ArtifactRelease); err != nil {
		return fmt.Errorf("load release mappings: %w", err)
	}
	return nil
}

// finish ends a phase. Records already committed on either side are persisted
// even when the phase was cancelled part way, so the next pass does not
// create them again; the cancellation is still returned.
func (p *projectPass) finish(ctx context.Context) error {
	if err := p.persist(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	return ctx.Err()
}

// persist writes accumulated mappings. Releases go first so an incident
// mapping is never stored without the release it references.
func (p *projectPass) persist(ctx context.Context) error {
	if p.pass.opts.DryRun {
		p.log.Info().
			Int("incidents", len(p.newIncidents)).
			Int("releases", len(p.newReleases)).
			Msg("[dry-run] Would store new mappings")
		return nil
	}
	store := p.engine.Store
	if err := store.AddArtifactMappings(ctx, types.ArtifactRelease, p.newReleases); err != nil {
		return fmt.Errorf("store release mappings: %w", err)
	}
	if err := store.AddArtifactMappings(ctx, types.ArtifactIncident, p.newIncidents); err != nil {
		return fmt.Errorf("store incident mappings: %w", err)
	}
	// Nothing populates staleReleases yet; the call is kept for stores that
	// prune superseded release mappings.
	if err := store.RemoveArtifactMappings(ctx, types.ArtifactRelease, p.staleReleases); err != nil {
		return fmt.Errorf("remove release mappings: %w", err)
	}
	return nil
}

// recordFailed logs a record-level failure and counts it.
func (p *projectPass) recordFailed(ctx context.Context, phase string, log zerolog.Logger, err error) {
	log.Error().Err(err).Str("phase", phase).Msg("Record skipped")
	p.pass.stats.record(phase, outcomeError)
	p.engine.instruments.Record(ctx, phase, string(outcomeError))
	p.engine.warn(p.pass, "project %d: %s: %v", p.projectID, phase, err)
}

func (p *projectPass) recordDone(ctx context.Context, phase string, o outcome) {
	p.pass.stats.record(phase, o)
	p.engine.instruments.Record(ctx, phase, string(o))
}

// problem logs a recoverable translation issue; the record still proceeds.
func (p *projectPass) problem(log zerolog.Logger, format string, args ...interface{}) {
	m := fmt.Sprintf(format, args...)
	log.Warn().Msg(m)
	p.engine.warn(p.pass, "project %d: %s", p.projectID, m)
}
