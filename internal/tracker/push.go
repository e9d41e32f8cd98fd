package tracker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/casesync/casesync/internal/htmltext"
	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/types"
)

// incidentPath is appended to the local base URL to link back to an incident.
const incidentPath = "/IncidentDetails.aspx?incidentId="

// push creates a remote case for every local incident created since the last
// pass that has no incident mapping yet.
func (p *projectPass) push(ctx context.Context) error {
	incidents, err := p.session.NewIncidents(ctx, p.pass.since)
	if err != nil {
		return fmt.Errorf("fetch new incidents: %w", err)
	}
	p.log.Debug().Int("count", len(incidents)).Msg("Fetched new local incidents")

	for i := range incidents {
		if ctx.Err() != nil {
			break
		}
		p.pushIncident(ctx, &incidents[i])
	}

	return p.finish(ctx)
}

func (p *projectPass) pushIncident(ctx context.Context, inc *types.Incident) {
	if inc.ID == nil {
		p.recordFailed(ctx, phasePush, p.log, fmt.Errorf("local incident %q has no id", inc.Name))
		return
	}
	id := *inc.ID
	log := p.log.With().Int("incident", id).Logger()

	if firstByInternalID(p.projectID, id, p.incidents, p.newIncidents) != nil {
		log.Debug().Msg("Incident already mapped, skipping")
		p.recordDone(ctx, phasePush, outcomeSkipped)
		return
	}

	c, err := p.caseFromIncident(ctx, log, inc)
	if err != nil {
		p.recordFailed(ctx, phasePush, log, err)
		return
	}

	if p.pass.opts.DryRun {
		log.Info().Str("title", c.Title).Msg("[dry-run] Would create remote case")
		p.recordDone(ctx, phasePush, outcomeCreated)
		return
	}

	created, err := p.engine.Remote.CreateCase(ctx, c)
	if err != nil {
		p.recordFailed(ctx, phasePush, log, fmt.Errorf("create remote case: %w", err))
		return
	}

	p.newIncidents = append(p.newIncidents, types.DataMapping{
		ProjectID:   p.projectID,
		InternalID:  id,
		ExternalKey: strconv.Itoa(created.ID),
		Primary:     true,
	})
	log.Info().Int("case", created.ID).Msg("Created remote case")
	p.recordDone(ctx, phasePush, outcomeCreated)
}

// caseFromIncident translates a local incident into a remote case draft.
// Type and status are mandatory; priority, owner and milestone are optional.
func (p *projectPass) caseFromIncident(ctx context.Context, log zerolog.Logger, inc *types.Incident) (*types.Case, error) {
	id := *inc.ID

	c := types.NewCase()
	c.Project = p.remoteProjectID
	c.Title = inc.Name
	c.Description = p.describe(inc)
	c.LastUpdated = types.TimePtr(inc.LastUpdateDate)
	if inc.StartDate != nil {
		c.Due = types.TimePtr(*inc.StartDate)
	}
	if inc.EstimatedEffort != nil {
		c.HrsCurrEst = *inc.EstimatedEffort / 60
	}

	switch r := toExternal(p.typ, p.projectID, inc.TypeID); r.Outcome {
	case mapping.NotFound:
		return nil, fmt.Errorf("no mapping for incident type %d in project PR%d", inc.TypeID, p.projectID)
	case mapping.NotNumeric:
		return nil, fmt.Errorf("external key %q for incident type %d in project PR%d must be numeric", r.Raw, inc.TypeID, p.projectID)
	default:
		c.Category = r.Value
	}

	statusRow := mapping.ByInternalID(p.status, p.projectID, inc.StatusID)
	if statusRow == nil {
		return nil, fmt.Errorf("no mapping for incident status %d in project PR%d", inc.StatusID, p.projectID)
	}
	if statusRow.ExternalKey == ClosedStatusKey {
		c.Status = closedRemoteStatus
		c.PersonAssignedTo = ClosedUserID
	} else {
		r := mapping.ExternalID(statusRow)
		if r.Outcome != mapping.Found {
			return nil, fmt.Errorf("external key %q for incident status %d in project PR%d must be numeric", r.Raw, inc.StatusID, p.projectID)
		}
		c.Status = r.Value
	}

	if inc.PriorityID != nil {
		switch r := toExternal(p.priority, p.projectID, *inc.PriorityID); r.Outcome {
		case mapping.NotFound:
			p.problem(log, "no mapping for incident priority %d, leaving priority unset", *inc.PriorityID)
		case mapping.NotNumeric:
			p.problem(log, "external key %q for incident priority %d must be numeric, leaving priority unset", r.Raw, *inc.PriorityID)
		default:
			c.Priority = r.Value
		}
	}

	// A closed status already assigned the case to the closed user.
	if inc.OwnerID != nil && c.PersonAssignedTo != ClosedUserID {
		switch r := userToExternal(p.pass.users, *inc.OwnerID); r.Outcome {
		case mapping.NotFound:
			p.problem(log, "no mapping for user %d, leaving assignee unset", *inc.OwnerID)
		case mapping.NotNumeric:
			return nil, fmt.Errorf("external key %q for user %d must be numeric", r.Raw, *inc.OwnerID)
		default:
			c.PersonAssignedTo = r.Value
		}
	}

	releaseID, version := inc.ResolvedReleaseID, inc.ResolvedReleaseVersionNumber
	if releaseID == nil {
		releaseID, version = inc.DetectedReleaseID, inc.DetectedReleaseVersionNumber
	}
	if releaseID != nil {
		r, err := p.milestoneFor(ctx, log, *releaseID, version)
		if err != nil {
			return nil, err
		}
		switch r.Outcome {
		case mapping.NotNumeric:
			p.problem(log, "external key %q for release %d must be numeric, leaving milestone unset", r.Raw, *releaseID)
		case mapping.Found:
			c.FixFor = r.Value
		}
	}

	p.customToCase(log, inc, c)

	log.Debug().Int("category", c.Category).Int("status", c.Status).Int("fixfor", c.FixFor).Int("incident", id).Msg("Translated incident")
	return c, nil
}

// describe prefixes the incident body with a back-link header.
func (p *projectPass) describe(inc *types.Incident) string {
	id := *inc.ID
	url := p.pass.baseURL + incidentPath + strconv.Itoa(id)
	if p.engine.Config.RichText {
		return fmt.Sprintf("Incident <a href=\"%s\">[IN%d:%s]</a> detected by %s in %s.<br/>\n%s",
			url, id, url, inc.OpenerName, p.pass.productName, inc.Description)
	}
	return fmt.Sprintf("Incident [IN%d|%s] detected by %s in %s.\n%s",
		id, url, inc.OpenerName, p.pass.productName, htmltext.Render(inc.Description))
}

// milestoneFor resolves the remote milestone of a local release, creating the
// milestone when neither a stored nor a just-created mapping exists.
func (p *projectPass) milestoneFor(ctx context.Context, log zerolog.Logger, releaseID int, version string) (mapping.Resolution, error) {
	if m := firstByInternalID(p.projectID, releaseID, p.releases, p.newReleases); m != nil {
		return mapping.ExternalID(m), nil
	}

	name := fmt.Sprintf("%s(%d)", version, releaseID)
	if p.pass.opts.DryRun {
		log.Info().Str("milestone", name).Msg("[dry-run] Would create remote milestone")
		return mapping.Resolution{Outcome: mapping.NotFound}, nil
	}

	m := types.NewMilestone()
	m.Project = p.remoteProjectID
	m.Name = name
	m.ReleaseDate = p.engine.clock().AddDate(0, 1, 0)
	created, err := p.engine.Remote.CreateMilestone(ctx, m)
	if err != nil {
		return mapping.Resolution{}, fmt.Errorf("create milestone for release %d: %w", releaseID, err)
	}

	p.newReleases = append(p.newReleases, types.DataMapping{
		ProjectID:   p.projectID,
		InternalID:  releaseID,
		ExternalKey: strconv.Itoa(created.ID),
		Primary:     true,
	})
	p.pass.stats.update(func(s *SyncStats) { s.Milestones++ })
	log.Info().Int("milestone", created.ID).Int("release", releaseID).Msg("Created remote milestone")
	return mapping.Resolution{Outcome: mapping.Found, Value: created.ID}, nil
}

// customToCase copies custom properties aliased to special fields onto the case.
func (p *projectPass) customToCase(log zerolog.Logger, inc *types.Incident, c *types.Case) {
	for _, prop := range p.properties {
		field, ok := lookupSpecialField(prop)
		if !ok {
			continue
		}
		switch prop.Type {
		case types.CustomPropertyText:
			if v, _ := inc.Custom.TextValue(prop.Name); v != "" {
				field.setText(c, v)
			}
		case types.CustomPropertyList:
			v, _ := inc.Custom.ListValue(prop.Name)
			if v == nil {
				continue
			}
			switch r := toExternal(p.propertyValues[prop.ID], p.projectID, *v); r.Outcome {
			case mapping.NotFound:
				log.Debug().Str("property", prop.Name).Int("value", *v).Msg("No value mapping for custom property")
			case mapping.NotNumeric:
				p.problem(log, "external key %q for %s value %d must be numeric", r.Raw, prop.Alias, *v)
			default:
				field.setList(c, r.Value)
			}
		}
	}
}
