package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/types"
)

const untitledIncident = "Untitled Incident"

// pull merges remote cases edited since the last pass into local incidents.
func (p *projectPass) pull(ctx context.Context) error {
	store := p.engine.Store
	var err error
	// Push persisted its mappings; start again from what the store holds.
	if p.incidents, err = store.ArtifactMappings(ctx, types.ArtifactIncident); err != nil {
		return fmt.Errorf("reload incident mappings: %w", err)
	}
	if p.releases, err = store.ArtifactMappings(ctx, types.ArtifactRelease); err != nil {
		return fmt.Errorf("reload release mappings: %w", err)
	}
	if !p.pass.opts.DryRun {
		p.newIncidents, p.newReleases = nil, nil
	}

	since := p.pass.since.Add(-time.Duration(p.engine.Config.TimeOffsetHours) * time.Hour)
	cases, err := p.engine.Remote.SearchChangedCases(ctx, p.remoteProjectID, since)
	if err != nil {
		return fmt.Errorf("search changed cases: %w", err)
	}
	p.log.Debug().Int("count", len(cases)).Time("since", since).Msg("Fetched changed remote cases")

	for i := range cases {
		if ctx.Err() != nil {
			break
		}
		c := &cases[i]
		if c.Project != p.remoteProjectID {
			continue
		}
		log := p.log.With().Int("case", c.ID).Logger()
		o, err := p.pullCase(ctx, log, c)
		switch {
		case errors.Is(err, errPolicySkip):
			log.Debug().Err(err).Msg("Case not pulled")
			p.recordDone(ctx, phasePull, outcomeSkipped)
		case err != nil:
			p.recordFailed(ctx, phasePull, log, err)
		default:
			p.recordDone(ctx, phasePull, o)
		}
	}

	return p.finish(ctx)
}

// pullCase merges one remote case. errPolicySkip means the case was excluded
// by configuration; any other error means the record failed.
func (p *projectPass) pullCase(ctx context.Context, log zerolog.Logger, c *types.Case) (outcome, error) {
	key := strconv.Itoa(c.ID)
	var inc *types.Incident
	existing := firstByExternalKey(p.projectID, key, true, p.incidents, p.newIncidents)
	if existing == nil {
		if !p.engine.Config.GetNewItemsFromRemote {
			return "", fmt.Errorf("%w: new remote items are not pulled", errPolicySkip)
		}
		inc = &types.Incident{ProjectID: p.projectID}
	} else {
		fetched, err := p.session.Incident(ctx, existing.InternalID)
		if err != nil {
			log.Warn().Err(err).Int("incident", existing.InternalID).Msg("Mapped local incident could not be retrieved")
			return "", fmt.Errorf("retrieve incident %d: %w", existing.InternalID, err)
		}
		inc = fetched
		log = log.With().Int("incident", existing.InternalID).Logger()
	}
	isNew := inc.IsNew()

	inc.Name = c.Title
	if inc.Name == "" {
		inc.Name = untitledIncident
	}
	if isNew {
		inc.Description = c.Description
		if inc.Description == "" {
			inc.Description = "Empty description in " + p.engine.Config.remoteName()
		}
	}
	if c.HrsCurrEst != types.Unset {
		inc.EstimatedEffort = types.IntPtr(c.HrsCurrEst * 60)
	}
	inc.StartDate = c.Due
	inc.ClosedDate = c.Closed

	if c.Priority == types.Unset {
		inc.PriorityID = nil
	} else {
		switch r := toInternal(p.priority, p.projectID, c.Priority, true); r.Outcome {
		case mapping.Found:
			inc.PriorityID = types.IntPtr(r.Value)
		default:
			p.problem(log, "no mapping for case priority %d in project PR%d", c.Priority, p.projectID)
		}
	}

	if row := p.statusRow(c); row != nil {
		inc.StatusID = row.InternalID
	} else {
		log.Error().Int("status", c.Status).Msg("No mapping for case status, keeping local status")
		p.engine.warn(p.pass, "project %d: no mapping for case status %d", p.projectID, c.Status)
	}

	switch r := toInternal(p.typ, p.projectID, c.Category, true); {
	case r.Outcome == mapping.Found:
		inc.TypeID = r.Value
	case isNew:
		return "", fmt.Errorf("%w: case category %d is not mapped", errPolicySkip, c.Category)
	default:
		log.Error().Int("category", c.Category).Msg("No mapping for case category, keeping local type")
		p.engine.warn(p.pass, "project %d: no mapping for case category %d", p.projectID, c.Category)
	}

	pending, err := p.pendingComment(ctx, log, c, inc)
	if err != nil {
		return "", err
	}

	if isNew {
		r := userToInternal(p.pass.users, c.PersonOpenedBy)
		if r.Outcome != mapping.Found {
			return "", fmt.Errorf("no mapping for remote user %d, cannot create incident without a detector", c.PersonOpenedBy)
		}
		inc.OpenerID = types.IntPtr(r.Value)
	}

	switch c.PersonAssignedTo {
	case types.Unset, ClosedUserID:
		inc.OwnerID = nil
	default:
		r := userToInternal(p.pass.users, c.PersonAssignedTo)
		switch {
		case r.Outcome == mapping.Found:
			inc.OwnerID = types.IntPtr(r.Value)
		case isNew:
			return "", fmt.Errorf("no mapping for remote user %d, cannot create incident without an owner", c.PersonAssignedTo)
		default:
			log.Warn().Int("assignee", c.PersonAssignedTo).Msg("No mapping for remote assignee, keeping local owner")
		}
	}

	if c.FixFor != types.Unset {
		releaseID, err := p.releaseFor(ctx, log, c.FixFor, inc)
		if err != nil {
			return "", err
		}
		if releaseID != nil {
			inc.ResolvedReleaseID = releaseID
			if isNew {
				inc.DetectedReleaseID = releaseID
			}
		}
	}

	p.customFromCase(c, inc)

	return p.commit(ctx, log, c, inc, pending)
}

// statusRow picks the status mapping for a case. Cases assigned to the closed
// user map to the row keyed "Closed" when one exists.
func (p *projectPass) statusRow(c *types.Case) *types.DataMapping {
	if c.PersonAssignedTo == ClosedUserID {
		if row := mapping.ByExternalKey(p.status, p.projectID, ClosedStatusKey, true); row != nil {
			return row
		}
	}
	return mapping.ByExternalKey(p.status, p.projectID, strconv.Itoa(c.Status), true)
}

// pendingComment returns the remote description as a new local comment when no
// existing comment carries the same text. The remote system only exposes its
// latest event, so this is how remote discussion reaches the local side.
func (p *projectPass) pendingComment(ctx context.Context, log zerolog.Logger, c *types.Case, inc *types.Incident) (*types.Comment, error) {
	if c.Description == "" {
		return nil, nil
	}
	if !inc.IsNew() {
		comments, err := p.session.Resolutions(ctx, *inc.ID)
		if err != nil {
			return nil, fmt.Errorf("retrieve comments of incident %d: %w", *inc.ID, err)
		}
		for _, cm := range comments {
			if cm.Text == c.Description {
				return nil, nil
			}
		}
	}

	r := userToInternal(p.pass.users, c.PersonAssignedTo)
	if r.Outcome != mapping.Found {
		p.problem(log, "no mapping for remote user %d, dropping comment", c.PersonAssignedTo)
		return nil, nil
	}
	created := p.engine.clock()
	if c.LastUpdated != nil {
		created = *c.LastUpdated
	}
	cm := &types.Comment{CreatorID: r.Value, CreationDate: created, Text: c.Description}
	if inc.ID != nil {
		cm.IncidentID = *inc.ID
	}
	return cm, nil
}

// releaseFor resolves the local release of a remote milestone, creating the
// release when no mapping exists. A nil id leaves the incident's release as is.
func (p *projectPass) releaseFor(ctx context.Context, log zerolog.Logger, milestoneID int, inc *types.Incident) (*int, error) {
	if m := firstByExternalKey(p.projectID, strconv.Itoa(milestoneID), false, p.releases, p.newReleases); m != nil {
		return types.IntPtr(m.InternalID), nil
	}

	ms, err := p.engine.Remote.Milestone(ctx, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("retrieve milestone %d: %w", milestoneID, err)
	}
	if ms == nil {
		log.Warn().Int("milestone", milestoneID).Msg("Remote milestone not found, leaving release unset")
		return nil, nil
	}

	now := p.engine.clock()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rel := &types.Release{
		ProjectID:     p.projectID,
		Name:          ms.Name,
		VersionNumber: p.engine.Config.ReleaseVersionPrefix + strconv.Itoa(ms.ID),
		Active:        true,
		StartDate:     today,
		EndDate:       today.AddDate(0, 0, 5),
		CreatorID:     inc.OpenerID,
		CreationDate:  now,
		ResourceCount: 1,
	}
	if p.pass.opts.DryRun {
		log.Info().Str("version", rel.VersionNumber).Msg("[dry-run] Would create local release")
		return nil, nil
	}

	created, err := p.session.CreateRelease(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("create release for milestone %d: %w", milestoneID, err)
	}
	if created.ID == nil {
		return nil, fmt.Errorf("create release for milestone %d: no id returned", milestoneID)
	}
	p.newReleases = append(p.newReleases, types.DataMapping{
		ProjectID:   p.projectID,
		InternalID:  *created.ID,
		ExternalKey: strconv.Itoa(milestoneID),
		Primary:     true,
	})
	p.pass.stats.update(func(s *SyncStats) { s.Releases++ })
	log.Info().Int("release", *created.ID).Int("milestone", milestoneID).Msg("Created local release")
	return types.IntPtr(*created.ID), nil
}

// customFromCase writes special case fields back into aliased custom properties.
func (p *projectPass) customFromCase(c *types.Case, inc *types.Incident) {
	for _, prop := range p.properties {
		field, ok := lookupSpecialField(prop)
		if !ok {
			continue
		}
		switch prop.Type {
		case types.CustomPropertyText:
			inc.Custom.SetText(prop.Name, field.getText(c))
		case types.CustomPropertyList:
			v := field.getList(c)
			if v == types.Unset {
				continue
			}
			r := toInternal(p.propertyValues[prop.ID], p.projectID, v, false)
			if r.Outcome == mapping.Found {
				inc.Custom.SetList(prop.Name, types.IntPtr(r.Value))
			}
		}
	}
}

// commit creates or updates the local incident and attaches the pending comment.
func (p *projectPass) commit(ctx context.Context, log zerolog.Logger, c *types.Case, inc *types.Incident, pending *types.Comment) (outcome, error) {
	if p.pass.opts.DryRun {
		if inc.IsNew() {
			log.Info().Str("title", inc.Name).Msg("[dry-run] Would create local incident")
			return outcomeCreated, nil
		}
		log.Info().Str("title", inc.Name).Msg("[dry-run] Would update local incident")
		return outcomeUpdated, nil
	}

	o := outcomeUpdated
	if inc.IsNew() {
		created, err := p.session.CreateIncident(ctx, inc)
		if err != nil {
			return "", fmt.Errorf("create incident: %w", err)
		}
		if created.ID == nil {
			return "", errors.New("create incident: no id returned")
		}
		p.newIncidents = append(p.newIncidents, types.DataMapping{
			ProjectID:   p.projectID,
			InternalID:  *created.ID,
			ExternalKey: strconv.Itoa(c.ID),
			Primary:     true,
		})
		if pending != nil {
			pending.IncidentID = *created.ID
		}
		log = log.With().Int("incident", *created.ID).Logger()
		log.Info().Msg("Created local incident")
		o = outcomeCreated
	} else {
		if err := p.session.UpdateIncident(ctx, inc); err != nil {
			return "", fmt.Errorf("update incident %d: %w", *inc.ID, err)
		}
		log.Info().Msg("Updated local incident")
	}

	if pending != nil {
		if err := p.session.AddResolutions(ctx, []types.Comment{*pending}); err != nil {
			// The incident itself is stored; only the comment is lost.
			p.problem(log, "add comment to incident %d: %v", pending.IncidentID, err)
		} else {
			p.pass.stats.update(func(s *SyncStats) { s.Comments++ })
		}
	}
	return o, nil
}
