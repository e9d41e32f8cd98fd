package spira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/types"
)

// Project is a session bound to one project.
type Project struct {
	id int
	cn *conn
}

// ConnectToProject opens a new authenticated session and binds it to the
// project. It returns nil, nil when the server refuses the connection.
func (c *Client) ConnectToProject(ctx context.Context, projectID int) (tracker.LocalProject, error) {
	c.mu.RLock()
	login, password := c.login, c.password
	c.mu.RUnlock()
	if login == "" {
		return nil, ErrNotAuthenticated
	}

	cn := c.conn(c.newSession())
	ok, err := authenticate(ctx, cn, login, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var resp struct {
		Connected bool `json:"connected"`
	}
	if err := cn.send(ctx, http.MethodPost, fmt.Sprintf("/projects/%d/connect", projectID), nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusForbidden || apiErr.NotFound()) {
			return nil, nil
		}
		return nil, err
	}
	if !resp.Connected {
		return nil, nil
	}
	return &Project{id: projectID, cn: cn}, nil
}

func (p *Project) path(format string, args ...interface{}) string {
	return fmt.Sprintf("/projects/%d", p.id) + fmt.Sprintf(format, args...)
}

// NewIncidents returns incidents created after since.
func (p *Project) NewIncidents(ctx context.Context, since time.Time) ([]types.Incident, error) {
	q := url.Values{"created_after": {since.UTC().Format(time.RFC3339)}}
	var out []types.Incident
	if err := p.cn.get(ctx, p.path("/incidents?%s", q.Encode()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Incident returns one incident.
func (p *Project) Incident(ctx context.Context, id int) (*types.Incident, error) {
	var out types.Incident
	if err := p.cn.get(ctx, p.path("/incidents/%d", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resolutions returns the comments attached to an incident.
func (p *Project) Resolutions(ctx context.Context, incidentID int) ([]types.Comment, error) {
	var out []types.Comment
	if err := p.cn.get(ctx, p.path("/incidents/%d/resolutions", incidentID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateIncident stores a new incident and returns it with its id.
func (p *Project) CreateIncident(ctx context.Context, inc *types.Incident) (*types.Incident, error) {
	var out types.Incident
	if err := p.cn.send(ctx, http.MethodPost, p.path("/incidents"), inc, &out); err != nil {
		return nil, err
	}
	if out.ID == nil {
		return nil, fmt.Errorf("spira: create incident: response did not include an id")
	}
	return &out, nil
}

// UpdateIncident saves an existing incident.
func (p *Project) UpdateIncident(ctx context.Context, inc *types.Incident) error {
	if inc.ID == nil {
		return fmt.Errorf("spira: update incident: missing id")
	}
	return p.cn.send(ctx, http.MethodPut, p.path("/incidents/%d", *inc.ID), inc, nil)
}

// AddResolutions attaches comments to incidents. An empty list is a no-op.
func (p *Project) AddResolutions(ctx context.Context, comments []types.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return p.cn.send(ctx, http.MethodPost, p.path("/incidents/resolutions"), comments, nil)
}

// CreateRelease stores a new release and returns it with its id.
func (p *Project) CreateRelease(ctx context.Context, r *types.Release) (*types.Release, error) {
	var out types.Release
	if err := p.cn.send(ctx, http.MethodPost, p.path("/releases"), r, &out); err != nil {
		return nil, err
	}
	if out.ID == nil {
		return nil, fmt.Errorf("spira: create release: response did not include an id")
	}
	return &out, nil
}

// CustomProperties lists the custom properties configured for an artifact type.
func (p *Project) CustomProperties(ctx context.Context, artifact types.ArtifactType) ([]types.CustomProperty, error) {
	var out []types.CustomProperty
	if err := p.cn.get(ctx, p.path("/custom-properties/%d", int(artifact)), &out); err != nil {
		return nil, err
	}
	return out, nil
}
