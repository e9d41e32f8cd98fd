package tracker

import (
	"context"
	"time"

	"github.com/casesync/casesync/internal/types"
)

// LocalSystem is the incident tracker that owns the mapping tables.
type LocalSystem interface {
	// Authenticate opens a session. A false result without error means the
	// credentials were rejected.
	Authenticate(ctx context.Context, login, password string) (bool, error)

	// ConnectToProject returns a session scoped to one project.
	// Returns nil, nil if the server refused the connection.
	ConnectToProject(ctx context.Context, projectID int) (LocalProject, error)

	// ProductName is the display name used in back-link headers and messages.
	ProductName(ctx context.Context) (string, error)

	// BaseURL is the web root used to build incident links.
	BaseURL(ctx context.Context) (string, error)
}

// LocalProject is a project-scoped session on the local system. Sessions are
// not shared between projects, so projects can sync concurrently.
type LocalProject interface {
	// NewIncidents returns incidents created after since.
	NewIncidents(ctx context.Context, since time.Time) ([]types.Incident, error)
	Incident(ctx context.Context, id int) (*types.Incident, error)
	Resolutions(ctx context.Context, incidentID int) ([]types.Comment, error)

	// CreateIncident returns the stored incident with its ID populated.
	CreateIncident(ctx context.Context, incident *types.Incident) (*types.Incident, error)
	UpdateIncident(ctx context.Context, incident *types.Incident) error
	AddResolutions(ctx context.Context, comments []types.Comment) error

	// CreateRelease returns the stored release with its ID populated.
	CreateRelease(ctx context.Context, release *types.Release) (*types.Release, error)

	CustomProperties(ctx context.Context, artifact types.ArtifactType) ([]types.CustomProperty, error)
}

// RemoteSystem is the case tracker on the other side of the sync.
type RemoteSystem interface {
	// VerifyAPI reports whether the server speaks a compatible API version.
	VerifyAPI(ctx context.Context) (bool, error)
	Logon(ctx context.Context, login, password string) error
	Logoff(ctx context.Context) error

	Case(ctx context.Context, id int) (*types.Case, error)

	// SearchChangedCases returns cases of projectID edited since the given time.
	SearchChangedCases(ctx context.Context, projectID int, since time.Time) ([]types.Case, error)

	// CreateCase returns the created case with its ID populated.
	CreateCase(ctx context.Context, c *types.Case) (*types.Case, error)

	// CreateMilestone returns the created milestone with its ID populated.
	CreateMilestone(ctx context.Context, m *types.Milestone) (*types.Milestone, error)

	// Milestone returns nil, nil when the milestone does not exist.
	Milestone(ctx context.Context, id int) (*types.Milestone, error)
}
