// Package types defines the data structures exchanged between the local
// incident tracker, the remote case tracker and the mapping store.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Unset marks an integer field on a remote case or milestone that carries no value.
// The remote API uses -1 on the wire for the same purpose.
const Unset = -1

// SyncSystemID identifies one connector configuration in the mapping store.
type SyncSystemID int

// ArtifactType scopes artifact and custom-property mapping tables.
// Values match the local system's artifact type ids.
type ArtifactType int

const (
	ArtifactIncident ArtifactType = 3
	ArtifactRelease  ArtifactType = 4
)

func (a ArtifactType) String() string {
	switch a {
	case ArtifactIncident:
		return "incident"
	case ArtifactRelease:
		return "release"
	default:
		return fmt.Sprintf("artifact(%d)", int(a))
	}
}

// ParseArtifactType accepts "incident" or "release" (case-insensitive).
func ParseArtifactType(s string) (ArtifactType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incident", "incidents":
		return ArtifactIncident, nil
	case "release", "releases":
		return ArtifactRelease, nil
	}
	return 0, fmt.Errorf("unknown artifact type %q", s)
}

// FieldKind scopes field-value mapping tables.
type FieldKind int

const (
	FieldSeverity FieldKind = 1
	FieldPriority FieldKind = 2
	FieldStatus   FieldKind = 3
	FieldType     FieldKind = 4
)

func (f FieldKind) String() string {
	switch f {
	case FieldSeverity:
		return "severity"
	case FieldPriority:
		return "priority"
	case FieldStatus:
		return "status"
	case FieldType:
		return "type"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// ParseFieldKind accepts severity, priority, status or type (case-insensitive).
func ParseFieldKind(s string) (FieldKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "severity":
		return FieldSeverity, nil
	case "priority":
		return FieldPriority, nil
	case "status":
		return FieldStatus, nil
	case "type":
		return FieldType, nil
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// CustomPropertyType distinguishes free-text from list custom properties.
type CustomPropertyType int

const (
	CustomPropertyText CustomPropertyType = 1
	CustomPropertyList CustomPropertyType = 2
)

func (c CustomPropertyType) String() string {
	switch c {
	case CustomPropertyText:
		return "text"
	case CustomPropertyList:
		return "list"
	default:
		return fmt.Sprintf("custom(%d)", int(c))
	}
}

// DataMapping is one correspondence between a local entity (by integer id,
// scoped to a project) and a remote entity (by string key).
//
// Primary disambiguates reverse lookups: when several internal ids share an
// external key only the primary row is used to resolve external -> internal.
type DataMapping struct {
	ProjectID   int    `json:"project_id" yaml:"project_id"`
	InternalID  int    `json:"internal_id" yaml:"internal_id"`
	ExternalKey string `json:"external_key" yaml:"external_key"`
	Primary     bool   `json:"primary" yaml:"primary"`
}

func (m DataMapping) String() string {
	return fmt.Sprintf("PR%d:%d<->%s", m.ProjectID, m.InternalID, m.ExternalKey)
}

// CustomProperty is a project-configured extra field on local incidents.
// Alias holds the external field name the property is mapped to, if any.
type CustomProperty struct {
	ID    int                `json:"id"`
	Name  string             `json:"name"` // slot name, e.g. "TEXT_03"
	Type  CustomPropertyType `json:"type"`
	Alias string             `json:"alias,omitempty"`
}

// Incident is a local-side record.
type Incident struct {
	ID        *int `json:"id,omitempty"` // nil until created in the local system
	ProjectID int  `json:"project_id"`

	Name        string `json:"name"`
	Description string `json:"description"`

	StatusID   int  `json:"status_id"`
	TypeID     int  `json:"type_id"`
	PriorityID *int `json:"priority_id,omitempty"`
	SeverityID *int `json:"severity_id,omitempty"`

	OwnerID    *int   `json:"owner_id,omitempty"`
	OpenerID   *int   `json:"opener_id,omitempty"`
	OpenerName string `json:"opener_name,omitempty"`

	DetectedReleaseID            *int   `json:"detected_release_id,omitempty"`
	DetectedReleaseVersionNumber string `json:"detected_release_version_number,omitempty"`
	ResolvedReleaseID            *int   `json:"resolved_release_id,omitempty"`
	ResolvedReleaseVersionNumber string `json:"resolved_release_version_number,omitempty"`

	EstimatedEffort *int `json:"estimated_effort,omitempty"` // minutes

	CreationDate   time.Time  `json:"creation_date"`
	LastUpdateDate time.Time  `json:"last_update_date"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	ClosedDate     *time.Time `json:"closed_date,omitempty"`

	Custom CustomSlots `json:"custom_properties"`
}

// IsNew reports whether the incident has not yet been created locally.
func (i *Incident) IsNew() bool {
	return i.ID == nil
}

// Comment is a resolution/comment attached to a local incident.
type Comment struct {
	IncidentID   int       `json:"incident_id"`
	CreatorID    int       `json:"creator_id"`
	CreationDate time.Time `json:"creation_date"`
	Text         string    `json:"text"`
}

// Release is the local counterpart of a remote milestone.
type Release struct {
	ID             *int      `json:"id,omitempty"`
	ProjectID      int       `json:"project_id"`
	Name           string    `json:"name"`
	VersionNumber  string    `json:"version_number"`
	Active         bool      `json:"active"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	CreatorID      *int      `json:"creator_id,omitempty"`
	CreationDate   time.Time `json:"creation_date"`
	ResourceCount  int       `json:"resource_count"`
	DaysNonWorking int       `json:"days_non_working"`
}

// Case is a remote-side record. Integer fields use Unset for "no value".
//
// Description can only be written when the case is created: the remote system
// folds every later edit into its latest-event summary, which is what
// Description holds when a case is read back.
type Case struct {
	ID      int
	Project int

	Title       string
	Description string

	Status           int
	Category         int
	Priority         int
	PersonAssignedTo int
	PersonOpenedBy   int
	FixFor           int
	Area             int
	HrsCurrEst       int

	Version  string
	Computer string

	Due         *time.Time
	Closed      *time.Time
	LastUpdated *time.Time
}

// NewCase returns a case with every integer field Unset.
func NewCase() *Case {
	return &Case{
		ID:               Unset,
		Project:          Unset,
		Status:           Unset,
		Category:         Unset,
		Priority:         Unset,
		PersonAssignedTo: Unset,
		PersonOpenedBy:   Unset,
		FixFor:           Unset,
		Area:             Unset,
		HrsCurrEst:       Unset,
	}
}

// Milestone is the remote release entity ("FixFor").
type Milestone struct {
	ID          int
	Project     int
	Name        string
	Assignable  bool
	ReleaseDate time.Time
}

// NewMilestone returns an assignable milestone with Unset ids.
func NewMilestone() *Milestone {
	return &Milestone{ID: Unset, Project: Unset, Assignable: true}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

// DerefInt returns *p, or def when p is nil.
func DerefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
