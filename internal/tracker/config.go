package tracker

// Config holds the engine-level options of a connector.
type Config struct {
	LocalLogin     string
	LocalPassword  string
	RemoteLogin    string
	RemotePassword string

	// TimeOffsetHours widens the remote change window to absorb clock skew
	// between the two systems.
	TimeOffsetHours int

	// AutoMapUsers is carried for the connector configuration surface;
	// the engine does not create user mappings.
	AutoMapUsers bool

	// RichText keeps HTML in pushed descriptions instead of rendering plain text.
	RichText bool

	// GetNewItemsFromRemote allows unmapped remote cases to create local incidents.
	GetNewItemsFromRemote bool

	// RemoteName is used in generated text, e.g. "Empty description in FogBugz".
	RemoteName string

	// ReleaseVersionPrefix prefixes the version number of releases created
	// from remote milestones.
	ReleaseVersionPrefix string
}

// DefaultConfig returns the defaults used when a key is not configured.
func DefaultConfig() Config {
	return Config{
		GetNewItemsFromRemote: true,
		RemoteName:            "FogBugz",
		ReleaseVersionPrefix:  "FB-",
	}
}

func (c Config) remoteName() string {
	if c.RemoteName == "" {
		return "remote system"
	}
	return c.RemoteName
}
