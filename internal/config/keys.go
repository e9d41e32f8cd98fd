package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Key describes one configuration key.
type Key struct {
	Name        string // Dotted key, e.g. "remote.url"
	Description string
	Default     string // Empty = no default
	Required    bool
	Secret      bool // Masked by `casesync status`
	Validate    func(string) error
}

// EnvVar returns the environment variable that overrides the key.
func (k Key) EnvVar() string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(k.Name))
}

// Keys lists every key the loader understands.
var Keys = []Key{
	{
		Name:        "sync_system_id",
		Description: "Connector configuration id that scopes every mapping table",
		Required:    true,
		Validate:    validatePositiveInt,
	},
	// Local incident tracker
	{
		Name:        "local.url",
		Description: "Web root of the local incident tracker",
		Required:    true,
		Validate:    validateURL,
	},
	{
		Name:        "local.login",
		Description: "Local tracker login",
		Required:    true,
	},
	{
		Name:        "local.password",
		Description: "Local tracker password or API key",
		Secret:      true,
	},
	// Remote case tracker
	{
		Name:        "remote.url",
		Description: "Base URL of the remote case tracker",
		Required:    true,
		Validate:    validateURL,
	},
	{
		Name:        "remote.login",
		Description: "Remote tracker login (email)",
		Required:    true,
	},
	{
		Name:        "remote.password",
		Description: "Remote tracker password",
		Secret:      true,
	},
	// Engine
	{
		Name:        "time_offset_hours",
		Description: "Hours subtracted from the watermark when searching remote changes",
		Default:     "0",
		Validate:    validateInt,
	},
	{
		Name:        "auto_map_users",
		Description: "Carried for connector compatibility; users are mapped by hand",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Name:        "rich_text",
		Description: "Keep HTML in case descriptions instead of plain text",
		Default:     "false",
		Validate:    validateBool,
	},
	{
		Name:        "get_new_items_from_remote",
		Description: "Create local incidents for unmapped remote cases",
		Default:     "true",
		Validate:    validateBool,
	},
	{
		Name:        "concurrency",
		Description: "Projects synced at once",
		Default:     "1",
		Validate:    validatePositiveInt,
	},
	// HTTP
	{
		Name:        "keep_alive",
		Description: "Reuse connections to the remote tracker",
		Default:     "true",
		Validate:    validateBool,
	},
	{
		Name:        "verify_certificate",
		Description: "Verify the remote tracker's TLS certificate",
		Default:     "true",
		Validate:    validateBool,
	},
	{
		Name:        "http_timeout",
		Description: "Timeout of a single HTTP request",
		Default:     "20m",
		Validate:    validateDuration,
	},
	// Storage
	{
		Name:        "mapping.backend",
		Description: "Where mappings live: spira, file or mysql",
		Default:     BackendSpira,
		Validate:    validateBackend,
	},
	{
		Name:        "mapping.file",
		Description: "YAML mapping file for the file backend",
		Default:     "casesync-mappings.yaml",
	},
	{
		Name:        "mapping.dsn",
		Description: "MySQL DSN for the mysql backend",
		Secret:      true,
	},
	{
		Name:        "state.file",
		Description: "TOML file holding the sync watermark",
		Default:     "casesync-state.toml",
	},
	{
		Name:        "watch.interval",
		Description: "Delay between passes in watch mode",
		Default:     "5m",
		Validate:    validateDuration,
	},
	// Logging
	{
		Name:        "log.level",
		Description: "Log level (trace, debug, info, warn, error)",
		Default:     "info",
		Validate:    validateLogLevel,
	},
	{
		Name:        "log.format",
		Description: "Log format (auto, console, json)",
		Default:     "auto",
		Validate:    validateLogFormat,
	},
}

var keyMap map[string]*Key

func init() {
	keyMap = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyMap[Keys[i].Name] = &Keys[i]
	}
}

// LookupKey returns the definition of a known key, or nil.
func LookupKey(name string) *Key {
	return keyMap[name]
}

// ValidateKey checks that the key is known and the value acceptable.
func ValidateKey(name, value string) error {
	k := keyMap[name]
	if k == nil {
		return fmt.Errorf("unknown config key %q", name)
	}
	if k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
	}
	return nil
}

func validateInt(value string) error {
	if _, err := strconv.Atoi(value); err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	return nil
}

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number, got %q", value)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false, got %q", value)
	}
	return nil
}

func validateDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration like 30s or 5m, got %q", value)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", value)
	}
	return nil
}

func validateURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("must be an http(s) URL, got %q", value)
	}
	return nil
}

func validateBackend(value string) error {
	switch value {
	case BackendSpira, BackendFile, BackendMySQL:
		return nil
	default:
		return fmt.Errorf("must be one of: %s, %s, %s; got %q", BackendSpira, BackendFile, BackendMySQL, value)
	}
}

func validateLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error", "off":
		return nil
	default:
		return fmt.Errorf("must be one of: trace, debug, info, warn, error, off; got %q", value)
	}
}

func validateLogFormat(value string) error {
	switch strings.ToLower(value) {
	case "auto", "console", "json":
		return nil
	default:
		return fmt.Errorf("must be one of: auto, console, json; got %q", value)
	}
}
