// Package config loads the connector configuration from a casesync.yaml (or
// .toml/.json) file, CASESYNC_* environment variables and .env files.
//
// Precedence, highest first: command-line flags (bound by the caller),
// environment, .env files, config file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/types"
)

// EnvPrefix prefixes every environment override, e.g. CASESYNC_REMOTE_URL.
const EnvPrefix = "CASESYNC"

// Mapping store backends.
const (
	BackendSpira = "spira"
	BackendFile  = "file"
	BackendMySQL = "mysql"
)

// Endpoint is one side of the sync.
type Endpoint struct {
	URL      string
	Login    string
	Password string
}

// Config is the resolved configuration.
type Config struct {
	SyncSystemID types.SyncSystemID
	Local        Endpoint
	Remote       Endpoint

	TimeOffsetHours       int
	AutoMapUsers          bool
	RichText              bool
	GetNewItemsFromRemote bool
	Concurrency           int

	KeepAlive         bool
	VerifyCertificate bool
	HTTPTimeout       time.Duration

	MappingBackend string
	MappingFile    string
	MappingDSN     string
	StateFile      string
	WatchInterval  time.Duration

	LogLevel  string
	LogFormat string

	// File is the config file that was read, empty if none.
	File string
}

// Tracker returns the engine options.
func (c *Config) Tracker() tracker.Config {
	tc := tracker.DefaultConfig()
	tc.LocalLogin = c.Local.Login
	tc.LocalPassword = c.Local.Password
	tc.RemoteLogin = c.Remote.Login
	tc.RemotePassword = c.Remote.Password
	tc.TimeOffsetHours = c.TimeOffsetHours
	tc.AutoMapUsers = c.AutoMapUsers
	tc.RichText = c.RichText
	tc.GetNewItemsFromRemote = c.GetNewItemsFromRemote
	return tc
}

// Loader owns a viper instance. Reads are serialized so a watched reload
// cannot race a caller.
type Loader struct {
	mu sync.Mutex
	v  *viper.Viper
}

// NewLoader prepares a loader. An empty path searches for casesync.* in the
// working directory and $HOME/.config/casesync.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range Keys {
		if k.Default != "" {
			v.SetDefault(k.Name, k.Default)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("casesync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "casesync"))
		}
	}
	return &Loader{v: v}
}

// BindFlag lets a command-line flag override a key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v.BindPFlag(key, flag)
}

// Load reads .env files and the config file and resolves every key. A missing
// config file is not an error unless it was named explicitly.
func (l *Loader) Load() (*Config, error) {
	loadEnvFiles()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.build(), nil
}

// loadEnvFiles loads .env then .env.local. Existing variables win.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

func (l *Loader) build() *Config {
	v := l.v
	return &Config{
		SyncSystemID: types.SyncSystemID(v.GetInt("sync_system_id")),
		Local: Endpoint{
			URL:      v.GetString("local.url"),
			Login:    v.GetString("local.login"),
			Password: v.GetString("local.password"),
		},
		Remote: Endpoint{
			URL:      v.GetString("remote.url"),
			Login:    v.GetString("remote.login"),
			Password: v.GetString("remote.password"),
		},
		TimeOffsetHours:       v.GetInt("time_offset_hours"),
		AutoMapUsers:          v.GetBool("auto_map_users"),
		RichText:              v.GetBool("rich_text"),
		GetNewItemsFromRemote: v.GetBool("get_new_items_from_remote"),
		Concurrency:           v.GetInt("concurrency"),
		KeepAlive:             v.GetBool("keep_alive"),
		VerifyCertificate:     v.GetBool("verify_certificate"),
		HTTPTimeout:           v.GetDuration("http_timeout"),
		MappingBackend:        v.GetString("mapping.backend"),
		MappingFile:           v.GetString("mapping.file"),
		MappingDSN:            v.GetString("mapping.dsn"),
		StateFile:             v.GetString("state.file"),
		WatchInterval:         v.GetDuration("watch.interval"),
		LogLevel:              v.GetString("log.level"),
		LogFormat:             v.GetString("log.format"),
		File:                  v.ConfigFileUsed(),
	}
}

// Validate reports every missing required key and invalid value.
func (l *Loader) Validate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, k := range Keys {
		value := strings.TrimSpace(l.v.GetString(k.Name))
		if value == "" {
			if k.Required {
				errs = append(errs, fmt.Errorf("%s is required (set it in the config file or %s)", k.Name, k.EnvVar()))
			}
			continue
		}
		if err := ValidateKey(k.Name, value); err != nil {
			errs = append(errs, err)
		}
	}
	if l.v.GetString("mapping.backend") == BackendMySQL && l.v.GetString("mapping.dsn") == "" {
		errs = append(errs, fmt.Errorf("mapping.dsn is required when mapping.backend is %s", BackendMySQL))
	}
	return errors.Join(errs...)
}

// Setting is one resolved key for display.
type Setting struct {
	Key   string
	Value string
}

// Settings returns every key with secrets masked.
func (l *Loader) Settings() []Setting {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Setting, 0, len(Keys))
	for _, k := range Keys {
		value := l.v.GetString(k.Name)
		if k.Secret && value != "" {
			value = "********"
		}
		out = append(out, Setting{Key: k.Name, Value: value})
	}
	return out
}

// Watch calls onChange with the reloaded configuration whenever the config
// file changes. A reload that fails validation is passed as an error and the
// caller keeps its previous configuration.
func (l *Loader) Watch(onChange func(*Config, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := l.Validate(); err != nil {
			onChange(nil, fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		l.mu.Lock()
		cfg := l.build()
		l.mu.Unlock()
		onChange(cfg, nil)
	})
	l.v.WatchConfig()
}
