// Package logging configures the zerolog logger shared by the CLI, the sync
// engine and the HTTP clients.
//
//	log := logging.Default()
//	log.Info().Int("project", 4).Msg("connected")
//
// Console output is used when stderr is a terminal, JSON otherwise.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var defaultLogger = New(DefaultConfig())

// Config holds logger options.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error or off.
	Level string
	// Format is auto, console or json. Auto picks console on a terminal.
	Format string
	// Output defaults to stderr.
	Output  io.Writer
	NoColor bool
	// Trace forces debug level and adds caller information.
	Trace bool
}

// DefaultConfig reads CASESYNC_LOG_LEVEL and CASESYNC_LOG_FORMAT.
func DefaultConfig() Config {
	return Config{
		Level:   getEnvOrDefault("CASESYNC_LOG_LEVEL", "info"),
		Format:  getEnvOrDefault("CASESYNC_LOG_FORMAT", "auto"),
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// New builds a logger from cfg without touching the process default.
func New(cfg Config) zerolog.Logger {
	level := ParseLevel(cfg.Level)
	if cfg.Trace && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	logger := zerolog.New(writer(out, cfg)).
		Level(level).
		With().
		Timestamp().
		Logger()

	if cfg.Trace {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Configure replaces the process default logger.
func Configure(cfg Config) zerolog.Logger {
	logger := New(cfg)
	SetDefault(logger)
	return logger
}

// Default returns the process default logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault sets the default logger and zerolog's global logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
	log.Logger = logger
}

func writer(out io.Writer, cfg Config) io.Writer {
	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(out) {
			format = "console"
		}
	}
	if format == "console" || format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		}
	}
	return out
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	}
	if l, err := zerolog.ParseLevel(level); err == nil {
		return l
	}
	return zerolog.InfoLevel
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
