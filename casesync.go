// Package casesync exposes the sync engine for programs that embed it with
// their own local or remote system implementations.
//
// The casesync command wires the engine to the bundled HTTP clients; embedders
// supply any LocalSystem, RemoteSystem and mapping Store.
package casesync

import (
	"github.com/rs/zerolog"

	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/types"
)

// Records exchanged between the two systems
type (
	Incident    = types.Incident
	Comment     = types.Comment
	Release     = types.Release
	Case        = types.Case
	Milestone   = types.Milestone
	DataMapping = types.DataMapping
)

// Engine and its contracts
type (
	Engine       = tracker.Engine
	Config       = tracker.Config
	SyncOptions  = tracker.SyncOptions
	SyncResult   = tracker.SyncResult
	SyncStats    = tracker.SyncStats
	LocalSystem  = tracker.LocalSystem
	LocalProject = tracker.LocalProject
	RemoteSystem = tracker.RemoteSystem
	Store        = mapping.Store
)

// Pass outcomes
const (
	StatusSuccess = tracker.StatusSuccess
	StatusWarning = tracker.StatusWarning
	StatusError   = tracker.StatusError
)

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return tracker.DefaultConfig()
}

// NewEngine creates a sync engine.
func NewEngine(local LocalSystem, remote RemoteSystem, store Store, cfg Config, logger zerolog.Logger) *Engine {
	return tracker.NewEngine(local, remote, store, cfg, logger)
}

// NewMemoryStore returns an in-process mapping store, mostly useful in tests.
func NewMemoryStore() *mapping.MemoryStore {
	return mapping.NewMemoryStore()
}

// OpenFileStore opens (or creates on first write) a YAML mapping file.
func OpenFileStore(path string) (Store, error) {
	fs, err := mapping.OpenFileStore(path)
	if err != nil {
		return nil, err
	}
	return fs, nil
}
