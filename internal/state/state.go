// Package state persists the sync watermark between passes in a small TOML
// file. The watermark is the start time of the last pass that did not abort.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/utils"
)

// DefaultFile is used when state.file is not configured.
const DefaultFile = "casesync-state.toml"

// State is the on-disk document. One file can hold several sync systems.
type State struct {
	Systems map[string]*System `toml:"systems"`
}

// System is the watermark and last result of one sync-system configuration.
type System struct {
	LastSync   *time.Time `toml:"last_sync,omitempty"`
	LastStatus string     `toml:"last_status,omitempty"`
	LastRun    *time.Time `toml:"last_run,omitempty"`
	Pushed     int        `toml:"pushed"`
	Pulled     int        `toml:"pulled"`
	Errors     int        `toml:"errors"`
	Warnings   int        `toml:"warnings"`
}

// Load reads the state file. A missing file yields an empty state.
func Load(path string) (*State, error) {
	st := &State{Systems: map[string]*System{}}
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	if st.Systems == nil {
		st.Systems = map[string]*System{}
	}
	return st, nil
}

// Save writes the state file atomically.
func (s *State) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return utils.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

func key(id int) string { return fmt.Sprintf("%d", id) }

// System returns the entry for a sync system, or nil if it never ran.
func (s *State) System(id int) *System {
	return s.Systems[key(id)]
}

// Since returns the watermark for a sync system; nil means first run.
func (s *State) Since(id int) *time.Time {
	if sys := s.System(id); sys != nil && sys.LastSync != nil {
		t := *sys.LastSync
		return &t
	}
	return nil
}

// Record stores the outcome of a pass. Dry runs and aborted passes keep the
// previous watermark; only the last-run fields change.
func (s *State) Record(id int, r *tracker.SyncResult) {
	sys := s.System(id)
	if sys == nil {
		sys = &System{}
		s.Systems[key(id)] = sys
	}
	started := r.StartedAt.UTC()
	sys.LastRun = &started
	sys.LastStatus = r.Status.String()
	sys.Pushed = r.Stats.Pushed
	sys.Pulled = r.Stats.Pulled
	sys.Errors = r.Stats.Errors
	sys.Warnings = len(r.Warnings)
	if r.Succeeded() && !r.DryRun {
		sys.LastSync = &started
	}
}
