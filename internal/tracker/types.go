// Package tracker reconciles incidents held in a local incident tracker with
// cases held in a remote case tracker.
//
// A sync pass visits every mapped project and runs two phases: local incidents
// created since the last pass are pushed as new remote cases, then remote cases
// edited since the last pass are pulled into local incidents. Identity between
// the two sides is held in a mapping.Store; field values are translated through
// its per-field tables.
package tracker

import (
	"encoding/json"
	"time"
)

// Status is the overall outcome of a pass.
type Status int

const (
	// StatusSuccess means every project and record synced cleanly.
	StatusSuccess Status = iota
	// StatusWarning means the pass completed but some records or projects were
	// skipped. It is treated as success: the watermark advances.
	StatusWarning
	// StatusError means the pass aborted.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	default:
		return "error"
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// SyncOptions configures one pass.
type SyncOptions struct {
	// Since is the watermark of the previous successful pass; nil on first run.
	Since *time.Time
	// DryRun translates and logs decisions without creating or updating
	// anything on either side and without writing mappings.
	DryRun bool
	// Concurrency bounds how many projects sync at once. Values below 2 run
	// projects sequentially. Records within a project are always sequential.
	Concurrency int
}

// SyncResult is the complete result of a pass.
type SyncResult struct {
	Status    Status    `json:"status"`
	Stats     SyncStats `json:"stats"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Error     string    `json:"error,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Succeeded reports whether the watermark should advance to StartedAt.
func (r *SyncResult) Succeeded() bool {
	return r.Status != StatusError
}
