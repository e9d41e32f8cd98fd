package tracker

import (
	"sync"
)

// SyncStats accumulates counts across every project of a pass.
type SyncStats struct {
	Projects        int `json:"projects"`         // Projects visited
	ProjectsSkipped int `json:"projects_skipped"` // Projects that could not be connected
	Pushed          int `json:"pushed"`           // Remote cases created from local incidents
	Pulled          int `json:"pulled"`           // Local incidents created or updated from remote cases
	Created         int `json:"created"`          // Records created on either side
	Updated         int `json:"updated"`          // Local incidents updated
	Skipped         int `json:"skipped"`          // Records skipped by policy or because already synced
	Errors          int `json:"errors"`           // Records that failed and were skipped
	Milestones      int `json:"milestones"`       // Remote milestones auto-created
	Releases        int `json:"releases"`         // Local releases auto-created
	Comments        int `json:"comments"`         // Comments appended to local incidents
}

// outcome labels one record in logs and the casesync.records metric.
type outcome string

const (
	outcomeCreated outcome = "created"
	outcomeUpdated outcome = "updated"
	outcomeSkipped outcome = "skipped"
	outcomeError   outcome = "error"
)

// passStats is shared by concurrently running projects.
type passStats struct {
	mu       sync.Mutex
	stats    SyncStats
	warnings []string
}

func (s *passStats) update(fn func(*SyncStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

func (s *passStats) warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

func (s *passStats) snapshot() (SyncStats, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, append([]string(nil), s.warnings...)
}

func (s *passStats) record(phase string, o outcome) {
	s.update(func(st *SyncStats) {
		switch o {
		case outcomeCreated:
			st.Created++
			if phase == phasePush {
				st.Pushed++
			} else {
				st.Pulled++
			}
		case outcomeUpdated:
			st.Updated++
			st.Pulled++
		case outcomeSkipped:
			st.Skipped++
		case outcomeError:
			st.Errors++
		}
	})
}
