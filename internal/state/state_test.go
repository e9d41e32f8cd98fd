package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casesync/casesync/internal/tracker"
)

func TestLoadMissingFile(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Nil(t, st.Since(1))
}

func TestRecordAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", DefaultFile)
	started := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	st, err := Load(path)
	require.NoError(t, err)
	st.Record(4, &tracker.SyncResult{
		Status:    tracker.StatusWarning,
		StartedAt: started,
		Stats:     tracker.SyncStats{Pushed: 2, Pulled: 3, Errors: 1},
		Warnings:  []string{"skipped case 12"},
	})
	require.NoError(t, st.Save(path))

	again, err := Load(path)
	require.NoError(t, err)
	since := again.Since(4)
	require.NotNil(t, since)
	assert.True(t, since.Equal(started))

	sys := again.System(4)
	require.NotNil(t, sys)
	assert.Equal(t, "warning", sys.LastStatus)
	assert.Equal(t, 2, sys.Pushed)
	assert.Equal(t, 3, sys.Pulled)
	assert.Equal(t, 1, sys.Errors)
	assert.Equal(t, 1, sys.Warnings)
	assert.Nil(t, again.Since(5))
}

func TestRecordKeepsWatermark(t *testing.T) {
	first := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	tests := []struct {
		name   string
		result tracker.SyncResult
	}{
		{"aborted pass", tracker.SyncResult{Status: tracker.StatusError, StartedAt: later}},
		{"dry run", tracker.SyncResult{Status: tracker.StatusSuccess, StartedAt: later, DryRun: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &State{Systems: map[string]*System{}}
			st.Record(1, &tracker.SyncResult{Status: tracker.StatusSuccess, StartedAt: first})
			st.Record(1, &tt.result)

			assert.True(t, st.Since(1).Equal(first))
			assert.True(t, st.System(1).LastRun.Equal(later))
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("systems = [[["), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse state")
}
