package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casesync/casesync/internal/config"
	"github.com/casesync/casesync/internal/lockfile"
	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/state"
	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/types"
)

func TestParseSyncFlags(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := &config.Config{Concurrency: 2, WatchInterval: 5 * time.Minute}

	tests := []struct {
		name     string
		args     []string
		want     syncRequest
		wantFrom *time.Time
		wantErr  bool
	}{
		{name: "defaults", args: nil, want: syncRequest{concurrency: 2}},
		{name: "dry run", args: []string{"--dry-run", "--concurrency", "4"}, want: syncRequest{dryRun: true, concurrency: 4}},
		{name: "bare watch", args: []string{"--watch"}, want: syncRequest{concurrency: 2, interval: 5 * time.Minute}},
		{name: "watch interval", args: []string{"--watch=30s"}, want: syncRequest{concurrency: 2, interval: 30 * time.Second}},
		{name: "since", args: []string{"--since", "-2d"}, want: syncRequest{concurrency: 2}, wantFrom: ptrTime(now.AddDate(0, 0, -2))},
		{name: "future since", args: []string{"--since", "+1d"}, wantErr: true},
		{name: "garbage since", args: []string{"--since", "whenever"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "sync"}
			addSyncFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			got, err := parseSyncFlags(cmd, c, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantFrom != nil {
				require.NotNil(t, got.since)
				assert.True(t, got.since.Equal(*tt.wantFrom))
			} else {
				assert.Nil(t, got.since)
			}
			got.since = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestReadMappings(t *testing.T) {
	store := mapping.NewMemoryStore()
	store.SetProjectMappings(types.DataMapping{ProjectID: 1, InternalID: 1, ExternalKey: "10", Primary: true})
	store.SetUserMappings(types.DataMapping{InternalID: 5, ExternalKey: "50", Primary: true})
	require.NoError(t, store.AddArtifactMappings(context.Background(), types.ArtifactIncident,
		[]types.DataMapping{{ProjectID: 1, InternalID: 7, ExternalKey: "70", Primary: true}}))

	for table, want := range map[string]string{"projects": "10", "users": "50", "incidents": "70"} {
		rows, err := readMappings(context.Background(), store, table)
		require.NoError(t, err, table)
		require.Len(t, rows, 1, table)
		assert.Equal(t, want, rows[0].ExternalKey, table)
	}

	rows, err := readMappings(context.Background(), store, "releases")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = readMappings(context.Background(), store, "widgets")
	assert.ErrorContains(t, err, "unknown mapping table")
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, fmt.Sprintf("casesync version %s (%s)", Version, Build), versionString(""))
	assert.Contains(t, versionString("0123456789abcdef"), "0123456789ab)")
}

// fakeSystems serves just enough of both APIs for a pass with no projects.
// Local project 1 connects but cannot list its incidents.
func fakeSystems(t *testing.T) (localURL, remoteURL string) {
	t.Helper()
	const prefix = "/Services/v5_0/ImportExport.svc"
	local := http.NewServeMux()
	local.HandleFunc("POST "+prefix+"/authenticate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"authenticated": true}`)
	})
	local.HandleFunc("GET "+prefix+"/system/product-name", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": "SpiraTest"}`)
	})
	local.HandleFunc("GET "+prefix+"/system/web-server-url", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": "http://spira.test"}`)
	})
	local.HandleFunc("POST "+prefix+"/projects/1/connect", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"connected": true}`)
	})
	local.HandleFunc("GET "+prefix+"/projects/1/custom-properties/3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	})
	local.HandleFunc("GET "+prefix+"/projects/1/incidents", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message": "incident listing unavailable"}`)
	})
	ls := httptest.NewServer(local)
	t.Cleanup(ls.Close)

	remote := http.NewServeMux()
	remote.HandleFunc("GET /api.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<response><version>8</version><minversion>1</minversion><url>api.asp?</url></response>`)
	})
	remote.HandleFunc("POST /api.asp", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("cmd") == "logon" {
			fmt.Fprint(w, `<response><token>tok</token></response>`)
			return
		}
		fmt.Fprint(w, `<response></response>`)
	})
	rs := httptest.NewServer(remote)
	t.Cleanup(rs.Close)
	return ls.URL, rs.URL
}

func TestSyncOnceRecordsWatermark(t *testing.T) {
	logger = zerolog.Nop()
	localURL, remoteURL := fakeSystems(t)
	dir := t.TempDir()
	c := &config.Config{
		SyncSystemID:   3,
		Local:          config.Endpoint{URL: localURL, Login: "fred", Password: "secret"},
		Remote:         config.Endpoint{URL: remoteURL, Login: "fred@example.com", Password: "pw"},
		HTTPTimeout:    10 * time.Second,
		KeepAlive:      true,
		MappingBackend: config.BackendFile,
		MappingFile:    filepath.Join(dir, "mappings.yaml"),
		StateFile:      filepath.Join(dir, "state.toml"),
	}

	result, err := syncOnce(context.Background(), c, syncRequest{concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusSuccess, result.Status)

	st, err := state.Load(c.StateFile)
	require.NoError(t, err)
	since := st.Since(3)
	require.NotNil(t, since)
	assert.True(t, since.Equal(result.StartedAt.UTC()))

	// A dry run reads the watermark but does not move it.
	dry, err := syncOnce(context.Background(), c, syncRequest{dryRun: true})
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	st, err = state.Load(c.StateFile)
	require.NoError(t, err)
	assert.True(t, st.Since(3).Equal(*since))

	// A project whose push phase fails aborts the pass; the watermark stays.
	require.NoError(t, os.WriteFile(c.MappingFile, []byte(
		"projects:\n  - {project_id: 0, internal_id: 1, external_key: \"10\", primary: true}\n"), 0o600))
	failed, err := syncOnce(context.Background(), c, syncRequest{concurrency: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incident listing unavailable")
	assert.Equal(t, tracker.StatusError, failed.Status)
	st, err = state.Load(c.StateFile)
	require.NoError(t, err)
	assert.True(t, st.Since(3).Equal(*since))
	assert.Equal(t, "error", st.System(3).LastStatus)
}

func TestSyncOnceRefusesWhileLocked(t *testing.T) {
	logger = zerolog.Nop()
	c := &config.Config{StateFile: filepath.Join(t.TempDir(), "state", "casesync-state.toml")}
	require.NoError(t, os.MkdirAll(filepath.Dir(c.StateFile), 0o755))

	held, err := lockfile.TryAcquire(lockfile.PathFor(c.StateFile))
	require.NoError(t, err)
	defer held.Release()

	result, err := syncOnce(context.Background(), c, syncRequest{concurrency: 1})
	assert.Nil(t, result)
	require.ErrorIs(t, err, lockfile.ErrLockBusy)
	assert.Contains(t, err.Error(), "another sync is running")
}

func TestOpenStoreBackends(t *testing.T) {
	dir := t.TempDir()
	store, closer, err := openStore(context.Background(), &config.Config{
		MappingBackend: config.BackendFile,
		MappingFile:    filepath.Join(dir, "m.yaml"),
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &mapping.FileStore{}, store)

	_, _, err = openStore(context.Background(), &config.Config{MappingBackend: "redis"}, nil)
	assert.Error(t, err)

	_, _, err = openStore(context.Background(), &config.Config{MappingBackend: config.BackendMySQL, MappingDSN: "not a dsn"}, nil)
	assert.Error(t, err)
}
