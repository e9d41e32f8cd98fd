package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/casesync/casesync/internal/config"
	"github.com/casesync/casesync/internal/lockfile"
	"github.com/casesync/casesync/internal/logging"
	"github.com/casesync/casesync/internal/state"
	"github.com/casesync/casesync/internal/timeparsing"
	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync pass",
	Long: `Run one sync pass over every mapped project.

The pass covers changes since the last pass that did not abort, as recorded in
the state file. Use --since to override the window.

Examples:
  casesync sync                       # Incremental pass
  casesync sync --dry-run             # Log decisions without writing
  casesync sync --since -2d           # Changes from the last two days
  casesync sync --since "3 days ago"  # Same, in words
  casesync sync --watch 10m           # Pass every ten minutes until interrupted`,
	RunE: runSync,
}

func init() {
	addSyncFlags(syncCmd)
	rootCmd.AddCommand(syncCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Translate and log without creating or updating anything")
	cmd.Flags().String("since", "", "Override the watermark (-2d, \"3 days ago\", 2024-01-31, RFC3339)")
	cmd.Flags().Duration("watch", 0, "Repeat the pass at this interval until interrupted (bare --watch uses watch.interval)")
	cmd.Flags().Lookup("watch").NoOptDefVal = "0s"
	cmd.Flags().Int("concurrency", 0, "Projects synced at once (default from config)")
}

// syncRequest is a sync invocation after flag parsing.
type syncRequest struct {
	dryRun      bool
	since       *time.Time
	concurrency int
	interval    time.Duration
}

func parseSyncFlags(cmd *cobra.Command, c *config.Config, now time.Time) (syncRequest, error) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	sinceExpr, _ := cmd.Flags().GetString("since")
	watch, _ := cmd.Flags().GetDuration("watch")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	req := syncRequest{dryRun: dryRun, concurrency: c.Concurrency, interval: watch}
	if concurrency > 0 {
		req.concurrency = concurrency
	}
	if cmd.Flags().Changed("watch") && req.interval <= 0 {
		req.interval = c.WatchInterval
	}
	if sinceExpr != "" {
		t, err := timeparsing.ParseSince(sinceExpr, now)
		if err != nil {
			return req, err
		}
		req.since = &t
	}
	return req, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := loader.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	req, err := parseSyncFlags(cmd, cfg, time.Now())
	if err != nil {
		return err
	}

	if req.interval == 0 {
		result, err := syncOnce(rootCtx, cfg, req)
		if result != nil {
			printResult(result)
		}
		return err
	}
	return syncLoop(rootCtx, req)
}

// syncLoop repeats passes until the context ends. A config file change is
// picked up at the start of the next pass.
func syncLoop(ctx context.Context, req syncRequest) error {
	log := logging.FromContext(ctx)
	var (
		mu      sync.Mutex
		current = cfg
	)
	loader.Watch(func(c *config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring config change")
			return
		}
		mu.Lock()
		current = c
		mu.Unlock()
		log.Info().Str("file", c.File).Msg("Configuration reloaded")
	})

	log.Info().Dur("interval", req.interval).Msg("Watching for changes")
	ticker := time.NewTicker(req.interval)
	defer ticker.Stop()
	for {
		mu.Lock()
		c := current
		mu.Unlock()

		result, err := syncOnce(ctx, c, req)
		if result != nil {
			printResult(result)
		}
		if err != nil {
			log.Error().Err(err).Msg("Sync pass failed")
		}
		// --since applies to the first pass only; later passes follow the state file.
		req.since = nil

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// syncOnce runs a pass and records the outcome in the state file. The state
// file's run lock keeps a cron job and a watcher from pushing the same case
// twice.
func syncOnce(ctx context.Context, c *config.Config, req syncRequest) (*tracker.SyncResult, error) {
	if dir := filepath.Dir(c.StateFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	lock, err := lockfile.TryAcquire(lockfile.PathFor(c.StateFile))
	if err != nil {
		if errors.Is(err, lockfile.ErrLockBusy) {
			return nil, fmt.Errorf("another sync is running: %w", err)
		}
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	st, err := state.Load(c.StateFile)
	if err != nil {
		return nil, err
	}
	since := req.since
	if since == nil {
		since = st.Since(int(c.SyncSystemID))
	}

	conn, err := newConnector(ctx, c)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	engine := conn.engine(c.Tracker())
	if !jsonOutput {
		engine.OnMessage = func(msg string) { fmt.Println("  " + msg) }
		engine.OnWarning = func(msg string) { fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn(ui.IconWarn), msg) }
	}

	result, err := engine.Sync(ctx, tracker.SyncOptions{
		Since:       since,
		DryRun:      req.dryRun,
		Concurrency: req.concurrency,
	})
	if result != nil {
		st.Record(int(c.SyncSystemID), result)
		if serr := st.Save(c.StateFile); serr != nil {
			return result, errors.Join(err, fmt.Errorf("save state: %w", serr))
		}
	}
	return result, err
}

func printResult(r *tracker.SyncResult) {
	if jsonOutput {
		outputJSON(r)
		return
	}
	fmt.Println()
	ui.WriteResult(os.Stdout, r)
}
