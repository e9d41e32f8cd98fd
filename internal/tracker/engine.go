package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/telemetry"
	"github.com/casesync/casesync/internal/types"
)

const (
	phasePush = "push"
	phasePull = "pull"
)

// firstRunEpoch is the watermark used when no pass has completed yet.
var firstRunEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Engine runs sync passes between a local incident tracker and a remote case
// tracker. An Engine holds no per-pass state and may run repeated passes.
type Engine struct {
	Local  LocalSystem
	Remote RemoteSystem
	Store  mapping.Store
	Config Config
	Logger zerolog.Logger

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)

	now         func() time.Time
	instruments *telemetry.SyncInstruments
}

// NewEngine creates an engine for the given systems and mapping store.
func NewEngine(local LocalSystem, remote RemoteSystem, store mapping.Store, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		Local:       local,
		Remote:      remote,
		Store:       store,
		Config:      cfg,
		Logger:      logger,
		now:         time.Now,
		instruments: telemetry.NewSyncInstruments(),
	}
}

// passContext is shared read-only state for one pass plus its accumulators.
type passContext struct {
	opts        SyncOptions
	since       time.Time
	productName string
	baseURL     string
	users       []types.DataMapping
	stats       *passStats
}

// Sync performs one pass over every mapped project.
//
// Authentication, remote API compatibility, remote logon, non-numeric project
// keys, mapping-store failures, a failed phase and cancellation abort the pass
// with StatusError. A project that cannot be connected is skipped; failing
// records are logged and skipped. Either yields StatusWarning.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if e.instruments == nil {
		e.instruments = telemetry.NewSyncInstruments()
	}
	start := e.clock()
	result := &SyncResult{StartedAt: start, DryRun: opts.DryRun}

	ctx, span := e.instruments.Start(ctx, "pass", attribute.Bool("dry_run", opts.DryRun))
	pass := &passContext{opts: opts, since: firstRunEpoch, stats: &passStats{}}
	if opts.Since != nil {
		pass.since = *opts.Since
	}

	err := e.runPass(ctx, pass)
	if err == nil {
		err = ctx.Err()
	}

	result.Stats, result.Warnings = pass.stats.snapshot()
	result.Duration = e.clock().Sub(start).Round(time.Millisecond).String()
	switch {
	case err != nil:
		result.Status = StatusError
		result.Error = err.Error()
		e.Logger.Error().Err(err).Msg("Sync pass aborted")
	case result.Stats.Errors > 0 || result.Stats.ProjectsSkipped > 0 || len(result.Warnings) > 0:
		result.Status = StatusWarning
	default:
		result.Status = StatusSuccess
	}

	e.instruments.PassDone(ctx, start, result.Status.String())
	e.instruments.End(span, err)
	e.Logger.Info().
		Str("status", result.Status.String()).
		Int("pushed", result.Stats.Pushed).
		Int("pulled", result.Stats.Pulled).
		Int("errors", result.Stats.Errors).
		Str("duration", result.Duration).
		Msg("Sync pass finished")
	return result, err
}

func (e *Engine) runPass(ctx context.Context, pass *passContext) error {
	var err error
	pass.productName, err = e.Local.ProductName(ctx)
	if err != nil {
		return fmt.Errorf("get product name: %w", err)
	}

	ok, err := e.Local.Authenticate(ctx, e.Config.LocalLogin, e.Config.LocalPassword)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAuthentication, pass.productName, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s rejected the credentials", ErrAuthentication, pass.productName)
	}

	pass.baseURL, err = e.Local.BaseURL(ctx)
	if err != nil {
		return fmt.Errorf("get base url: %w", err)
	}

	projects, err := e.Store.ProjectMappings(ctx)
	if err != nil {
		return fmt.Errorf("load project mappings: %w", err)
	}
	pass.users, err = e.Store.UserMappings(ctx)
	if err != nil {
		return fmt.Errorf("load user mappings: %w", err)
	}

	ok, err = e.Remote.VerifyAPI(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleAPI, err)
	}
	if !ok {
		return ErrIncompatibleAPI
	}
	if err := e.Remote.Logon(ctx, e.Config.RemoteLogin, e.Config.RemotePassword); err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteLogon, err)
	}
	defer func() {
		// Logoff must run even when the pass context was cancelled.
		if err := e.Remote.Logoff(context.WithoutCancel(ctx)); err != nil {
			e.Logger.Warn().Err(err).Msg("Remote logoff failed")
		}
	}()

	targets := make([]projectTarget, 0, len(projects))
	for _, pm := range projects {
		res := mapping.ParseNumericKey(pm.ExternalKey)
		if res.Outcome != mapping.Found {
			return fmt.Errorf("%w: project %d maps to %q", ErrNonNumericProject, pm.InternalID, pm.ExternalKey)
		}
		targets = append(targets, projectTarget{projectID: pm.InternalID, remoteProjectID: res.Value})
	}

	e.msg("Syncing %d project(s) since %s", len(targets), pass.since.Format(time.RFC3339))

	if pass.opts.Concurrency < 2 {
		for _, t := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.syncProject(ctx, pass, t); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pass.opts.Concurrency)
	for _, t := range targets {
		g.Go(func() error {
			return e.syncProject(gctx, pass, t)
		})
	}
	return g.Wait()
}

type projectTarget struct {
	projectID       int
	remoteProjectID int
}

// syncProject runs both phases for one project. Only errors that should abort
// the whole pass are returned.
func (e *Engine) syncProject(ctx context.Context, pass *passContext, t projectTarget) (err error) {
	log := e.Logger.With().Int("project", t.projectID).Int("remote_project", t.remoteProjectID).Logger()
	ctx, span := e.instruments.Start(ctx, "project",
		attribute.Int("project", t.projectID),
		attribute.Int("remote_project", t.remoteProjectID),
	)
	defer func() { e.instruments.End(span, err) }()

	pass.stats.update(func(s *SyncStats) { s.Projects++ })

	session, err := e.Local.ConnectToProject(ctx, t.projectID)
	if err != nil || session == nil {
		if err == nil {
			err = errors.New("connection refused")
		}
		e.skipProject(pass, log, t, fmt.Sprintf("unable to connect to %s project, check that the login has the appropriate permissions", pass.productName), err)
		return nil
	}

	p := &projectPass{
		engine:          e,
		pass:            pass,
		projectID:       t.projectID,
		remoteProjectID: t.remoteProjectID,
		session:         session,
		log:             log,
	}
	if err := p.load(ctx); err != nil {
		return fmt.Errorf("project %d: %w", t.projectID, err)
	}

	// A failed phase leaves records of the window unsynced, so it aborts the
	// pass and the watermark stays where it was.
	if err := e.phase(ctx, phasePush, p.push); err != nil {
		return fmt.Errorf("project %d: %s phase: %w", t.projectID, phasePush, err)
	}
	if err := e.phase(ctx, phasePull, p.pull); err != nil {
		return fmt.Errorf("project %d: %s phase: %w", t.projectID, phasePull, err)
	}
	return nil
}

func (e *Engine) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.instruments.Start(ctx, name)
	err := fn(ctx)
	e.instruments.End(span, err)
	return err
}

func (e *Engine) skipProject(pass *passContext, log zerolog.Logger, t projectTarget, reason string, err error) {
	log.Error().Err(err).Msg(reason)
	pass.stats.update(func(s *SyncStats) { s.ProjectsSkipped++ })
	e.warn(pass, "project %d: %s: %v", t.projectID, reason, err)
}

// clock returns the current time; tests replace now.
func (e *Engine) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}

func (e *Engine) msg(format string, args ...interface{}) {
	if e.OnMessage != nil {
		e.OnMessage(fmt.Sprintf(format, args...))
	}
}

// warn records a pass-level warning and forwards it to OnWarning.
func (e *Engine) warn(pass *passContext, format string, args ...interface{}) {
	m := fmt.Sprintf(format, args...)
	pass.stats.warn(m)
	if e.OnWarning != nil {
		e.OnWarning(m)
	}
}
