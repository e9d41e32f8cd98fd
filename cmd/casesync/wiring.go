package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/casesync/casesync/internal/config"
	"github.com/casesync/casesync/internal/fogbugz"
	"github.com/casesync/casesync/internal/mapping"
	"github.com/casesync/casesync/internal/spira"
	"github.com/casesync/casesync/internal/tracker"
)

// connector is everything a pass needs, built from configuration.
type connector struct {
	local  *spira.Client
	remote *fogbugz.Client
	store  mapping.Store
	closer io.Closer
}

func (c *connector) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func newConnector(ctx context.Context, c *config.Config) (*connector, error) {
	local := spira.NewClient(c.Local.URL,
		spira.WithTimeout(c.HTTPTimeout),
		spira.WithLogger(logger.With().Str("system", "local").Logger()),
	)
	remote := fogbugz.NewClient(c.Remote.URL,
		fogbugz.WithTimeout(c.HTTPTimeout),
		fogbugz.WithKeepAlive(c.KeepAlive),
		fogbugz.WithVerifyCertificate(c.VerifyCertificate),
		fogbugz.WithLogger(logger.With().Str("system", "remote").Logger()),
	)

	conn := &connector{local: local, remote: remote}
	store, closer, err := openStore(ctx, c, local)
	if err != nil {
		return nil, err
	}
	conn.store, conn.closer = store, closer
	return conn, nil
}

// openStore opens the configured mapping backend. The spira backend shares
// the local client's session, so the caller must authenticate before reading.
func openStore(ctx context.Context, c *config.Config, local *spira.Client) (mapping.Store, io.Closer, error) {
	switch c.MappingBackend {
	case config.BackendFile:
		fs, err := mapping.OpenFileStore(c.MappingFile)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case config.BackendMySQL:
		s, err := mapping.OpenSQLStore(ctx, c.MappingDSN, c.SyncSystemID)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendSpira, "":
		return spira.NewMappingStore(local, c.SyncSystemID), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mapping backend %q", c.MappingBackend)
	}
}

func (c *connector) engine(tc tracker.Config) *tracker.Engine {
	return tracker.NewEngine(c.local, c.remote, c.store, tc, logger)
}

// authenticateLocal opens the local session for commands that read the spira
// mapping backend outside a pass.
func (c *connector) authenticateLocal(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	ok, err := c.local.Authenticate(ctx, cfg.Local.Login, cfg.Local.Password)
	if err != nil {
		return fmt.Errorf("authenticate to %s: %w", cfg.Local.URL, err)
	}
	if !ok {
		return fmt.Errorf("%s rejected the credentials for %s", cfg.Local.URL, cfg.Local.Login)
	}
	return nil
}
