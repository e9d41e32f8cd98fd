package mapping

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"github.com/casesync/casesync/internal/types"
)

// Scopes partition the data_mappings table by the kind of correspondence held.
const (
	scopeProject = "project"
	scopeUser    = "user"
)

func fieldScope(a types.ArtifactType, f types.FieldKind) string {
	return fmt.Sprintf("field:%d:%d", a, f)
}

func artifactScope(a types.ArtifactType) string {
	return fmt.Sprintf("artifact:%d", a)
}

func propertyScope(a types.ArtifactType, propertyID int) string {
	return fmt.Sprintf("property:%d:%d", a, propertyID)
}

func propertyValueScope(a types.ArtifactType, propertyID int) string {
	return fmt.Sprintf("property-value:%d:%d", a, propertyID)
}

const schema = `CREATE TABLE IF NOT EXISTS data_mappings (
	sync_system_id INT NOT NULL,
	scope VARCHAR(64) NOT NULL,
	project_id INT NOT NULL,
	internal_id INT NOT NULL,
	external_key VARCHAR(255) NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (sync_system_id, scope, project_id, internal_id, external_key),
	KEY idx_external (sync_system_id, scope, project_id, external_key)
)`

const sqlRetryMaxElapsed = 30 * time.Second

func newSQLRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = sqlRetryMaxElapsed
	return bo
}

// SQLStore keeps mappings in a MySQL-compatible server (MySQL, MariaDB or a
// Dolt sql-server).
type SQLStore struct {
	db       *sql.DB
	systemID types.SyncSystemID
}

var _ Store = (*SQLStore)(nil)

// OpenSQLStore connects using a go-sql-driver DSN and ensures the schema exists.
func OpenSQLStore(ctx context.Context, dsn string, systemID types.SyncSystemID) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLStore{db: db, systemID: systemID}
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mapping database %s: %w", cfg.Addr, err)
	}
	if err := s.withRetry(ctx, func() error {
		_, err := db.ExecContext(ctx, schema)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create mapping schema: %w", err)
	}
	return s, nil
}

// NewSQLStore wraps an existing handle; the schema is assumed present.
func NewSQLStore(db *sql.DB, systemID types.SyncSystemID) *SQLStore {
	return &SQLStore{db: db, systemID: systemID}
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// isRetryableError reports transient connection errors worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

func (s *SQLStore) withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newSQLRetryBackoff(), ctx))
}

func (s *SQLStore) query(ctx context.Context, scope string) ([]types.DataMapping, error) {
	var rows []types.DataMapping
	err := s.withRetry(ctx, func() error {
		rows = rows[:0]
		r, err := s.db.QueryContext(ctx, `
			SELECT project_id, internal_id, external_key, is_primary
			FROM data_mappings
			WHERE sync_system_id = ? AND scope = ?
			ORDER BY project_id, internal_id`, int(s.systemID), scope)
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			var m types.DataMapping
			if err := r.Scan(&m.ProjectID, &m.InternalID, &m.ExternalKey, &m.Primary); err != nil {
				return err
			}
			rows = append(rows, m)
		}
		return r.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query %s mappings: %w", scope, err)
	}
	if rows == nil {
		rows = []types.DataMapping{}
	}
	return rows, nil
}

func (s *SQLStore) ProjectMappings(ctx context.Context) ([]types.DataMapping, error) {
	return s.query(ctx, scopeProject)
}

func (s *SQLStore) UserMappings(ctx context.Context) ([]types.DataMapping, error) {
	return s.query(ctx, scopeUser)
}

func (s *SQLStore) FieldMappings(ctx context.Context, artifact types.ArtifactType, field types.FieldKind) ([]types.DataMapping, error) {
	return s.query(ctx, fieldScope(artifact, field))
}

func (s *SQLStore) ArtifactMappings(ctx context.Context, artifact types.ArtifactType) ([]types.DataMapping, error) {
	return s.query(ctx, artifactScope(artifact))
}

func (s *SQLStore) CustomPropertyMapping(ctx context.Context, artifact types.ArtifactType, propertyID int) (*types.DataMapping, error) {
	rows, err := s.query(ctx, propertyScope(artifact, propertyID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *SQLStore) CustomPropertyValueMappings(ctx context.Context, artifact types.ArtifactType, propertyID int) ([]types.DataMapping, error) {
	return s.query(ctx, propertyValueScope(artifact, propertyID))
}

// AddArtifactMappings inserts rows inside one transaction. A row whose
// (project, internal id) is already mapped is skipped.
func (s *SQLStore) AddArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	if len(rows) == 0 {
		return nil
	}
	scope := artifactScope(artifact)
	err := s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			for _, m := range rows {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO data_mappings (sync_system_id, scope, project_id, internal_id, external_key, is_primary)
					SELECT ?, ?, ?, ?, ?, ? FROM DUAL
					WHERE NOT EXISTS (
						SELECT 1 FROM data_mappings
						WHERE sync_system_id = ? AND scope = ? AND project_id = ? AND internal_id = ?
					)`,
					int(s.systemID), scope, m.ProjectID, m.InternalID, m.ExternalKey, m.Primary,
					int(s.systemID), scope, m.ProjectID, m.InternalID,
				); err != nil {
					return fmt.Errorf("insert %s: %w", m, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("add %s mappings: %w", artifact, err)
	}
	return nil
}

func (s *SQLStore) RemoveArtifactMappings(ctx context.Context, artifact types.ArtifactType, rows []types.DataMapping) error {
	if len(rows) == 0 {
		return nil
	}
	scope := artifactScope(artifact)
	err := s.withRetry(ctx, func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			for _, m := range rows {
				if _, err := tx.ExecContext(ctx, `
					DELETE FROM data_mappings
					WHERE sync_system_id = ? AND scope = ? AND project_id = ? AND internal_id = ? AND external_key = ?`,
					int(s.systemID), scope, m.ProjectID, m.InternalID, m.ExternalKey,
				); err != nil {
					return fmt.Errorf("delete %s: %w", m, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("remove %s mappings: %w", artifact, err)
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
