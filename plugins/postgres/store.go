// Package postgres is a record store kept in PostgreSQL. Rows are stored as
// JSONB documents keyed by collection and primary key.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/BDNK1/lowflow/runtime"
)

// Config holds the Postgres store configuration
type Config struct {
	ConnectionString  string `yaml:"connection_string" validate:"required"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

const schema = `
CREATE TABLE IF NOT EXISTS lowflow_projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	collections JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS lowflow_fields (
	project_id    TEXT NOT NULL,
	id            TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	collection_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (project_id, id)
);
CREATE TABLE IF NOT EXISTS lowflow_records (
	seq           BIGSERIAL,
	collection_id TEXT NOT NULL,
	record_key    TEXT NOT NULL,
	data          JSONB NOT NULL,
	PRIMARY KEY (collection_id, record_key)
);`

type Store struct {
	db *sql.DB

	mu  sync.RWMutex
	pks map[string]string
}

var _ runtime.RecordStore = &Store{}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := runtime.PrepareConfig(&cfg); err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres store: failed to open connection to %s: %w", maskConnectionString(cfg.ConnectionString), err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres store: failed to ping %s: %w", maskConnectionString(cfg.ConnectionString), err)
	}
	return &Store{db: db, pks: make(map[string]string)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables the store needs.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}

// PutProject upserts a project and replaces its field definitions.
func (s *Store) PutProject(ctx context.Context, project runtime.Project, fields []runtime.Field) error {
	collections, err := json.Marshal(project.Collections)
	if err != nil {
		return fmt.Errorf("postgres store: encode collections: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lowflow_projects (id, name, collections) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, collections = EXCLUDED.collections`,
		project.ID, project.Name, string(collections)); err != nil {
		return fmt.Errorf("postgres store: put project %s: %w", project.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lowflow_fields WHERE project_id = $1`, project.ID); err != nil {
		return fmt.Errorf("postgres store: put fields of %s: %w", project.ID, err)
	}
	for _, f := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lowflow_fields (project_id, id, name, collection_id) VALUES ($1, $2, $3, $4)`,
			project.ID, f.ID, f.Name, f.CollectionID); err != nil {
			return fmt.Errorf("postgres store: put field %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	s.learn(&project)
	return nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*runtime.Project, error) {
	var (
		project     = runtime.Project{ID: projectID}
		collections []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, collections FROM lowflow_projects WHERE id = $1`, projectID).
		Scan(&project.Name, &collections)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("postgres store: project %s not found", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get project %s: %w", projectID, err)
	}
	if err := json.Unmarshal(collections, &project.Collections); err != nil {
		return nil, fmt.Errorf("postgres store: decode collections of %s: %w", projectID, err)
	}
	s.learn(&project)
	return &project, nil
}

func (s *Store) ListFields(ctx context.Context, projectID string) ([]runtime.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, collection_id FROM lowflow_fields WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list fields of %s: %w", projectID, err)
	}
	defer rows.Close()

	var fields []runtime.Field
	for rows.Next() {
		var f runtime.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.CollectionID); err != nil {
			return nil, fmt.Errorf("postgres store: scan field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// ListRecords loads the collection in insertion order and applies the
// filter to the decoded documents.
func (s *Store) ListRecords(ctx context.Context, collectionID string, filter runtime.Filter) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM lowflow_records WHERE collection_id = $1 ORDER BY seq`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list %s: %w", collectionID, err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres store: scan %s: %w", collectionID, err)
		}
		row := map[string]any{}
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("postgres store: decode %s: %w", collectionID, err)
		}
		if filter.Match(row) {
			out = append(out, row)
		}
	}
	return out, rows.Err()
}

func (s *Store) InsertRecord(ctx context.Context, collectionID string, fields map[string]any) (map[string]any, error) {
	row := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	pk := s.primaryKey(collectionID)
	key := runtime.ValueOf(row[pk]).String()
	if key == "" {
		key = uuid.New().String()
		row[pk] = key
	}
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("postgres store: encode row: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO lowflow_records (collection_id, record_key, data) VALUES ($1, $2, $3)`,
		collectionID, key, string(data)); err != nil {
		return nil, fmt.Errorf("postgres store: insert into %s: %w", collectionID, err)
	}
	return row, nil
}

func (s *Store) UpdateRecord(ctx context.Context, collectionID, primaryKey string, fields map[string]any) error {
	patch := make(map[string]any, len(fields))
	pk := s.primaryKey(collectionID)
	for k, v := range fields {
		if k != pk {
			patch[k] = v
		}
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("postgres store: encode row: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lowflow_records SET data = data || $3::jsonb WHERE collection_id = $1 AND record_key = $2`,
		collectionID, primaryKey, string(data))
	if err != nil {
		return fmt.Errorf("postgres store: update %s/%s: %w", collectionID, primaryKey, err)
	}
	return affected(res, collectionID, primaryKey)
}

func (s *Store) DeleteRecord(ctx context.Context, collectionID, primaryKey string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lowflow_records WHERE collection_id = $1 AND record_key = $2`,
		collectionID, primaryKey)
	if err != nil {
		return fmt.Errorf("postgres store: delete %s/%s: %w", collectionID, primaryKey, err)
	}
	return affected(res, collectionID, primaryKey)
}

func affected(res sql.Result, collectionID, primaryKey string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres store: failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("postgres store: %w: %s/%s", runtime.ErrRecordNotFound, collectionID, primaryKey)
	}
	return nil
}

func (s *Store) learn(project *runtime.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range project.Collections {
		if c.PrimaryKey != "" {
			s.pks[c.ID] = c.PrimaryKey
		}
	}
}

func (s *Store) primaryKey(collectionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pk, ok := s.pks[collectionID]; ok {
		return pk
	}
	return runtime.DefaultPrimaryKey
}

// maskConnectionString hides the password of a connection string for logging.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return u.String()
}
