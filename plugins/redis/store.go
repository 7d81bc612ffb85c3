// Package redis is a record store kept in Redis. Rows are JSON documents in
// one hash per collection; a list per collection preserves insertion order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/BDNK1/lowflow/runtime"
)

// Config holds the Redis store configuration
type Config struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"lowflow" validate:"required"`
}

type Store struct {
	client *goredis.Client
	prefix string

	mu  sync.RWMutex
	pks map[string]string // collection id -> primary key field, learned from projects
}

var _ runtime.RecordStore = &Store{}

func New(cfg Config) (*Store, error) {
	if err := runtime.PrepareConfig(&cfg); err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: client, prefix: cfg.Prefix, pks: make(map[string]string)}, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) projectKey(id string) string { return s.prefix + ":project:" + id }
func (s *Store) fieldsKey(id string) string { return s.prefix + ":fields:" + id }
func (s *Store) rowsKey(coll string) string { return s.prefix + ":rows:" + coll }
func (s *Store) orderKey(coll string) string { return s.prefix + ":order:" + coll }

// PutProject stores a project together with its field definitions.
func (s *Store) PutProject(ctx context.Context, project runtime.Project, fields []runtime.Field) error {
	p, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("redis store: encode project: %w", err)
	}
	f, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("redis store: encode fields: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.projectKey(project.ID), p, 0)
	pipe.Set(ctx, s.fieldsKey(project.ID), f, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: put project %s: %w", project.ID, err)
	}
	s.learn(&project)
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

func (s *Store) GetProject(ctx context.Context, projectID string) (*runtime.Project, error) {
	data, err := s.client.Get(ctx, s.projectKey(projectID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redis store: project %s not found", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get project %s: %w", projectID, err)
	}
	var project runtime.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("redis store: decode project %s: %w", projectID, err)
	}
	project.ID = projectID
	s.learn(&project)
	return &project, nil
}

func (s *Store) ListFields(ctx context.Context, projectID string) ([]runtime.Field, error) {
	data, err := s.client.Get(ctx, s.fieldsKey(projectID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: list fields of %s: %w", projectID, err)
	}
	var fields []runtime.Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("redis store: decode fields of %s: %w", projectID, err)
	}
	return fields, nil
}

func (s *Store) ListRecords(ctx context.Context, collectionID string, filter runtime.Filter) ([]map[string]any, error) {
	keys, err := s.client.LRange(ctx, s.orderKey(collectionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list %s: %w", collectionID, err)
	}
	out := []map[string]any{}
	if len(keys) == 0 {
		return out, nil
	}
	values, err := s.client.HMGet(ctx, s.rowsKey(collectionID), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list %s: %w", collectionID, err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		row := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("redis store: decode %s/%s: %w", collectionID, keys[i], err)
		}
		if filter.Match(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// InsertRecord stores fields under their primary key, generating one when
// the row has none.
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
		return nil, fmt.Errorf("redis store: encode row: %w", err)
	}

	added, err := s.client.Eval(ctx, insertRowLua,
		[]string{s.rowsKey(collectionID), s.orderKey(collectionID)}, key, data).Int()
	if err != nil {
		return nil, fmt.Errorf("redis store: insert into %s: %w", collectionID, err)
	}
	if added != 1 {
		return nil, fmt.Errorf("redis store: %s/%s already exists", collectionID, key)
	}
	return row, nil
}

// insertRowLua appends the key to the order list and writes the row as one
// script. Every call that can fail runs before the first write, so a taken
// key or a mistyped key leaves both structures untouched.
const insertRowLua = `
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`

func (s *Store) UpdateRecord(ctx context.Context, collectionID, primaryKey string, fields map[string]any) error {
	raw, err := s.client.HGet(ctx, s.rowsKey(collectionID), primaryKey).Result()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis store: %w: %s/%s", runtime.ErrRecordNotFound, collectionID, primaryKey)
	}
	if err != nil {
		return fmt.Errorf("redis store: update %s/%s: %w", collectionID, primaryKey, err)
	}
	row := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return fmt.Errorf("redis store: decode %s/%s: %w", collectionID, primaryKey, err)
	}
	pk := s.primaryKey(collectionID)
	for k, v := range fields {
		if k != pk {
			row[k] = v
		}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("redis store: encode row: %w", err)
	}
	if err := s.client.HSet(ctx, s.rowsKey(collectionID), primaryKey, data).Err(); err != nil {
		return fmt.Errorf("redis store: update %s/%s: %w", collectionID, primaryKey, err)
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, collectionID, primaryKey string) error {
	pipe := s.client.TxPipeline()
	removed := pipe.HDel(ctx, s.rowsKey(collectionID), primaryKey)
	pipe.LRem(ctx, s.orderKey(collectionID), 0, primaryKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: delete %s/%s: %w", collectionID, primaryKey, err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("redis store: %w: %s/%s", runtime.ErrRecordNotFound, collectionID, primaryKey)
	}
	return nil
}
