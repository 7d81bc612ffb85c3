// Package memory is an in-process record store, used by tests, the CLI and
// demos. Data can be seeded from a JSON document.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BDNK1/lowflow/runtime"
)

// Store keeps projects, field definitions and records in memory. It is safe
// for concurrent use.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*runtime.Project
	fields   map[string][]runtime.Field
	records  map[string][]map[string]any // collection id -> rows in insertion order
	pks      map[string]string
}

var _ runtime.RecordStore = &Store{}

func New() *Store {
	return &Store{
		projects: make(map[string]*runtime.Project),
		fields:   make(map[string][]runtime.Field),
		records:  make(map[string][]map[string]any),
		pks:      make(map[string]string),
	}
}

// AddProject registers a project and its field definitions.
func (s *Store) AddProject(project runtime.Project, fields ...runtime.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := project
	p.Collections = append([]runtime.Collection(nil), project.Collections...)
	s.projects[p.ID] = &p
	s.fields[p.ID] = append([]runtime.Field(nil), fields...)
	for _, c := range p.Collections {
		pk := c.PrimaryKey
		if pk == "" {
			pk = runtime.DefaultPrimaryKey
		}
		s.pks[c.ID] = pk
	}
}

// Seed appends rows to a collection as they are, without generating keys.
func (s *Store) Seed(collectionID string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.records[collectionID] = append(s.records[collectionID], clone(row))
	}
}

// Records returns a copy of the rows of a collection.
func (s *Store) Records(collectionID string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.records[collectionID]
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = clone(row)
	}
	return out
}

func (s *Store) GetProject(_ context.Context, projectID string) (*runtime.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	out := *p
	out.Collections = append([]runtime.Collection(nil), p.Collections...)
	return &out, nil
}

func (s *Store) ListFields(_ context.Context, projectID string) ([]runtime.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s not found", projectID)
	}
	return append([]runtime.Field(nil), s.fields[projectID]...), nil
}

func (s *Store) ListRecords(ctx context.Context, collectionID string, filter runtime.Filter) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []map[string]any{}
	for _, row := range s.records[collectionID] {
		if filter.Match(row) {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

// InsertRecord stores a copy of fields, generating a primary key when the
// row does not carry one.
func (s *Store) InsertRecord(ctx context.Context, collectionID string, fields map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := clone(fields)
	pk := s.primaryKey(collectionID)
	if v, ok := row[pk]; !ok || v == nil || v == "" {
		row[pk] = uuid.New().String()
	}
	s.records[collectionID] = append(s.records[collectionID], row)
	return clone(row), nil
}

func (s *Store) UpdateRecord(ctx context.Context, collectionID, primaryKey string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(collectionID, primaryKey)
	if !ok {
		return fmt.Errorf("%w: %s/%s", runtime.ErrRecordNotFound, collectionID, primaryKey)
	}
	row := s.records[collectionID][i]
	pk := s.primaryKey(collectionID)
	for k, v := range fields {
		if k == pk {
			continue
		}
		row[k] = v
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, collectionID, primaryKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(collectionID, primaryKey)
	if !ok {
		return fmt.Errorf("%w: %s/%s", runtime.ErrRecordNotFound, collectionID, primaryKey)
	}
	rows := s.records[collectionID]
	s.records[collectionID] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

func (s *Store) find(collectionID, primaryKey string) (int, bool) {
	pk := s.primaryKey(collectionID)
	for i, row := range s.records[collectionID] {
		if runtime.ValueOf(row[pk]).String() == primaryKey {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) primaryKey(collectionID string) string {
	if pk, ok := s.pks[collectionID]; ok {
		return pk
	}
	return runtime.DefaultPrimaryKey
}

func clone(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
