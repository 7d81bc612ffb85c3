package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/lowflow/runtime"
)

// backend is a tiny stand-in for the low-code backend API.
type backend struct {
	mu      sync.Mutex
	rows    []map[string]any
	filters []string
	auth    []string
	patched map[string]map[string]any
	deleted []string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		b.mu.Unlock()
		if r.PathValue("projectID") != "shop" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, runtime.Project{ID: "shop", Name: "Shop", Collections: []runtime.Collection{{ID: "c_users", Name: "users"}}})
	})
	mux.HandleFunc("GET /projects/{projectID}/fields", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []runtime.Field{{ID: "f_email", Name: "email", CollectionID: "c_users"}})
	})
	mux.HandleFunc("GET /collections/{collectionID}/records", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.filters = append(b.filters, r.URL.Query().Get("filter"))
		// Ignores the filter on purpose
		writeJSON(w, http.StatusOK, b.rows)
	})
	mux.HandleFunc("POST /collections/{collectionID}/records", func(w http.ResponseWriter, r *http.Request) {
		row := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		row["id"] = "generated"
		b.mu.Lock()
		b.rows = append(b.rows, row)
		b.mu.Unlock()

		switch r.PathValue("collectionID") {
		case "c_silent":
			w.WriteHeader(http.StatusNoContent)
		case "c_untyped":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(row)
		default:
			writeJSON(w, http.StatusCreated, row)
		}
	})
	mux.HandleFunc("PATCH /collections/{collectionID}/records/{key}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") == "missing" {
			http.NotFound(w, r)
			return
		}
		patch := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&patch)
		b.mu.Lock()
		b.patched[r.PathValue("key")] = patch
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /collections/{collectionID}/records/{key}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("key") == "missing" {
			http.NotFound(w, r)
			return
		}
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("key"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestStore(t *testing.T) (*Store, *backend) {
	t.Helper()
	b := &backend{
		rows: []map[string]any{
			{"id": "U1", "f_email": "a@example.com"},
			{"id": "U2", "f_email": "b@example.org"},
		},
		patched: map[string]map[string]any{},
	}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	s, err := New(Config{BaseURL: srv.URL, Token: "secret"})
	require.NoError(t, err)
	return s, b
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestProject(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	p, err := s.GetProject(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, "Shop", p.Name)
	assert.Equal(t, []string{"Bearer secret"}, b.auth)

	fields, err := s.ListFields(ctx, "shop")
	require.NoError(t, err)
	assert.Len(t, fields, 1)

	_, err = s.GetProject(ctx, "other")
	assert.ErrorIs(t, err, runtime.ErrRecordNotFound)
}

func TestListRecordsFiltersLocally(t *testing.T) {
	s, b := newTestStore(t)

	filter := runtime.Filter{{Field: "f_email", Operator: runtime.OpEndsWith, Value: ".org"}}
	rows, err := s.ListRecords(context.Background(), "c_users", filter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "U2", rows[0]["id"])

	require.Len(t, b.filters, 1)
	var sent runtime.Filter
	require.NoError(t, json.Unmarshal([]byte(b.filters[0]), &sent))
	assert.Equal(t, "f_email", sent[0].Field)
	assert.Equal(t, runtime.OpEndsWith, sent[0].Operator)

	rows, err = s.ListRecords(context.Background(), "c_users", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, "", b.filters[1])
}

func TestWriteOperations(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	row, err := s.InsertRecord(ctx, "c_users", map[string]any{"f_email": "c@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "generated", row["id"])
	assert.Equal(t, "c@example.com", row["f_email"])

	require.NoError(t, s.UpdateRecord(ctx, "c_users", "U1", map[string]any{"f_email": "x"}))
	assert.Equal(t, map[string]any{"f_email": "x"}, b.patched["U1"])
	assert.ErrorIs(t, s.UpdateRecord(ctx, "c_users", "missing", map[string]any{}), runtime.ErrRecordNotFound)

	require.NoError(t, s.DeleteRecord(ctx, "c_users", "U2"))
	assert.Equal(t, []string{"U2"}, b.deleted)
	assert.ErrorIs(t, s.DeleteRecord(ctx, "c_users", "missing"), runtime.ErrRecordNotFound)
}

func TestInsertResponseBodies(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	row, err := s.InsertRecord(ctx, "c_untyped", map[string]any{"f_email": "d@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "generated", row["id"])

	row, err = s.InsertRecord(ctx, "c_silent", map[string]any{"f_email": "e@example.com"})
	require.NoError(t, err)
	assert.Nil(t, row)
}
