package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BDNK1/lowflow/runtime"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(Config{Addr: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	return s, mr
}

func TestProjectRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	project := runtime.Project{ID: "shop", Name: "Shop", Collections: []runtime.Collection{{ID: "c_users", Name: "users", PrimaryKey: "uid"}}}
	fields := []runtime.Field{{ID: "f_email", Name: "email", CollectionID: "c_users"}}
	require.NoError(t, s.PutProject(ctx, project, fields))
	assert.True(t, mr.Exists("test:project:shop"))

	got, err := s.GetProject(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, project, *got)

	gotFields, err := s.ListFields(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, fields, gotFields)

	_, err = s.GetProject(ctx, "missing")
	assert.Error(t, err)

	none, err := s.ListFields(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecords(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutProject(ctx, runtime.Project{
		ID:          "shop",
		Collections: []runtime.Collection{{ID: "c_users", PrimaryKey: "uid"}},
	}, nil))

	rows, err := s.ListRecords(ctx, "c_users", nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	first, err := s.InsertRecord(ctx, "c_users", map[string]any{"uid": "U1", "f_email": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "U1", first["uid"])

	second, err := s.InsertRecord(ctx, "c_users", map[string]any{"f_email": "b@example.org", "age": 30})
	require.NoError(t, err)
	generated, _ := second["uid"].(string)
	assert.NotEmpty(t, generated)

	_, err = s.InsertRecord(ctx, "c_users", map[string]any{"uid": "U1"})
	assert.Error(t, err, "duplicate keys are rejected")

	rows, err = s.ListRecords(ctx, "c_users", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "U1", rows[0]["uid"])
	assert.Equal(t, float64(30), rows[1]["age"])

	rows, err = s.ListRecords(ctx, "c_users", runtime.Filter{{Field: "f_email", Operator: runtime.OpContains, Value: "example.org"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, generated, rows[0]["uid"])

	require.NoError(t, s.UpdateRecord(ctx, "c_users", "U1", map[string]any{"f_email": "new@example.com", "uid": "ignored"}))
	rows, err = s.ListRecords(ctx, "c_users", runtime.Filter{{Field: "uid", Operator: runtime.OpEq, Value: "U1"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new@example.com", rows[0]["f_email"])

	assert.ErrorIs(t, s.UpdateRecord(ctx, "c_users", "U9", map[string]any{"x": 1}), runtime.ErrRecordNotFound)

	require.NoError(t, s.DeleteRecord(ctx, "c_users", "U1"))
	assert.ErrorIs(t, s.DeleteRecord(ctx, "c_users", "U1"), runtime.ErrRecordNotFound)
	rows, err = s.ListRecords(ctx, "c_users", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestInsertKeepsRowsAndOrderTogether(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRecord(ctx, "c_logs", map[string]any{"id": "L1"})
	require.NoError(t, err)
	_, err = s.InsertRecord(ctx, "c_logs", map[string]any{"id": "L1"})
	require.Error(t, err)

	order, err := mr.List("test:order:c_logs")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, order)
	keys, err := mr.HKeys("test:rows:c_logs")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1"}, keys)

	require.NoError(t, mr.Set("test:order:c_tags", "not a list"))
	_, err = s.InsertRecord(ctx, "c_tags", map[string]any{"id": "T1"})
	require.Error(t, err)
	assert.False(t, mr.Exists("test:rows:c_tags"))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Addr: "no-port"})
	assert.Error(t, err)
}
