package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/cache"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
)

const fakeTransport = "schema_test_fake"

func init() {
	adapter.Register(fakeTransport, func(cfg adapter.Config) (adapter.Transport, error) {
		return &rowsTransport{rows: cfg.Extra["rows"]}, nil
	})
}

// rowsTransport returns the configured rows for every read
type rowsTransport struct {
	rows interface{}
}

func (t *rowsTransport) Read(ctx context.Context, req *adapter.Request) ([]adapter.Row, error) {
	rows, _ := t.rows.([]adapter.Row)
	return rows, nil
}

func (t *rowsTransport) Write(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	return &adapter.Response{Success: true}, nil
}

func (t *rowsTransport) Delete(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	return &adapter.Response{Success: true}, nil
}

func isolated() adapter.Context {
	return adapter.Config{Caching: cache.NewCaching()}
}

func TestModel_Names(t *testing.T) {
	m := NewModel("blog.Article", "id", "title", "title")
	assert.Equal(t, "blog.Article", m.Name())
	assert.Equal(t, "Article", m.BaseName())
	assert.Equal(t, "blog.Article", m.String())
	assert.Equal(t, []string{"id", "title"}, m.Fields())
	assert.Equal(t, "Plain", NewModel("Plain").BaseName())
}

func TestModel_SetPrimaryKey(t *testing.T) {
	m := NewModel("Widget", "id", "uuid")
	assert.Equal(t, DefaultPrimaryKey, m.PrimaryKey())

	require.NoError(t, m.SetPrimaryKey("uuid"))
	assert.Equal(t, "uuid", m.PrimaryKey())

	err := m.SetPrimaryKey("missing")
	assert.True(t, ormerr.IsConfigurationError(err))
}

func TestModel_ConditionsTable(t *testing.T) {
	m := NewModel("Widget", "id", "name")
	key, err := m.Conditions().Lookup("name_eq")
	require.NoError(t, err)
	assert.Equal(t, "name_equals", key)

	_, err = m.Conditions().Lookup("color_eq")
	assert.ErrorIs(t, err, ormerr.ErrNoSuchQueryMethod)
}

func TestModel_FetchWithoutAdapter(t *testing.T) {
	m := NewModel("Widget", "id")
	_, err := m.All(context.Background())
	assert.True(t, ormerr.IsConfigurationError(err))

	err = m.ConfigureRead(adapter.Config{Service: "x"})
	assert.True(t, ormerr.IsConfigurationError(err))
	err = m.ConfigureWrite(adapter.Config{Service: "x"})
	assert.True(t, ormerr.IsConfigurationError(err))
}

func TestModel_ReadWith(t *testing.T) {
	m := NewModel("Widget", "id", "name")
	rows := []adapter.Row{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}}

	require.NoError(t, m.ReadWith(fakeTransport, isolated(), adapter.Config{Extra: map[string]interface{}{"rows": rows}}))
	require.NotNil(t, m.ReadAdapter())

	records, err := m.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	rec, err := m.First(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", rec.Get("name"))

	require.NoError(t, m.ReadWith(AdapterNone))
	assert.Nil(t, m.ReadAdapter())

	assert.True(t, ormerr.IsConfigurationError(m.WriteWith("bogus")))
}

func TestModel_ConfigureLayersWithoutTouchingSubtype(t *testing.T) {
	reg := NewRegistry()
	base, err := reg.Define("svc.Article", "id")
	require.NoError(t, err)
	require.NoError(t, base.ReadWith(fakeTransport, isolated(), adapter.Config{Service: "articles"}))

	child, err := base.Subtype("admin.Article")
	require.NoError(t, err)
	require.NoError(t, child.ConfigureRead(adapter.Config{Namespace: "admin"}))

	assert.Equal(t, "", base.ReadAdapter().Config().Namespace)
	assert.Equal(t, "admin", child.ReadAdapter().Config().Namespace)
	assert.Equal(t, "articles", child.ReadAdapter().Config().Service)
}

func TestModel_DefaultScopeAndScopes(t *testing.T) {
	m := NewModel("Widget", "id", "active")
	m.DefaultScope(query.FinderOptions{Conditions: map[string]interface{}{"active": true}})
	m.ScopeOptions("recent", query.FinderOptions{Order: []string{"id desc"}})

	p, err := m.Scoped().ToHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{map[string]interface{}{"active": true}}, p.Where())

	p, err = m.Unscoped().ToHash(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p)

	r, err := m.Scoped().Scope("recent")
	require.NoError(t, err)
	p, err = r.ToHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id desc"}, p[query.KeyOrder])
	assert.Equal(t, []string{"recent"}, m.ScopeNames())
}

func TestModel_ReloadWithoutReadAdapter(t *testing.T) {
	m := NewModel("Widget", "id")
	rec := record.FromStore(m, map[string]interface{}{"id": 1})
	assert.NoError(t, m.Reload(context.Background(), rec))
}

func TestModel_ReloadMissing(t *testing.T) {
	m := NewModel("Widget", "id", "name")
	require.NoError(t, m.ReadWith(fakeTransport, isolated()))

	rec := record.FromStore(m, map[string]interface{}{"id": 1})
	err := m.Reload(context.Background(), rec)
	assert.True(t, ormerr.IsRecordNotFound(err))
}
