package rpc

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/cache"
	"github.com/perry-go/perry/internal/fixture"
	"github.com/perry-go/perry/internal/orm/crud"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
)

// serve starts handler on a loopback port and returns its host and port
func serve(t *testing.T, handler jsonrpc2.Handler) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fixture.ServeRPC(ctx, ln, handler) }()

	t.Cleanup(func() {
		assert.NoError(t, CloseAll())
		cancel()
		assert.NoError(t, <-done)
	})
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func setupPeople(t *testing.T) (*schema.Model, *fixture.Dataset) {
	t.Helper()

	d := fixture.NewDataset()
	d.Seed("people",
		adapter.Row{"id": 1, "name": "Ada", "age": 36},
		adapter.Row{"id": 2, "name": "Grace", "age": 45},
	)
	d.Validate("people", func(row adapter.Row) map[string]interface{} {
		if row["name"] == nil || row["name"] == "" {
			return map[string]interface{}{"name": "can't be blank"}
		}
		return nil
	})
	host, port := serve(t, fixture.RPCHandler(d, nil))

	m := schema.NewModel("crm.Person", "id", "name", "age")
	cfg := adapter.Config{Host: host, Port: port, Namespace: "crm", Service: "people", Caching: cache.NewCaching()}
	require.NoError(t, m.ReadWith(TypeName, cfg))
	require.NoError(t, m.WriteWith(TypeName, cfg))
	return m, d
}

type recorded struct {
	mu     sync.Mutex
	method string
	params map[string]interface{}
}

// recorder replies to every call with result, or err when set
func recorder(result interface{}, err error) (*recorded, jsonrpc2.Handler) {
	r := &recorded{}
	return r, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		r.mu.Lock()
		r.method = req.Method()
		r.params = nil
		json.Unmarshal(req.Params(), &r.params)
		r.mu.Unlock()
		return reply(ctx, result, err)
	}
}

func TestMethod(t *testing.T) {
	tr, err := New(adapter.Config{Host: "localhost", Port: 9999, Namespace: "crm", Service: "people"})
	require.NoError(t, err)
	assert.Equal(t, "crm.people.read", tr.(*Transport).Method("read"))

	tr, err = New(adapter.Config{Host: "localhost", Port: 9999, Service: "people"})
	require.NoError(t, err)
	assert.Equal(t, "people.delete", tr.(*Transport).Method("delete"))
}

func TestNew_Configuration(t *testing.T) {
	_, err := New(adapter.Config{Service: "people"})
	assert.True(t, ormerr.IsConfigurationError(err))

	_, err = New(adapter.Config{Host: "localhost", Port: 9999})
	assert.True(t, ormerr.IsConfigurationError(err))
}

func TestRead(t *testing.T) {
	m, _ := setupPeople(t)
	ctx := context.Background()

	people, err := m.Scoped().Order("age desc").Limit(1).All(ctx)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Grace", people[0].Get("name"))

	ada, err := m.Find(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(36), ada.Get("age"))
}

func TestRead_MergesDefaultOptions(t *testing.T) {
	rec, handler := recorder([]map[string]interface{}{{"id": 1}}, nil)
	host, port := serve(t, handler)

	m := schema.NewModel("crm.Person", "id", "name")
	require.NoError(t, m.ReadWith(TypeName, adapter.Config{
		Host:           host,
		Port:           port,
		Namespace:      "crm",
		Service:        "people",
		DefaultOptions: map[string]interface{}{"api_key": "secret", "limit": 10},
		Caching:        cache.NewCaching(),
	}))

	people, err := m.Where(map[string]interface{}{"name": "Ada"}).Limit(1).All(context.Background())
	require.NoError(t, err)
	assert.Len(t, people, 1)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "crm.people.read", rec.method)
	assert.Equal(t, "secret", rec.params["api_key"])
	assert.Equal(t, float64(10), rec.params["limit"], "default options win over the payload")
	assert.Equal(t, []interface{}{map[string]interface{}{"name": "Ada"}}, rec.params["where"])
}

func TestRead_ServiceError(t *testing.T) {
	_, handler := recorder(nil, jsonrpc2.ErrMethodNotFound)
	host, port := serve(t, handler)

	m := schema.NewModel("crm.Person", "id", "name")
	require.NoError(t, m.ReadWith(TypeName, adapter.Config{Host: host, Port: port, Service: "people", Caching: cache.NewCaching()}))

	_, err := m.All(context.Background())
	assert.ErrorIs(t, err, ormerr.ErrTransport)
	assert.Contains(t, err.Error(), "people.read")
}

func TestRead_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	m := schema.NewModel("crm.Person", "id", "name")
	require.NoError(t, m.ReadWith(TypeName, adapter.Config{Host: addr.IP.String(), Port: addr.Port, Service: "people", Caching: cache.NewCaching()}))

	_, err = m.All(context.Background())
	assert.Error(t, err)
}

func TestWrite_CreateAndUpdate(t *testing.T) {
	m, d := setupPeople(t)
	ctx := context.Background()

	rec := m.New(map[string]interface{}{"name": "Linus", "age": 28})
	ok, err := crud.Save(ctx, rec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(3), rec.ID())
	assert.Len(t, d.Rows("people"), 3)

	ok, err = crud.UpdateAttributes(ctx, rec, map[string]interface{}{"age": 29})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(29), d.Rows("people")[2]["age"])
	assert.Equal(t, float64(29), rec.Get("age"))
}

func TestWrite_Rejected(t *testing.T) {
	m, d := setupPeople(t)

	rec := m.New(map[string]interface{}{"name": ""})
	ok, err := crud.Save(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "can't be blank", rec.Errors()["name"])
	assert.Len(t, d.Rows("people"), 2)

	ghost := record.FromStore(m, map[string]interface{}{"id": 99, "name": "Ghost"})
	ok, err = crud.Save(context.Background(), ghost)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "record not found", ghost.Errors()["base"])
}

func TestDelete(t *testing.T) {
	m, d := setupPeople(t)
	ctx := context.Background()

	rec, err := m.Find(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, crud.DestroyBang(ctx, rec))
	assert.True(t, rec.IsFrozen())
	assert.Len(t, d.Rows("people"), 1)

	ghost := record.FromStore(m, map[string]interface{}{"id": 99})
	ok, err := crud.Destroy(ctx, ghost)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_NilPrimaryKey(t *testing.T) {
	tr, err := New(adapter.Config{Host: "127.0.0.1", Port: 1, Service: "people"})
	require.NoError(t, err)

	m := schema.NewModel("crm.Person", "id", "name")
	resp, err := tr.Delete(context.Background(), &adapter.Request{Record: record.FromStore(m, map[string]interface{}{"name": "x"})})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors()["base"], "primary key value was nil")
}

func TestPool_Reconnects(t *testing.T) {
	m, _ := setupPeople(t)
	ctx := context.Background()

	_, err := m.All(ctx)
	require.NoError(t, err)
	require.NoError(t, CloseAll())

	people, err := m.All(ctx)
	require.NoError(t, err)
	assert.Len(t, people, 2)
}
