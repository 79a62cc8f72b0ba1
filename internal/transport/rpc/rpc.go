// Package rpc provides a JSON-RPC 2.0 transport. Every dispatch is a call
// to "<namespace>.<service>.<op>" where op is read, write or delete, with
// the adapter's default options merged into the params. Connections are
// pooled per host and port and shared by every adapter pointing there.
package rpc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
)

// TypeName is the adapter type the transport registers under
const TypeName = "rpc"

const nilKeyMessage = "(rpc) request not sent because primary key value was nil"

func init() {
	adapter.Register(TypeName, New)
}

// pool shares one connection per address
var pool = &connPool{conns: make(map[string]jsonrpc2.Conn)}

type connPool struct {
	mu    sync.Mutex
	conns map[string]jsonrpc2.Conn
}

// get returns the pooled connection for addr, dialing when there is none
// or the pooled one has shut down
func (p *connPool) get(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger) (jsonrpc2.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[addr]; ok {
		select {
		case <-conn.Done():
			delete(p.conns, addr)
		default:
			return conn, nil
		}
	}

	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	logger.Debug("rpc connection opened", zap.String("addr", addr))

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(nc))
	conn.Go(context.Background(), jsonrpc2.MethodNotFoundHandler)
	p.conns[addr] = conn
	return conn, nil
}

// CloseAll closes every pooled connection
func CloseAll() error {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	var err error
	for addr, conn := range pool.conns {
		err = multierr.Append(err, conn.Close())
		delete(pool.conns, addr)
	}
	return err
}

// Transport calls the procedures of one service
type Transport struct {
	config adapter.Config
	addr   string
}

// New creates a transport from the folded adapter configuration
func New(cfg adapter.Config) (adapter.Transport, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ormerr.NewConfigurationError(TypeName, "host and port are required")
	}
	if cfg.Service == "" {
		return nil, ormerr.NewConfigurationError(TypeName, "service is required")
	}
	return &Transport{
		config: cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}, nil
}

// Method returns the procedure name for op
func (t *Transport) Method(op string) string {
	if t.config.Namespace == "" {
		return t.config.Service + "." + op
	}
	return t.config.Namespace + "." + t.config.Service + "." + op
}

// Read implements adapter.Transport
func (t *Transport) Read(ctx context.Context, req *adapter.Request) ([]adapter.Row, error) {
	if req.Relation == nil {
		return nil, fmt.Errorf("rpc transport: read request without a relation")
	}
	payload, err := req.Relation.ToHash(ctx)
	if err != nil {
		return nil, err
	}

	var rows []adapter.Row
	if err := t.call(ctx, "read", t.params(payload.Map()), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Write implements adapter.Transport
func (t *Transport) Write(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	rec := req.Record
	if rec == nil {
		return nil, fmt.Errorf("rpc transport: write request without a record")
	}
	return t.mutate(ctx, "write", rec, map[string]interface{}{
		"attributes": rec.Attributes(),
		"new":        rec.IsNew() || rec.ID() == nil,
	})
}

// Delete implements adapter.Transport
func (t *Transport) Delete(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	rec := req.Record
	if rec == nil {
		return nil, fmt.Errorf("rpc transport: delete request without a record")
	}
	if rec.ID() == nil {
		return adapter.NewParsedResponse(false, map[string]interface{}{"base": nilKeyMessage}), nil
	}
	return t.mutate(ctx, "delete", rec, map[string]interface{}{})
}

type mutationResult struct {
	Success    bool                   `json:"success"`
	Attributes map[string]interface{} `json:"attributes"`
	Errors     map[string]interface{} `json:"errors"`
}

func (t *Transport) mutate(ctx context.Context, op string, rec *record.Record, params map[string]interface{}) (*adapter.Response, error) {
	params["id"] = rec.ID()
	params["primary_key"] = rec.PrimaryKey()
	if t.config.PrimaryKey != "" {
		params["primary_key"] = t.config.PrimaryKey
	}

	var res mutationResult
	if err := t.call(ctx, op, t.params(params), &res); err != nil {
		return nil, err
	}
	if !res.Success {
		return adapter.NewParsedResponse(false, res.Errors), nil
	}
	return adapter.NewParsedResponse(true, res.Attributes), nil
}

// params merges the default options over the call's own params
func (t *Transport) params(own map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(own)+len(t.config.DefaultOptions))
	for k, v := range own {
		out[k] = v
	}
	for k, v := range t.config.DefaultOptions {
		out[k] = v
	}
	return out
}

func (t *Transport) call(ctx context.Context, op string, params, result interface{}) error {
	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	logger := t.config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := pool.get(ctx, t.addr, t.config.Timeout, logger)
	if err != nil {
		return err
	}

	method := t.Method(op)
	if _, err := conn.Call(ctx, method, params, result); err != nil {
		return fmt.Errorf("%w: %s: %w", ormerr.ErrTransport, method, err)
	}
	return nil
}
