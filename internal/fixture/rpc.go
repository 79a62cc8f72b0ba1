package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/orm/query"
)

// RPC operations, the last segment of a method name
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
)

// WriteParams are the params of a write call. Default options sent by the
// client arrive as extra top-level keys and are ignored.
type WriteParams struct {
	Attributes map[string]interface{} `json:"attributes"`
	ID         interface{}            `json:"id"`
	New        bool                   `json:"new"`
	PrimaryKey string                 `json:"primary_key"`
}

// WriteResult is the result of a write or delete call
type WriteResult struct {
	Success    bool                   `json:"success"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Errors     map[string]interface{} `json:"errors,omitempty"`
}

// SplitMethod splits "<namespace>.<service>.<op>" into its parts. The
// namespace may be empty or contain dots itself.
func SplitMethod(method string) (namespace, service, op string, ok bool) {
	i := strings.LastIndex(method, ".")
	if i <= 0 {
		return "", "", "", false
	}
	op = method[i+1:]
	rest := method[:i]
	if j := strings.LastIndex(rest, "."); j >= 0 {
		namespace, service = rest[:j], rest[j+1:]
	} else {
		service = rest
	}
	return namespace, service, op, service != ""
}

// RPCHandler returns a JSON-RPC handler serving the dataset
func RPCHandler(d *Dataset, logger *zap.Logger) jsonrpc2.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		logger.Debug("fixture call", zap.String("method", req.Method()))

		_, service, op, ok := SplitMethod(req.Method())
		if !ok {
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}

		switch op {
		case OpRead:
			return handleRead(ctx, d, service, reply, req)
		case OpWrite:
			return handleWrite(ctx, d, service, reply, req)
		case OpDelete:
			return handleDelete(ctx, d, service, reply, req)
		default:
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

func handleRead(ctx context.Context, d *Dataset, service string, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params map[string]interface{}
	if len(req.Params()) > 0 {
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return replyWithError(ctx, reply, jsonrpc2.InvalidParams, "read params must be an object")
		}
	}

	rows, err := d.Query(service, query.DecodePayload(params))
	if err != nil {
		return replyWithError(ctx, reply, jsonrpc2.InternalError, err.Error())
	}
	return reply(ctx, rows, nil)
}

func handleWrite(ctx context.Context, d *Dataset, service string, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params WriteParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyWithError(ctx, reply, jsonrpc2.InvalidParams, "write params must be an object")
	}
	pk := params.PrimaryKey
	if pk == "" {
		pk = DefaultPrimaryKey
	}

	if params.New || params.ID == nil {
		resp := d.Insert(service, pk, params.Attributes)
		return reply(ctx, writeResult(resp.Success, resp.ModelAttributes(), resp.Errors()), nil)
	}
	if !d.exists(service, pk, params.ID) {
		return reply(ctx, WriteResult{Errors: map[string]interface{}{"base": "record not found"}}, nil)
	}
	resp := d.Update(service, pk, params.ID, params.Attributes)
	return reply(ctx, writeResult(resp.Success, resp.ModelAttributes(), resp.Errors()), nil)
}

func handleDelete(ctx context.Context, d *Dataset, service string, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params WriteParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyWithError(ctx, reply, jsonrpc2.InvalidParams, "delete params must be an object")
	}
	pk := params.PrimaryKey
	if pk == "" {
		pk = DefaultPrimaryKey
	}
	if !d.exists(service, pk, params.ID) {
		return reply(ctx, WriteResult{Errors: map[string]interface{}{"base": "record not found"}}, nil)
	}
	resp := d.Remove(service, pk, params.ID)
	return reply(ctx, writeResult(resp.Success, nil, resp.Errors()), nil)
}

func writeResult(success bool, attrs, errs map[string]interface{}) WriteResult {
	if success {
		return WriteResult{Success: true, Attributes: attrs}
	}
	return WriteResult{Errors: errs}
}

func replyWithError(ctx context.Context, reply jsonrpc2.Replier, code jsonrpc2.Code, message string) error {
	return reply(ctx, nil, &jsonrpc2.Error{Code: code, Message: message})
}

// ServeRPC accepts connections on ln and serves each with handler until ctx
// is done. It closes ln and every open connection before returning.
func ServeRPC(ctx context.Context, ln net.Listener, handler jsonrpc2.Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		conn := jsonrpc2.NewConn(jsonrpc2.NewStream(nc))
		conn.Go(ctx, handler)

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-conn.Done():
			case <-ctx.Done():
				conn.Close()
				<-conn.Done()
			}
		}()
	}
}
