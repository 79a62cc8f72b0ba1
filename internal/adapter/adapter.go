// Package adapter provides the request pipeline that sits between models and
// the remote services they are backed by. A dispatch runs through the
// configured processors, the built-in bridge, the configured middlewares and
// finally the transport:
//
//	processors -> bridge -> middlewares -> transport
//
// Processors see records, middlewares see the raw rows returned by the
// transport. The stack is assembled once per adapter and reused.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
)

// Transport performs the network I/O of a pipeline
type Transport interface {
	Read(ctx context.Context, req *Request) ([]Row, error)
	Write(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
}

// TransportFactory creates a transport from the folded adapter configuration
type TransportFactory func(cfg Config) (Transport, error)

var (
	registryMu sync.RWMutex
	transports = make(map[string]TransportFactory)
)

// Register makes a transport available under name. It is called from the
// init function of each transport package; registering a name twice panics.
func Register(name string, factory TransportFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("adapter: Register factory is nil")
	}
	if _, dup := transports[name]; dup {
		panic("adapter: Register called twice for transport " + name)
	}
	transports[name] = factory
}

// Transports returns the sorted names of the registered transports
func Transports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(transports))
	for name := range transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupTransport(name string) (TransportFactory, error) {
	if name == "" {
		return nil, ormerr.NewConfigurationError("adapter", "no transport type configured")
	}

	registryMu.RLock()
	factory, ok := transports[name]
	registryMu.RUnlock()

	if !ok {
		return nil, ormerr.NewConfigurationError("adapter", fmt.Sprintf("unknown transport type %q", name))
	}
	return factory, nil
}

// Adapter is a configured pipeline for one model and mode
type Adapter struct {
	contexts []Context
	config   Config
	factory  TransportFactory

	once     sync.Once
	stack    Handler
	stackErr error
}

// New creates an adapter from configuration contexts folded left to right.
// It fails with a ConfigurationError when the transport type is missing or
// unknown.
func New(contexts ...Context) (*Adapter, error) {
	cfg := Fold(contexts)

	factory, err := lookupTransport(cfg.Type)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		contexts: append([]Context(nil), contexts...),
		config:   cfg,
		factory:  factory,
	}, nil
}

// Extend returns a new adapter with additional configuration contexts
// appended. The receiver is not modified.
func (a *Adapter) Extend(contexts ...Context) (*Adapter, error) {
	all := make([]Context, 0, len(a.contexts)+len(contexts))
	all = append(all, a.contexts...)
	all = append(all, contexts...)
	return New(all...)
}

// Config returns the folded configuration
func (a *Adapter) Config() Config {
	return a.config.clone()
}

// Logger returns the adapter's logger
func (a *Adapter) Logger() *zap.Logger {
	return a.config.Logger
}

// Call dispatches a request through the stack
func (a *Adapter) Call(ctx context.Context, req *Request) (*Result, error) {
	stack, err := a.build()
	if err != nil {
		return nil, err
	}
	return stack.Call(ctx, req)
}

// Read dispatches a read for the relation and returns the resulting records
func (a *Adapter) Read(ctx context.Context, r *query.Relation) ([]*record.Record, error) {
	res, err := a.Call(ctx, &Request{Mode: ModeRead, Relation: r})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Records, nil
}

// Write dispatches a write for the record
func (a *Adapter) Write(ctx context.Context, rec *record.Record) (*Response, error) {
	return a.mutate(ctx, ModeWrite, rec)
}

// Delete dispatches a delete for the record
func (a *Adapter) Delete(ctx context.Context, rec *record.Record) (*Response, error) {
	return a.mutate(ctx, ModeDelete, rec)
}

func (a *Adapter) mutate(ctx context.Context, mode Mode, rec *record.Record) (*Response, error) {
	res, err := a.Call(ctx, &Request{Mode: mode, Record: rec})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Response == nil {
		return nil, fmt.Errorf("%s dispatch returned no response", mode)
	}
	return res.Response, nil
}

// build assembles processors, the bridge and middlewares around the
// transport, innermost first
func (a *Adapter) build() (Handler, error) {
	a.once.Do(func() {
		transport, err := a.factory(a.config.clone())
		if err != nil {
			a.stackErr = fmt.Errorf("failed to create %s transport: %w", a.config.Type, err)
			return
		}

		var handler Handler = transportHandler{transport: transport}

		stages := make([]Stage, 0, len(a.config.Processors)+len(a.config.Middlewares)+1)
		stages = append(stages, a.config.Processors...)
		stages = append(stages, Stage{Name: "bridge", New: newBridge})
		stages = append(stages, a.config.Middlewares...)

		for i := len(stages) - 1; i >= 0; i-- {
			stage := stages[i]
			if stage.New == nil {
				a.stackErr = ormerr.NewConfigurationError("adapter", fmt.Sprintf("stage %q has no constructor", stage.Name))
				return
			}
			handler, err = stage.New(handler, StageConfig{Adapter: a.config, Options: stage.Options})
			if err != nil {
				a.stackErr = fmt.Errorf("failed to build stage %q: %w", stage.Name, err)
				return
			}
		}

		a.stack = handler
	})

	return a.stack, a.stackErr
}

// transportHandler is the innermost handler, calling the transport for the
// request's mode
type transportHandler struct {
	transport Transport
}

func (h transportHandler) Call(ctx context.Context, req *Request) (*Result, error) {
	switch req.Mode {
	case ModeRead:
		rows, err := h.transport.Read(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	case ModeWrite:
		resp, err := h.transport.Write(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp}, nil
	case ModeDelete:
		resp, err := h.transport.Delete(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp}, nil
	default:
		return nil, fmt.Errorf("unsupported dispatch mode %s", req.Mode)
	}
}
