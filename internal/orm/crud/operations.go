// Package crud persists records through their model's write adapter:
// save, update, destroy and reload, plus the bang variants that turn a
// rejected write into ErrRecordNotSaved.
package crud

import (
	"context"
	"fmt"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
)

// Operation represents a persistence operation type
type Operation int

const (
	// OperationSave writes a new or persisted record
	OperationSave Operation = iota
	// OperationDestroy deletes a persisted record
	OperationDestroy
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationSave:
		return "save"
	case OperationDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// HookType names a point in the persistence lifecycle
type HookType int

const (
	BeforeSave HookType = iota
	AfterSave
	BeforeDestroy
	AfterDestroy
)

// Hook runs at a lifecycle point. An error from a before hook aborts the
// operation without dispatching.
type Hook func(ctx context.Context, rec *record.Record) error

// Validator checks a record before it is written. A non-empty result is
// attached to the record as its errors and the write is skipped.
type Validator interface {
	Validate(ctx context.Context, rec *record.Record, op Operation) map[string]interface{}
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, rec *record.Record, op Operation) map[string]interface{}

// Validate implements Validator
func (f ValidatorFunc) Validate(ctx context.Context, rec *record.Record, op Operation) map[string]interface{} {
	return f(ctx, rec, op)
}

// Writable is implemented by models that persist through a write adapter
type Writable interface {
	WriteAdapter() *adapter.Adapter
}

// Operations persists records. The zero value has no validator and no
// hooks.
type Operations struct {
	validator Validator
	hooks     map[HookType][]Hook
}

// Option configures Operations
type Option func(*Operations)

// WithValidator validates records before saving them
func WithValidator(v Validator) Option {
	return func(o *Operations) {
		o.validator = v
	}
}

// WithHook registers a lifecycle hook. Hooks of one type run in
// registration order.
func WithHook(t HookType, h Hook) Option {
	return func(o *Operations) {
		if o.hooks == nil {
			o.hooks = make(map[HookType][]Hook)
		}
		o.hooks[t] = append(o.hooks[t], h)
	}
}

// NewOperations creates a new Operations instance
func NewOperations(opts ...Option) *Operations {
	o := &Operations{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Operations) runHooks(ctx context.Context, t HookType, rec *record.Record) error {
	if o == nil {
		return nil
	}
	for _, h := range o.hooks[t] {
		if err := h(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func writeAdapter(rec *record.Record) (*adapter.Adapter, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot persist a nil record")
	}
	w, ok := rec.Model().(Writable)
	if !ok {
		return nil, ormerr.NewConfigurationError(modelName(rec), "model cannot be written")
	}
	a := w.WriteAdapter()
	if a == nil {
		return nil, ormerr.NewConfigurationError(modelName(rec), "no write adapter configured")
	}
	return a, nil
}

func modelName(rec *record.Record) string {
	if rec == nil || rec.Model() == nil {
		return "record"
	}
	return rec.Model().Name()
}
