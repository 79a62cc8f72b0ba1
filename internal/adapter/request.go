package adapter

import (
	"context"

	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
)

// Mode is the kind of dispatch
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeDelete
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Row is one raw record as returned by a transport
type Row = map[string]interface{}

// Request is a single dispatch through the stack. Reads carry a Relation,
// writes and deletes carry a Record.
type Request struct {
	Mode     Mode
	Relation *query.Relation
	Record   *record.Record
}

// Result is what a stage returns. Below the bridge reads fill Rows, above it
// they fill Records. Writes and deletes fill Response at every level.
type Result struct {
	Rows     []Row
	Records  []*record.Record
	Response *Response
}

// Handler executes a request
type Handler interface {
	Call(ctx context.Context, req *Request) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

// Call implements Handler
func (f HandlerFunc) Call(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// StageConfig is what a stage receives when the stack is built
type StageConfig struct {
	// Adapter is the folded configuration of the owning adapter
	Adapter Config
	// Options are the stage's own options
	Options map[string]interface{}
}

// StageFactory builds a stage wrapping next
type StageFactory func(next Handler, cfg StageConfig) (Handler, error)

// Stage is a processor or middleware declaration
type Stage struct {
	Name    string
	New     StageFactory
	Options map[string]interface{}
}
