package middlewares

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/adapter"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the id of the dispatch ctx belongs to, if any
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID returns a context carrying a dispatch id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

type logging struct {
	next    adapter.Handler
	logger  *zap.Logger
	service string
}

// NewLogging builds a middleware that logs every dispatch at debug level:
// mode, model, service, payload, row count and duration, tagged with a
// request id. Dispatches made while serving another one (deferred proxy
// fetches) carry the outer id as parent_id.
func NewLogging(next adapter.Handler, cfg adapter.StageConfig) (adapter.Handler, error) {
	logger := cfg.Adapter.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	service := cfg.Adapter.Service
	if cfg.Adapter.Namespace != "" {
		service = cfg.Adapter.Namespace + "." + service
	}
	return &logging{next: next, logger: logger, service: service}, nil
}

func (l *logging) Call(ctx context.Context, req *adapter.Request) (*adapter.Result, error) {
	if !l.logger.Core().Enabled(zap.DebugLevel) {
		return l.next.Call(ctx, req)
	}

	id := uuid.NewString()
	fields := []zap.Field{
		zap.String("request_id", id),
		zap.String("mode", req.Mode.String()),
	}
	if parent := RequestID(ctx); parent != "" {
		fields = append(fields, zap.String("parent_id", parent))
	}
	if l.service != "" {
		fields = append(fields, zap.String("service", l.service))
	}
	ctx = WithRequestID(ctx, id)

	switch {
	case req.Relation != nil:
		fields = append(fields, zap.String("model", req.Relation.Target().Name()))
	case req.Record != nil:
		fields = append(fields, zap.Stringer("record", req.Record))
	}

	start := time.Now()
	res, err := l.next.Call(ctx, req)
	fields = append(fields, zap.Duration("duration", time.Since(start)))

	if req.Relation != nil {
		if payload, perr := req.Relation.ToHash(ctx); perr == nil {
			fields = append(fields, zap.Any("payload", payload.Map()))
		}
	}

	if err != nil {
		l.logger.Debug("dispatch failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	if res != nil {
		switch {
		case req.Mode == adapter.ModeRead:
			fields = append(fields, zap.Int("rows", len(res.Rows)))
		case res.Response != nil:
			fields = append(fields, zap.Bool("success", res.Response.Success))
		}
	}
	l.logger.Debug("dispatch", fields...)
	return res, nil
}
