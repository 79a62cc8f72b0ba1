package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
)

// Reloader is implemented by models that can refresh a record from their
// read adapter after a successful write
type Reloader interface {
	Reload(ctx context.Context, rec *record.Record) error
}

// bridge turns transport rows into records on read and folds write and
// delete responses back into the record
type bridge struct {
	next   Handler
	config Config
}

func newBridge(next Handler, cfg StageConfig) (Handler, error) {
	return &bridge{next: next, config: cfg.Adapter}, nil
}

func (b *bridge) Call(ctx context.Context, req *Request) (*Result, error) {
	res, err := b.next.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}

	switch req.Mode {
	case ModeRead:
		if req.Relation == nil {
			return res, nil
		}
		target := req.Relation.Target()
		records := make([]*record.Record, 0, len(res.Rows))
		for _, row := range res.Rows {
			if rec := record.FromStore(target, row); rec != nil {
				records = append(records, rec)
			}
		}
		res.Records = records
		return res, nil
	case ModeWrite:
		if err := b.afterWrite(ctx, req.Record, res.Response); err != nil {
			return nil, err
		}
		return res, nil
	case ModeDelete:
		b.afterDelete(ctx, req.Record, res.Response)
		return res, nil
	default:
		return res, nil
	}
}

func (b *bridge) afterWrite(ctx context.Context, rec *record.Record, resp *Response) error {
	if rec == nil || resp == nil {
		return nil
	}

	rec.SetSaved(resp.Success)
	if !resp.Success {
		attachErrors(rec, resp)
		return nil
	}

	if rec.IsNew() {
		id, ok := resp.ModelAttributes()[rec.PrimaryKey()]
		if !ok || id == nil {
			return fmt.Errorf("%w: %s", ormerr.ErrPrimaryKeyMissing, modelName(rec))
		}
		if err := rec.SetID(id); err != nil {
			return err
		}
	}
	rec.SetNew(false)
	b.resetCaches(ctx)

	if reloader, ok := rec.Model().(Reloader); ok {
		if err := reloader.Reload(ctx, rec); err != nil {
			return fmt.Errorf("failed to reload %s after write: %w", modelName(rec), err)
		}
	}
	return nil
}

func (b *bridge) afterDelete(ctx context.Context, rec *record.Record, resp *Response) {
	if rec == nil || resp == nil {
		return
	}
	if !resp.Success {
		attachErrors(rec, resp)
		return
	}
	rec.Freeze()
	b.resetCaches(ctx)
}

func (b *bridge) resetCaches(ctx context.Context) {
	if b.config.Caching == nil {
		return
	}
	if err := b.config.Caching.Reset(ctx); err != nil {
		b.config.Logger.Warn("cache reset failed", zap.Error(err))
	}
}

func attachErrors(rec *record.Record, resp *Response) {
	errs := resp.Errors()
	if len(errs) == 0 {
		errs = map[string]interface{}{"base": "not saved"}
	}
	rec.AddErrors(errs)
}

func modelName(rec *record.Record) string {
	if rec.Model() == nil {
		return "record"
	}
	return rec.Model().Name()
}
