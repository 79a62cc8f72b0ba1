package middlewares

import (
	"context"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/orm/relationships"
)

type preloadAssociations struct {
	next adapter.Handler
}

// NewPreloadAssociations builds the processor that eager loads a read's
// includes onto the returned records, one dispatch per association. Nested
// includes are loaded by the same processor on the associated type's
// adapter, so it has to be configured there too.
func NewPreloadAssociations(next adapter.Handler, cfg adapter.StageConfig) (adapter.Handler, error) {
	return &preloadAssociations{next: next}, nil
}

func (p *preloadAssociations) Call(ctx context.Context, req *adapter.Request) (*adapter.Result, error) {
	res, err := p.next.Call(ctx, req)
	if err != nil || res == nil {
		return res, err
	}
	if req.Mode != adapter.ModeRead || req.Relation == nil || req.Relation.IncludesValue().IsEmpty() {
		return res, nil
	}

	if err := relationships.Preload(ctx, res.Records, req.Relation); err != nil {
		return nil, err
	}
	return res, nil
}
