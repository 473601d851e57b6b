package autoquery

import (
	"context"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/tracing"
)

// Execute compiles req with the caller's raw parameters, runs it and shapes
// the rows into T. T is usually the model type.
func Execute[T any](ctx context.Context, e *Engine, req any, params map[string]string) (*QueryResponse[T], error) {
	meta, err := e.Resolve(req)
	if err != nil {
		return nil, err
	}
	db, release, err := e.Connection(ctx, meta)
	if err != nil {
		return nil, err
	}
	defer release()
	return execute[T](ctx, e, db, meta, req, params)
}

// ExecuteWith is Execute on a connection owned by the caller.
func ExecuteWith[T any](ctx context.Context, e *Engine, db common.Database, req any, params map[string]string) (*QueryResponse[T], error) {
	meta, err := e.Resolve(req)
	if err != nil {
		return nil, err
	}
	return execute[T](ctx, e, db, meta, req, params)
}

func execute[T any](ctx context.Context, e *Engine, db common.Database, meta *RequestMetadata, req any, params map[string]string) (resp *QueryResponse[T], err error) {
	ctx, finish := tracing.StartOperation(ctx, "query", meta.Name, meta.Model.Table)
	defer func() { finish(err) }()

	q, err := e.compile(ctx, common.DialectOf(db), meta, req, params)
	if err != nil {
		return nil, err
	}

	hctx := &HookContext{
		Context:   ctx,
		Engine:    e,
		Metadata:  meta,
		Request:   q.Request,
		Params:    params,
		Operation: "query",
		Query:     q,
		Tx:        db,
	}
	if err := e.hooks.Execute(BeforeQuery, hctx); err != nil {
		return nil, err
	}

	sql, args := q.ToSelect()
	results := make([]T, 0)
	if err := e.query(ctx, db, "select", meta, &results, sql, args); err != nil {
		return nil, err
	}

	resp = &QueryResponse[T]{Offset: q.Offset, Results: results}
	totalSet := false
	if base := baseOf(q.Request); base != nil && base.Include != "" {
		if totalSet, err = e.ApplyAggregates(ctx, db, resp, q, base.Include); err != nil {
			return nil, err
		}
	}
	if !totalSet {
		resp.Total = resp.Offset + len(resp.Results)
	}
	tracing.SetAttributes(ctx, tracing.AttrResultCount.Int(len(resp.Results)))

	hctx.Result = resp
	if err := e.hooks.Execute(AfterQuery, hctx); err != nil {
		return nil, err
	}
	return resp, nil
}
