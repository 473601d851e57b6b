package crud

import (
	"context"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/metrics"
	"github.com/bitechdev/autoquery/pkg/tracing"
)

// Executor runs mutations against the requests registered on an engine.
type Executor struct {
	engine     *autoquery.Engine
	sink       EventSink
	publishers []Publisher
	metrics    metrics.Provider
}

// Option configures an Executor.
type Option func(*Executor)

// WithEventSink records an event for every mutation, inside its transaction.
func WithEventSink(sink EventSink) Option {
	return func(e *Executor) { e.sink = sink }
}

// WithPublisher hands every committed event to p.
func WithPublisher(p Publisher) Option {
	return func(e *Executor) {
		if p != nil {
			e.publishers = append(e.publishers, p)
		}
	}
}

// NewExecutor creates an executor over engine.
func NewExecutor(engine *autoquery.Engine, opts ...Option) *Executor {
	e := &Executor{engine: engine, metrics: engine.Options().Metrics}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the engine the executor resolves requests with.
func (e *Executor) Engine() *autoquery.Engine { return e.engine }

// afterFunc runs inside the mutation's transaction once the statement succeeded.
type afterFunc func(ctx context.Context, db common.Database, x *Execution) error

// run drives one mutation through resolution, execution and recording. It
// opens a transaction only when an event has to be recorded with the change.
// A nil db leases the request's connection from the engine; otherwise db is
// used as is and a transaction it already carries is joined, not committed.
func (e *Executor) run(ctx context.Context, db common.Database, op Operation, req any, after afterFunc) (x *Execution, err error) {
	meta, err := e.engine.Resolve(req)
	if err != nil {
		return nil, err
	}
	ctx, finish := tracing.StartOperation(ctx, string(op), meta.Name, meta.Model.Table)
	defer func() { finish(err) }()

	if db == nil {
		leased, release, err := e.engine.Connection(ctx, meta)
		if err != nil {
			return nil, err
		}
		defer release()
		db = leased
	}

	x = newExecution(op, meta)
	if err := e.resolveValues(ctx, x, req); err != nil {
		return nil, err
	}

	record := e.sink != nil && !IgnoreEvent(ctx)
	body := func(tx common.Database) error {
		hctx := &autoquery.HookContext{
			Context:   ctx,
			Engine:    e.engine,
			Metadata:  meta,
			Request:   x.Request,
			Operation: string(op),
			Values:    x.Values,
			Tx:        tx,
		}
		if err := e.engine.Hooks().Execute(autoquery.BeforeMutation, hctx); err != nil {
			return err
		}
		if err := e.execute(ctx, tx, x); err != nil {
			return err
		}
		if after != nil {
			if err := after(ctx, tx, x); err != nil {
				return err
			}
		}
		hctx.RowsAffected = x.RowsAffected
		if err := e.engine.Hooks().Execute(autoquery.AfterMutation, hctx); err != nil {
			return err
		}
		if !record {
			return nil
		}

		ev, err := newEvent(ctx, x)
		if err != nil {
			return err
		}
		if err := e.sink.Record(ctx, tx, ev); err != nil {
			e.metrics.RecordCrudEvent(string(op), "failed")
			return err
		}
		x.Event = ev
		return nil
	}

	if record {
		err = db.RunInTransaction(ctx, body)
	} else {
		err = body(db)
	}
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx, tracing.AttrRowsAffected.Int64(x.RowsAffected))
	if x.RowsAffected > 0 {
		e.engine.InvalidateCache(ctx, meta)
	}

	if x.Event != nil {
		e.metrics.RecordCrudEvent(string(op), "recorded")
		e.publish(ctx, x.Event)
	}
	return x, nil
}

func (e *Executor) publish(ctx context.Context, ev *Event) {
	for _, p := range e.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			logger.Warn("Failed to publish %s event %s: %v", ev.EventType, ev.ID, err)
			e.metrics.RecordCrudEvent(string(ev.EventType), "publish_failed")
			continue
		}
		e.metrics.RecordCrudEvent(string(ev.EventType), "published")
	}
}
