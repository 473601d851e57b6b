package autoquery

import (
	"context"
	"reflect"
	"time"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/errortracking"
	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

// Engine compiles and runs requests. It is safe for concurrent use; its only
// shared state is the metadata cache, which is append-only.
type Engine struct {
	db       common.Database
	opts     Options
	matcher  *FieldMatcher
	hooks    *HookRegistry
	requests reflection.Cache[reflect.Type, *RequestMetadata]
}

// NewEngine creates an engine that runs against db unless a request names
// another connection. opts is copied.
func NewEngine(db common.Database, opts Options) *Engine {
	opts.withDefaults()
	e := &Engine{
		db:    db,
		opts:  opts,
		hooks: NewHookRegistry(),
	}
	e.matcher = NewFieldMatcher(&e.opts)
	return e
}

// DB returns the default database.
func (e *Engine) DB() common.Database { return e.db }

// Options returns a copy of the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Hooks returns the hook registry.
func (e *Engine) Hooks() *HookRegistry { return e.hooks }

// Matcher returns the field matcher configured with the engine conventions.
func (e *Engine) Matcher() *FieldMatcher { return e.matcher }

// EvalValue resolves a literal or evaluator directive.
func (e *Engine) EvalValue(ctx context.Context, value any, eval string) (any, error) {
	return e.evalValue(ctx, value, eval)
}

// Connection returns the database meta runs against and a func releasing it.
// A named connection is opened through Options.Connections and closed on
// release; the default database is never closed by the engine.
func (e *Engine) Connection(ctx context.Context, meta *RequestMetadata) (common.Database, func(), error) {
	if name := meta.Rules.Connection; name != "" {
		if e.opts.Connections == nil {
			return nil, nil, configErrorf(meta.Name, "connection %q requested but no connection factory is configured", name)
		}
		conn, err := e.opts.Connections.OpenConnection(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() {
			if err := conn.Close(); err != nil {
				logger.Warn("Failed to close connection %s: %v", name, err)
			}
		}, nil
	}
	if e.db == nil {
		return nil, nil, configErrorf(meta.Name, "no database configured")
	}
	return e.db, func() {}, nil
}

// query runs a SELECT, wrapping driver failures in an ExecutionError.
func (e *Engine) query(ctx context.Context, db common.Database, op string, meta *RequestMetadata, dest interface{}, sql string, args []interface{}) error {
	logger.Debug("%s %s: %s %v", op, meta.Name, sql, args)
	start := time.Now()
	err := db.Query(ctx, dest, sql, args...)
	e.opts.Metrics.RecordDBQuery(op, meta.Model.Table, time.Since(start), err)
	if err != nil {
		return e.executionError(ctx, op, meta, sql, err)
	}
	return nil
}

// Exec runs a statement, wrapping driver failures in an ExecutionError.
func (e *Engine) Exec(ctx context.Context, db common.Database, op string, meta *RequestMetadata, sql string, args []interface{}) (common.Result, error) {
	logger.Debug("%s %s: %s %v", op, meta.Name, sql, args)
	start := time.Now()
	res, err := db.Exec(ctx, sql, args...)
	e.opts.Metrics.RecordDBQuery(op, meta.Model.Table, time.Since(start), err)
	if err != nil {
		return nil, e.executionError(ctx, op, meta, sql, err)
	}
	return res, nil
}

// Query is the exported form of query for the crud executor.
func (e *Engine) Query(ctx context.Context, db common.Database, op string, meta *RequestMetadata, dest interface{}, sql string, args []interface{}) error {
	return e.query(ctx, db, op, meta, dest, sql, args)
}

func (e *Engine) executionError(ctx context.Context, op string, meta *RequestMetadata, sql string, err error) error {
	wrapped := &ExecutionError{Op: op + " " + meta.Name, SQL: sql, Err: err}
	if ctx.Err() == nil {
		logger.CaptureError(ctx, wrapped, map[string]interface{}{
			errortracking.FieldRequestType: meta.Name,
			errortracking.FieldOperation:   op,
			errortracking.FieldTable:       meta.Model.Table,
			errortracking.FieldSQL:         sql,
		})
	}
	return wrapped
}
