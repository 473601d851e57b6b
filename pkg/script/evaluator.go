// Package script evaluates the small value directives used by populate,
// default and auto-filter rules, e.g. "utcnow", "userAuthName" or "'literal'".
package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Evaluator turns a directive into a value at request time.
type Evaluator interface {
	Eval(ctx context.Context, directive string) (any, error)
}

// Func computes one named directive.
type Func func(ctx context.Context) (any, error)

// DefaultEvaluator understands literals, request identity and a small set of
// builtin functions. Further functions can be registered.
type DefaultEvaluator struct {
	mu    sync.RWMutex
	funcs map[string]Func
	now   func() time.Time
}

// NewEvaluator creates an evaluator with the builtin functions registered
func NewEvaluator() *DefaultEvaluator {
	e := &DefaultEvaluator{
		funcs: make(map[string]Func),
		now:   time.Now,
	}
	e.Register("now", func(context.Context) (any, error) { return e.now(), nil })
	e.Register("utcnow", func(context.Context) (any, error) { return e.now().UTC(), nil })
	e.Register("uuid", func(context.Context) (any, error) { return uuid.NewString(), nil })
	e.Register("userAuthId", func(ctx context.Context) (any, error) {
		return FromContext(ctx).UserAuthID, nil
	})
	e.Register("userAuthName", func(ctx context.Context) (any, error) {
		return FromContext(ctx).UserAuthName, nil
	})
	return e
}

// WithClock replaces the time source, used by tests
func (e *DefaultEvaluator) WithClock(now func() time.Time) *DefaultEvaluator {
	e.now = now
	return e
}

// Register adds or replaces a named function. Names are case-insensitive.
func (e *DefaultEvaluator) Register(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[strings.ToLower(name)] = fn
}

// Eval evaluates a directive.
func (e *DefaultEvaluator) Eval(ctx context.Context, directive string) (any, error) {
	d := strings.TrimSpace(directive)
	if d == "" {
		return nil, fmt.Errorf("empty directive")
	}

	if len(d) >= 2 && (d[0] == '\'' || d[0] == '"') && d[len(d)-1] == d[0] {
		return d[1 : len(d)-1], nil
	}

	switch strings.ToLower(d) {
	case "null", "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if i, err := strconv.ParseInt(d, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(d, 64); err == nil {
		return f, nil
	}

	if key, ok := strings.CutPrefix(d, "item:"); ok {
		v, found := FromContext(ctx).Items[key]
		if !found {
			return nil, fmt.Errorf("request item %q not set", key)
		}
		return v, nil
	}

	name := strings.ToLower(strings.TrimSuffix(d, "()"))
	e.mu.RLock()
	fn, ok := e.funcs[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown directive %q", directive)
	}
	return fn(ctx)
}
