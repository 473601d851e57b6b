package autoquery

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/logger"
)

// HookType defines the type of hook to execute
type HookType string

const (
	// BeforeQuery fires after compilation, before the SELECT runs.
	BeforeQuery HookType = "before_query"
	// AfterQuery fires once the response is shaped.
	AfterQuery HookType = "after_query"

	// BeforeMutation fires once dirty values are resolved, before the statement runs.
	BeforeMutation HookType = "before_mutation"
	// AfterMutation fires after the statement, inside the transaction when there is one.
	AfterMutation HookType = "after_mutation"
)

// HookContext contains all the data available to a hook
type HookContext struct {
	Context  context.Context
	Engine   *Engine
	Metadata *RequestMetadata
	Request  any
	Params   map[string]string

	// Operation is "query", "create", "update", "patch", "delete" or "save".
	Operation string

	// Query is the compiled SELECT for query hooks; conditions may be added.
	Query *SqlExpression
	// Values are the dirty values of a mutation, keyed by column.
	Values map[string]interface{}

	Result       interface{}
	RowsAffected int64
	Error        error

	// Tx is the connection or transaction the operation runs on.
	Tx common.Database

	Abort        bool
	AbortMessage string
}

// HookFunc is the signature for hook functions
// If an error is returned, the operation will be aborted
type HookFunc func(*HookContext) error

// HookRegistry holds global hooks and hooks scoped to one request type.
type HookRegistry struct {
	mu     sync.RWMutex
	global map[HookType][]HookFunc
	scoped map[reflect.Type]map[HookType][]HookFunc
}

// NewHookRegistry creates a new hook registry
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		global: make(map[HookType][]HookFunc),
		scoped: make(map[reflect.Type]map[HookType][]HookFunc),
	}
}

// Register adds a hook that runs for every request type.
func (r *HookRegistry) Register(hookType HookType, hook HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global[hookType] = append(r.global[hookType], hook)
	logger.Info("Registered hook for %s (total: %d)", hookType, len(r.global[hookType]))
}

// RegisterFor adds a hook that only runs for req's type.
func (r *HookRegistry) RegisterFor(req any, hookType HookType, hook HookFunc) {
	typ := requestType(req)
	if typ == nil {
		logger.Warn("Ignoring hook for %s: request must be a struct", hookType)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scoped[typ] == nil {
		r.scoped[typ] = make(map[HookType][]HookFunc)
	}
	r.scoped[typ][hookType] = append(r.scoped[typ][hookType], hook)
	logger.Info("Registered hook for %s on %s", hookType, typ.Name())
}

// Execute runs the global hooks and then the ones scoped to the request type.
// The first error or abort stops the chain.
func (r *HookRegistry) Execute(hookType HookType, ctx *HookContext) error {
	r.mu.RLock()
	hooks := append([]HookFunc(nil), r.global[hookType]...)
	if ctx.Metadata != nil {
		hooks = append(hooks, r.scoped[ctx.Metadata.RequestType][hookType]...)
	}
	r.mu.RUnlock()

	if len(hooks) == 0 {
		return nil
	}
	logger.Debug("Executing %d hook(s) for %s", len(hooks), hookType)

	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			logger.Error("Hook %d for %s failed: %v", i+1, hookType, err)
			return fmt.Errorf("hook execution failed: %w", err)
		}
		if ctx.Abort {
			logger.Warn("Hook %d for %s requested abort: %s", i+1, hookType, ctx.AbortMessage)
			return fmt.Errorf("operation aborted by hook: %s", ctx.AbortMessage)
		}
	}
	return nil
}

// Count returns the number of global hooks registered for a type.
func (r *HookRegistry) Count(hookType HookType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.global[hookType])
}

// ClearAll removes all registered hooks
func (r *HookRegistry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = make(map[HookType][]HookFunc)
	r.scoped = make(map[reflect.Type]map[HookType][]HookFunc)
	logger.Info("Cleared all hooks")
}
