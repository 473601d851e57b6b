package crud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/modelregistry"
)

// Replay re-applies a recorded event. The request type is looked up by the
// event's RequestType in registry, its body decoded and the operation run
// without recording a new event. A replayed create reuses the recorded key.
func Replay(ctx context.Context, e *Executor, registry *modelregistry.DefaultModelRegistry, ev *Event) (*Execution, error) {
	if ev == nil {
		return nil, fmt.Errorf("crud: nothing to replay")
	}
	op, err := ParseOperation(string(ev.EventType))
	if err != nil {
		return nil, err
	}
	rules, err := registry.GetModelRules(ev.RequestType)
	if err != nil {
		return nil, err
	}
	if !rules.Allows("replay") || !rules.Allows(string(op)) {
		return nil, fmt.Errorf("crud: %s may not be replayed as %s", ev.RequestType, op)
	}

	req, err := registry.New(ev.RequestType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ev.RequestBody), req); err != nil {
		return nil, fmt.Errorf("crud: failed to decode %s body of event %s: %w", ev.RequestType, ev.ID, err)
	}

	meta, err := e.engine.Resolve(req)
	if err != nil {
		return nil, err
	}
	ref := ev.RefID
	if ref == "" && meta.PrimaryKey != nil {
		ref = refFromBody(ev.RequestBody, meta.PrimaryKey.Field)
	}

	ctx = WithIgnoreEvent(ctx)
	if ref != "" {
		ctx = WithReplayID(ctx, ref)
	}
	logger.Debug("Replaying %s event %s for %s", op, ev.ID, ev.RequestType)
	return e.run(ctx, nil, op, req, nil)
}
