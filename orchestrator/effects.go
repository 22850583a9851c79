package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loopkit/agentcore/effect"
	"github.com/loopkit/agentcore/statestore"
	"github.com/loopkit/agentcore/telemetry"
)

// Apply interprets each of effects in order, immediately, against store
// (WriteMemory/DeleteMemory), o (Signal/Delegate/Handoff), and logger (Log),
// per spec.md:141-143. It stops and returns the first error encountered;
// callers that need best-effort application over a batch should call Apply
// once per effect themselves. Custom effects are not interpreted here —
// they carry an orchestrator-specific payload the caller is expected to
// recognize before ever handing them to Apply.
func Apply(ctx context.Context, effects []effect.Effect, store statestore.Store, o Orchestrator, logger telemetry.Logger) error {
	for _, e := range effects {
		if err := apply1(ctx, e, store, o, logger); err != nil {
			return err
		}
	}
	return nil
}

func apply1(ctx context.Context, e effect.Effect, store statestore.Store, o Orchestrator, logger telemetry.Logger) error {
	switch v := e.(type) {
	case effect.WriteMemory:
		if store == nil {
			return effect.ErrNoStateStore
		}
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return fmt.Errorf("orchestrator: marshaling WriteMemory value: %w", err)
		}
		return store.Write(ctx, v.Scope.Namespace, v.Scope.Key, raw)
	case effect.DeleteMemory:
		if store == nil {
			return effect.ErrNoStateStore
		}
		return store.Delete(ctx, v.Scope.Namespace, v.Scope.Key)
	case effect.Signal:
		if o == nil {
			return fmt.Errorf("orchestrator: %w: no Orchestrator configured", effect.ErrSignalFailed)
		}
		if err := o.Signal(ctx, v.Workflow, v.Payload); err != nil {
			return fmt.Errorf("%w: %w", effect.ErrSignalFailed, err)
		}
		return nil
	case effect.Delegate:
		if o == nil {
			return fmt.Errorf("orchestrator: %w: no Orchestrator configured", effect.ErrDispatchFailed)
		}
		if _, err := o.Dispatch(ctx, v.Agent, v.Input); err != nil {
			return fmt.Errorf("%w: %w", effect.ErrDispatchFailed, err)
		}
		return nil
	case effect.Handoff:
		if o == nil {
			return fmt.Errorf("orchestrator: %w: no Orchestrator configured", effect.ErrDispatchFailed)
		}
		if _, err := o.Dispatch(ctx, v.Agent, v.Input); err != nil {
			return fmt.Errorf("%w: %w", effect.ErrDispatchFailed, err)
		}
		return nil
	case effect.Log:
		logEffect(ctx, logger, v)
		return nil
	case effect.Custom:
		return nil
	default:
		return fmt.Errorf("orchestrator: unrecognized effect %T", e)
	}
}

func logEffect(ctx context.Context, logger telemetry.Logger, l effect.Log) {
	if logger == nil {
		return
	}
	keyvals := make([]any, 0, len(l.Fields)*2)
	for k, v := range l.Fields {
		keyvals = append(keyvals, k, v)
	}
	switch l.Level {
	case "debug":
		logger.Debug(ctx, l.Message, keyvals...)
	case "warn":
		logger.Warn(ctx, l.Message, keyvals...)
	case "error":
		logger.Error(ctx, l.Message, keyvals...)
	default:
		logger.Info(ctx, l.Message, keyvals...)
	}
}
