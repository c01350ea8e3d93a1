package api

import (
	"context"
	"time"

	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/tracing"
)

// Handler implements one action. It receives validated input with defaults
// applied and returns the normalized output map.
type Handler func(ctx context.Context, actx ActionContext) (map[string]any, error)

// HandlerTable maps a provider's closed set of action ids to handlers.
type HandlerTable[A ~string] map[A]Handler

// Dispatch looks actionID up in handlers, validates input against the
// action's schema and runs the handler. Every failure becomes a failed
// ActionResult, including "Unknown action: <id>".
func Dispatch[A ~string](ctx context.Context, b *BaseAdapter, actionID string, actx ActionContext, handlers HandlerTable[A]) ActionResult {
	start := time.Now()
	ctx, span := tracing.StartAction(ctx, b.ID(), actionID)

	result := b.run(ctx, actionID, actx, handlers[A(actionID)])

	tracing.EndWithStatus(span, result.Success, result.Error)
	label := actionID
	if _, known := handlers[A(actionID)]; !known {
		label = "unknown"
	}
	metrics.RecordAction(b.ID(), label, result.Success, time.Since(start))
	if !result.Success {
		b.logger.Debug("action failed", "action", actionID, "error", result.Error)
	}
	return result
}

func (b *BaseAdapter) run(ctx context.Context, actionID string, actx ActionContext, handler Handler) (res ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("action panicked", "action", actionID, "panic", r)
			res = Failed("internal error: %v", r)
		}
	}()

	if handler == nil {
		return Failed("Unknown action: %s", actionID)
	}
	if actx.Connection == nil && b.def.AuthType != schema.AuthNone {
		return Failed("no connection provided for %s", b.def.Name)
	}

	if v, ok := b.validators[actionID]; ok {
		input, err := v.Validate(actx.Input)
		if err != nil {
			return Failed("%s", err.Error())
		}
		actx.Input = input
	}
	if actx.Input == nil {
		actx.Input = map[string]any{}
	}

	output, err := handler(ctx, actx)
	if err != nil {
		return Failed("%s", err.Error())
	}
	return Succeeded(output)
}
