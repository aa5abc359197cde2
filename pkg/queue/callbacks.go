package queue

import (
	"context"
	"fmt"
	"log/slog"
)

// callbackExecutor runs user-supplied success/failure hooks in isolation.
// By the time a callback fires the job's terminal state is already
// decided; nothing a callback does (error, panic, slowness) can change it
// or re-enter the worker loop.
type callbackExecutor struct {
	registry *Registry
	logger   *slog.Logger
}

func newCallbackExecutor(registry *Registry, logger *slog.Logger) *callbackExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &callbackExecutor{registry: registry, logger: logger}
}

// notifySuccess invokes the job's success callback, if any.
func (c *callbackExecutor) notifySuccess(ctx context.Context, job *Job, result any) {
	c.invoke(ctx, job, job.OnSuccess, CallbackPayload{
		OperationID: job.OperationID,
		Entity:      job.Entity,
		Result:      result,
	})
}

// notifyFailure invokes the job's failure callback, if any.
func (c *callbackExecutor) notifyFailure(ctx context.Context, job *Job, execErr error) {
	c.invoke(ctx, job, job.OnFailure, CallbackPayload{
		OperationID: job.OperationID,
		Entity:      job.Entity,
		Err:         execErr,
	})
}

func (c *callbackExecutor) invoke(ctx context.Context, job *Job, ref *Ref, payload CallbackPayload) {
	if ref == nil || ref.IsZero() {
		return
	}

	fn, err := c.registry.ResolveCallback(*ref)
	if err != nil {
		c.logger.Warn("callback reference unresolved",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("callback", ref.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := c.safeInvoke(ctx, fn, payload); err != nil {
		c.logger.Error("callback failed",
			slog.String("operation_id", job.OperationID.String()),
			slog.String("callback", ref.String()),
			slog.String("error", err.Error()))
	}
}

func (c *callbackExecutor) safeInvoke(ctx context.Context, fn CallbackFunc, payload CallbackPayload) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in callback: %v", r)
		}
	}()
	return fn(ctx, payload)
}
