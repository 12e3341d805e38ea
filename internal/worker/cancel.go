package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrCanceled is the cause recorded when Cancel is called without an error
var ErrCanceled = errors.New("task is canceled")

// Cancel stops the task with err as the cause. The current upload, if any,
// fails with err right away and no further attempt is started. Only the
// first cause is kept.
func (t *Task) Cancel(err error) {
	if err == nil {
		err = ErrCanceled
	}
	t.logger.Info("Canceling task", zap.Error(err))
	t.cancel(err)
}

// bind derives a context that is cancelled by either ctx or Cancel
func (t *Task) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if t.token.Err() != nil {
		cancel(context.Cause(t.token))
	}
	stop := context.AfterFunc(t.token, func() {
		cancel(context.Cause(t.token))
	})

	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// canceled returns the cancellation cause, or nil while the task may proceed
func (t *Task) canceled(ctx context.Context) error {
	if t.token.Err() != nil {
		return context.Cause(t.token)
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

// wait sleeps for d unless the task is cancelled first
func (t *Task) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t.logger.Debug("Waiting before next attempt", zap.Duration("backoff", d))
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
