// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of primary (the
// chromedp tab context) and is canceled when either primary or op is done.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(op, func() { cancel(context.Cause(op)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// valueOnlyContext keeps the values of its parent, such as the chromedp
// browser and allocator, but never its deadline or cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }

func (valueOnlyContext) Done() <-chan struct{} { return nil }

func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that inherits values from ctx but is not canceled when ctx is.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
