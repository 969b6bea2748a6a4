// File: internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values of primary (for chromedp,
// the tab connection) and is cancelled when either primary or secondary is done.
// The cause of a secondary cancellation is preserved in context.Cause.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(primary)
	stop := context.AfterFunc(secondary, func() {
		cancel(context.Cause(secondary))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

// detachedContext keeps the values of its parent but none of its deadline or cancellation.
type detachedContext struct {
	context.Context
}

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}       { return nil }
func (detachedContext) Err() error                  { return nil }

// Detach returns a context that inherits values from ctx but outlives it. Cleanup that
// must still talk to the browser after the run was cancelled uses it.
func Detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}
