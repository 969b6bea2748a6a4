// File: internal/browser/netidle.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// networkIdleQuiet is how long the page must have no request in flight to count as idle.
const networkIdleQuiet = 500 * time.Millisecond

// networkTracker counts in-flight requests of a tab from CDP network events.
type networkTracker struct {
	logger *zap.Logger

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	now          func() time.Time
}

func newNetworkTracker(logger *zap.Logger) *networkTracker {
	return &networkTracker{
		logger:       logger,
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
		now:          time.Now,
	}
}

// attach subscribes to the tab's network events. The network domain must be enabled
// separately with network.Enable.
func (t *networkTracker) attach(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, t.handle)
}

func (t *networkTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(e.RequestID)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *networkTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// Redirects reuse the request ID; the set keeps them counted once.
	t.inflight[id] = struct{}{}
	t.lastActivity = t.now()
}

func (t *networkTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.lastActivity = t.now()
}

// idle reports whether nothing has been in flight for at least quiet.
func (t *networkTracker) idle(quiet time.Duration) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.inflight)
	return n == 0 && t.now().Sub(t.lastActivity) >= quiet, n
}

// reset forgets requests of the previous document.
func (t *networkTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[network.RequestID]struct{})
	t.lastActivity = t.now()
}

// wait blocks until the network has been quiet for the quiet period or ctx is done.
func (t *networkTracker) wait(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(quiet / 5)
	defer ticker.Stop()
	for {
		if ok, n := t.idle(quiet); ok {
			return nil
		} else if n > 0 {
			t.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", n))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
