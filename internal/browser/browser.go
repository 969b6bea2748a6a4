// File: internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/verify-cli/internal/config"
)

var (
	// ErrElementNotFound means no element matched a selector before the step timeout.
	ErrElementNotFound = errors.New("element not found")
	// ErrReadinessTimeout means a load state was not reached before the timeout.
	ErrReadinessTimeout = errors.New("readiness condition not reached")
	// ErrSessionClosed is returned by every Page method after Close.
	ErrSessionClosed = errors.New("browser session is closed")
)

// Launcher starts a fresh browser session. Each call returns an independent Page.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// Page is a single browser tab owned by one run. Implementations are not safe for
// concurrent use; Close is idempotent.
type Page interface {
	// Navigate loads url and returns once the load event fired or ctx expired.
	Navigate(ctx context.Context, url string) error
	// WaitForLoadState waits for "load", "domcontentloaded" or "networkidle".
	WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error
	// WaitForSelector waits until the first match of selector is visible, attached or hidden.
	WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error
	// Fill replaces the value of the first element matching selector.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Screenshot captures the viewport, or the whole document when fullPage is set, as PNG.
	Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error)
	// Close releases the tab and the browser behind it.
	Close(ctx context.Context) error
}

// Selector states accepted by WaitForSelector.
const (
	StateVisible  = "visible"
	StateAttached = "attached"
	StateHidden   = "hidden"
)

// Load states accepted by WaitForLoadState.
const (
	LoadStateLoad             = "load"
	LoadStateDOMContentLoaded = "domcontentloaded"
	LoadStateNetworkIdle      = "networkidle"
)

// NewLauncher returns the launcher for the configured driver.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) (Launcher, error) {
	switch cfg.Driver {
	case config.DriverChromedp, "":
		return NewChromedpLauncher(cfg, logger), nil
	case config.DriverPlaywright:
		return NewPlaywrightLauncher(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser driver %q", cfg.Driver)
	}
}
