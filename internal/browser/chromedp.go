// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/verify-cli/internal/config"
)

const (
	defaultLaunchTimeout = 60 * time.Second
	pollInterval         = 50 * time.Millisecond
)

// ChromedpLauncher starts a dedicated Chrome process per session over CDP.
type ChromedpLauncher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewChromedpLauncher creates a launcher for the chromedp driver.
func NewChromedpLauncher(cfg config.BrowserConfig, logger *zap.Logger) *ChromedpLauncher {
	return &ChromedpLauncher{cfg: cfg, logger: logger.Named("chromedp")}
}

// chromeFlag is one command line switch passed to Chrome.
type chromeFlag struct {
	name  string
	value interface{}
}

// chromeFlags lists the switches applied on top of chromedp's defaults.
func chromeFlags(cfg config.BrowserConfig) []chromeFlag {
	flags := []chromeFlag{
		{"no-sandbox", true},
		{"disable-dev-shm-usage", true},
		// The defaults are headless; an explicit false turns that off.
		{"headless", cfg.Headless},
	}
	if cfg.DisableGPU {
		flags = append(flags, chromeFlag{"disable-gpu", true})
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags = append(flags, chromeFlag{"window-size", fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)})
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, chromeFlag{name, value})
			continue
		}
		flags = append(flags, chromeFlag{arg, true})
	}
	return flags
}

// allocatorOptions builds the exec allocator configuration for one session.
func allocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		path, err := homedir.Expand(cfg.ExecPath)
		if err != nil {
			return nil, fmt.Errorf("invalid browser exec_path %q: %w", cfg.ExecPath, err)
		}
		opts = append(opts, chromedp.ExecPath(path))
	}
	for _, f := range chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts, nil
}

// Launch starts Chrome and opens one tab. The browser lives until Close, independent
// of ctx; ctx and the launch timeout only bound the startup.
func (l *ChromedpLauncher) Launch(ctx context.Context) (Page, error) {
	opts, err := allocatorOptions(l.cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), opts...)
	sugar := l.logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	release := func() {
		tabCancel()
		allocCancel()
	}

	tracker := newNetworkTracker(l.logger)
	tracker.attach(tabCtx)

	timeout := l.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// The first Run allocates the browser. It must run on tabCtx itself, since a
	// derived deadline would tie the browser's lifetime to it.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx, network.Enable())
	}()

	select {
	case err := <-started:
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-timer.C:
		release()
		return nil, fmt.Errorf("timed out after %s waiting for chrome to start", timeout)
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}

	l.logger.Debug("Browser session started.", zap.Bool("headless", l.cfg.Headless))
	return &chromedpPage{
		ctx:     tabCtx,
		release: release,
		logger:  l.logger,
		tracker: tracker,
	}, nil
}

// chromedpPage is one CDP tab plus the Chrome process that owns it.
type chromedpPage struct {
	ctx     context.Context
	release func()
	logger  *zap.Logger
	tracker *networkTracker

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Page = (*chromedpPage)(nil)

// opContext derives a context carrying the tab, cancelled by ctx and bounded by timeout.
func (p *chromedpPage) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if p.closed.Load() {
		return nil, nil, ErrSessionClosed
	}
	combined, cancel := CombineContext(p.ctx, ctx)
	if timeout <= 0 {
		return combined, cancel, nil
	}
	timed, timedCancel := context.WithTimeout(combined, timeout)
	return timed, func() {
		timedCancel()
		cancel()
	}, nil
}

// timedOut reports whether opCtx hit its own deadline rather than an outer cancellation.
func timedOut(outer, opCtx context.Context) bool {
	return outer.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	opCtx, cancel, err := p.opContext(ctx, 0)
	if err != nil {
		return err
	}
	defer cancel()

	p.tracker.reset()
	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromedpPage) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	opCtx, cancel, err := p.opContext(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	var condition string
	switch state {
	case LoadStateDOMContentLoaded:
		condition = `document.readyState !== "loading"`
	case LoadStateLoad, LoadStateNetworkIdle:
		condition = `document.readyState === "complete"`
	default:
		return fmt.Errorf("unknown load state %q", state)
	}

	err = chromedp.Run(opCtx, chromedp.Poll(condition, nil, chromedp.WithPollingInterval(pollInterval)))
	if err == nil && state == LoadStateNetworkIdle {
		err = p.tracker.wait(opCtx, networkIdleQuiet)
	}
	if err != nil {
		if timedOut(ctx, opCtx) {
			return fmt.Errorf("%w: %s after %s", ErrReadinessTimeout, state, timeout)
		}
		return fmt.Errorf("wait for %s: %w", state, err)
	}
	return nil
}

// query resolves a selector into a chromedp query. XPath results are narrowed to
// the first match so that visibility checks apply to that element only.
func query(raw string) (Selector, string, []chromedp.QueryOption, error) {
	sel, err := ParseSelector(raw)
	if err != nil {
		return Selector{}, "", nil, err
	}
	if sel.Kind == SelectorXPath {
		return sel, "(" + sel.Query + ")[1]", []chromedp.QueryOption{chromedp.BySearch}, nil
	}
	return sel, sel.Query, []chromedp.QueryOption{chromedp.ByQuery}, nil
}

// firstNodeJS is a JavaScript expression evaluating to the first match of sel or null.
func firstNodeJS(sel Selector) string {
	lit, _ := json.MarshalToString(sel.Query)
	if sel.Kind == SelectorXPath {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", lit)
	}
	return fmt.Sprintf("document.querySelector(%s)", lit)
}

func hiddenJS(sel Selector) string {
	return fmt.Sprintf(`(() => { const el = %s; return !el || !el.isConnected || !(el.offsetWidth || el.offsetHeight || el.getClientRects().length); })()`, firstNodeJS(sel))
}

func (p *chromedpPage) WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error {
	sel, q, opts, err := query(selector)
	if err != nil {
		return err
	}
	opCtx, cancel, err := p.opContext(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	var action chromedp.Action
	switch state {
	case StateVisible, "":
		action = chromedp.WaitVisible(q, opts...)
	case StateAttached:
		action = chromedp.WaitReady(q, opts...)
	case StateHidden:
		action = chromedp.Poll(hiddenJS(sel), nil, chromedp.WithPollingInterval(pollInterval))
	default:
		return fmt.Errorf("unknown selector state %q", state)
	}

	if err := chromedp.Run(opCtx, action); err != nil {
		if timedOut(ctx, opCtx) {
			if state == StateHidden {
				return fmt.Errorf("%s still visible after %s", selector, timeout)
			}
			return fmt.Errorf("%w: %s (waited %s)", ErrElementNotFound, selector, timeout)
		}
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// locate waits for the first match of selector to become visible. The returned
// context still carries the remaining step budget for the action itself.
func (p *chromedpPage) locate(ctx context.Context, selector string, timeout time.Duration) (context.Context, context.CancelFunc, string, []chromedp.QueryOption, error) {
	_, q, opts, err := query(selector)
	if err != nil {
		return nil, nil, "", nil, err
	}
	opCtx, cancel, err := p.opContext(ctx, timeout)
	if err != nil {
		return nil, nil, "", nil, err
	}
	if err := chromedp.Run(opCtx, chromedp.WaitVisible(q, opts...)); err != nil {
		expired := timedOut(ctx, opCtx)
		cancel()
		if expired {
			return nil, nil, "", nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, nil, "", nil, fmt.Errorf("locate %s: %w", selector, err)
	}
	return opCtx, cancel, q, opts, nil
}

func (p *chromedpPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	opCtx, cancel, q, opts, err := p.locate(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	p.logger.Debug("Filling element.", zap.String("selector", selector))
	if err := chromedp.Run(opCtx,
		chromedp.Focus(q, opts...),
		chromedp.Clear(q, opts...),
		chromedp.SendKeys(q, value, opts...),
	); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel, q, opts, err := p.locate(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	p.logger.Debug("Clicking element.", zap.String("selector", selector))
	if err := chromedp.Run(opCtx, chromedp.Click(q, append(opts, chromedp.NodeVisible)...)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error) {
	opCtx, cancel, err := p.opContext(ctx, timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// Quality 100 keeps the capture in PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := chromedp.Run(opCtx, action); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	p.logger.Debug("Screenshot captured.", zap.Bool("full_page", fullPage), zap.Int("bytes", len(buf)))
	return buf, nil
}

// Close shuts the browser down. Only the first call does any work.
func (p *chromedpPage) Close(ctx context.Context) error {
	var closeErr error
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		done := make(chan error, 1)
		go func() {
			// Cancel closes the tab and waits for Chrome to exit.
			done <- chromedp.Cancel(p.ctx)
		}()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-ctx.Done():
			closeErr = fmt.Errorf("timed out closing browser: %w", ctx.Err())
		}
		p.release()
		p.logger.Debug("Browser session closed.")
	})
	return closeErr
}
