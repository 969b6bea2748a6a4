// File: internal/browser/playwright.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/verify-cli/internal/config"
)

const playwrightInstallTimeout = 5 * time.Minute

// PlaywrightLauncher runs Chromium through the Playwright driver. Each session gets its
// own driver process and browser.
type PlaywrightLauncher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	installOnce sync.Once
	installErr  error
}

// NewPlaywrightLauncher creates a launcher for the playwright driver.
func NewPlaywrightLauncher(cfg config.BrowserConfig, logger *zap.Logger) *PlaywrightLauncher {
	return &PlaywrightLauncher{cfg: cfg, logger: logger.Named("playwright")}
}

// ensureInstallation downloads the driver and Chromium once per launcher when enabled.
func (l *PlaywrightLauncher) ensureInstallation(ctx context.Context) error {
	if !l.cfg.Install {
		return nil
	}
	l.installOnce.Do(func() {
		l.logger.Info("Installing Playwright driver and Chromium...")
		installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
		}()

		select {
		case err := <-done:
			if err != nil {
				l.installErr = fmt.Errorf("failed to install playwright browsers: %w", err)
			}
		case <-installCtx.Done():
			l.installErr = fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
		}
	})
	return l.installErr
}

// launchOptions merges the container-friendly defaults with configured arguments.
func launchOptions(cfg config.BrowserConfig) (playwright.BrowserTypeLaunchOptions, error) {
	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	args := []string{"--no-sandbox", "--disable-dev-shm-usage"}
	if cfg.DisableGPU {
		args = append(args, "--disable-gpu")
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg != "" {
			args = append(args, "--"+arg)
		}
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     args,
		Timeout:  playwright.Float(float64(timeout.Milliseconds())),
	}
	if cfg.ExecPath != "" {
		path, err := homedir.Expand(cfg.ExecPath)
		if err != nil {
			return opts, fmt.Errorf("invalid browser exec_path %q: %w", cfg.ExecPath, err)
		}
		opts.ExecutablePath = playwright.String(path)
	}
	return opts, nil
}

// Launch starts the driver, the browser and a page.
func (l *PlaywrightLauncher) Launch(ctx context.Context) (Page, error) {
	if err := l.ensureInstallation(ctx); err != nil {
		return nil, err
	}
	opts, err := launchOptions(l.cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}

	var pageOpts playwright.BrowserNewPageOptions
	if l.cfg.Viewport.Width > 0 && l.cfg.Viewport.Height > 0 {
		pageOpts.Viewport = &playwright.Size{Width: l.cfg.Viewport.Width, Height: l.cfg.Viewport.Height}
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	l.logger.Debug("Browser session started.", zap.String("browser_version", browser.Version()))
	return &playwrightPage{pw: pw, browser: browser, page: page, logger: l.logger}, nil
}

// playwrightPage adapts a Playwright page to the Page interface. Playwright has no
// context support, so deadlines are converted to its millisecond timeouts.
type playwrightPage struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	logger  *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ Page = (*playwrightPage)(nil)

// timeoutMs returns the smaller of timeout and the time left on ctx, in milliseconds.
// Zero means no limit.
func timeoutMs(ctx context.Context, timeout time.Duration) *float64 {
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			left = time.Millisecond
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return playwright.Float(0)
	}
	return playwright.Float(float64(timeout.Milliseconds()))
}

func (p *playwrightPage) check(ctx context.Context) error {
	if p.closed.Load() {
		return ErrSessionClosed
	}
	return ctx.Err()
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMs(ctx, 0),
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

var playwrightLoadStates = map[string]*playwright.LoadState{
	LoadStateLoad:             playwright.LoadStateLoad,
	LoadStateDOMContentLoaded: playwright.LoadStateDomcontentloaded,
	LoadStateNetworkIdle:      playwright.LoadStateNetworkidle,
}

func (p *playwrightPage) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	pwState, ok := playwrightLoadStates[state]
	if !ok {
		return fmt.Errorf("unknown load state %q", state)
	}
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   pwState,
		Timeout: timeoutMs(ctx, timeout),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s after %s", ErrReadinessTimeout, state, timeout)
		}
		return fmt.Errorf("wait for %s: %w", state, err)
	}
	return nil
}

var playwrightSelectorStates = map[string]*playwright.WaitForSelectorState{
	"":            playwright.WaitForSelectorStateVisible,
	StateVisible:  playwright.WaitForSelectorStateVisible,
	StateAttached: playwright.WaitForSelectorStateAttached,
	StateHidden:   playwright.WaitForSelectorStateHidden,
}

// first validates selector and returns a locator for its first match. Playwright
// understands the css=, text=, xpath= and :has-text() forms natively.
func (p *playwrightPage) first(selector string) (playwright.Locator, error) {
	if _, err := ParseSelector(selector); err != nil {
		return nil, err
	}
	return p.page.Locator(selector).First(), nil
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	pwState, ok := playwrightSelectorStates[state]
	if !ok {
		return fmt.Errorf("unknown selector state %q", state)
	}
	loc, err := p.first(selector)
	if err != nil {
		return err
	}
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: pwState, Timeout: timeoutMs(ctx, timeout)}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			if state == StateHidden {
				return fmt.Errorf("%s still visible after %s", selector, timeout)
			}
			return fmt.Errorf("%w: %s (waited %s)", ErrElementNotFound, selector, timeout)
		}
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// locate waits for the first match to be visible so that a missing element is
// reported separately from a failed action.
func (p *playwrightPage) locate(ctx context.Context, selector string, timeout time.Duration) (playwright.Locator, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	loc, err := p.first(selector)
	if err != nil {
		return nil, err
	}
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMs(ctx, timeout),
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
		}
		return nil, fmt.Errorf("locate %s: %w", selector, err)
	}
	return loc, nil
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	loc, err := p.locate(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := loc.Fill(value, playwright.LocatorFillOptions{Timeout: timeoutMs(ctx, timeout)}); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	loc, err := p.locate(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx, timeout)}); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *playwrightPage) Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  timeoutMs(ctx, timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the page, the browser and the driver. Only the first call does any work.
func (p *playwrightPage) Close(ctx context.Context) error {
	var closeErr error
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		done := make(chan error, 1)
		go func() {
			var errs []error
			if err := p.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
			if err := p.pw.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop playwright driver: %w", err))
			}
			done <- errors.Join(errs...)
		}()

		select {
		case closeErr = <-done:
		case <-ctx.Done():
			closeErr = fmt.Errorf("timed out closing browser: %w", ctx.Err())
		}
		p.logger.Debug("Browser session closed.")
	})
	return closeErr
}
