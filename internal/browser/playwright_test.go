// File: internal/browser/playwright_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/verify-cli/internal/config"
)

func TestLaunchOptions(t *testing.T) {
	opts, err := launchOptions(config.BrowserConfig{
		Headless:      true,
		DisableGPU:    true,
		Args:          []string{"no-zygote", "--lang=en-US"},
		LaunchTimeout: 30 * time.Second,
	})
	require.NoError(t, err)

	require.NotNil(t, opts.Headless)
	assert.True(t, *opts.Headless)
	require.NotNil(t, opts.Timeout)
	assert.Equal(t, 30000.0, *opts.Timeout)
	assert.Equal(t, []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu", "--no-zygote", "--lang=en-US"}, opts.Args)
	assert.Nil(t, opts.ExecutablePath)
}

func TestLaunchOptions_DefaultTimeoutAndExecPath(t *testing.T) {
	opts, err := launchOptions(config.BrowserConfig{ExecPath: "/opt/chrome/chrome"})
	require.NoError(t, err)
	assert.Equal(t, float64(defaultLaunchTimeout.Milliseconds()), *opts.Timeout)
	require.NotNil(t, opts.ExecutablePath)
	assert.Equal(t, "/opt/chrome/chrome", *opts.ExecutablePath)
}

func TestTimeoutMs(t *testing.T) {
	assert.Equal(t, 0.0, *timeoutMs(context.Background(), 0))
	assert.Equal(t, 1500.0, *timeoutMs(context.Background(), 1500*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	got := *timeoutMs(ctx, time.Minute)
	assert.LessOrEqual(t, got, 200.0, "the context deadline wins when it is sooner")
	assert.Greater(t, got, 0.0)
}

func TestPlaywrightLauncher_InstallSkippedWhenDisabled(t *testing.T) {
	l := NewPlaywrightLauncher(config.BrowserConfig{Install: false}, zaptest.NewLogger(t))
	assert.NoError(t, l.ensureInstallation(context.Background()))
}

func TestPlaywrightPage_ClosedSession(t *testing.T) {
	p := &playwrightPage{logger: zaptest.NewLogger(t)}
	p.closed.Store(true)

	assert.ErrorIs(t, p.Navigate(context.Background(), "http://localhost"), ErrSessionClosed)
	assert.ErrorIs(t, p.Click(context.Background(), "#a", time.Second), ErrSessionClosed)
	_, err := p.Screenshot(context.Background(), false, time.Second)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
