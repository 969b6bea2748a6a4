// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/verify-cli/internal/browser"
	"github.com/xkilldash9x/verify-cli/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Runner() config.RunnerConfig {
	args := m.Called()
	return args.Get(0).(config.RunnerConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Results() config.ResultsConfig {
	args := m.Called()
	return args.Get(0).(config.ResultsConfig)
}

// --- Setters ---

func (m *MockConfig) SetRunnerTargetURL(u string)         { m.Called(u) }
func (m *MockConfig) SetRunnerMaxAttempts(n int)          { m.Called(n) }
func (m *MockConfig) SetRunnerRetryDelay(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetRunnerNavTimeout(d time.Duration) { m.Called(d) }
func (m *MockConfig) SetRunnerReadiness(s string)         { m.Called(s) }
func (m *MockConfig) SetBrowserDriver(d string)           { m.Called(d) }
func (m *MockConfig) SetBrowserHeadless(b bool)           { m.Called(b) }
func (m *MockConfig) SetReportFormat(f string)            { m.Called(f) }
func (m *MockConfig) SetReportOutput(out string)          { m.Called(out) }

// -- Browser Mocks --

// MockLauncher mocks browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

var _ browser.Launcher = (*MockLauncher)(nil)

func (m *MockLauncher) Launch(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	page, _ := args.Get(0).(browser.Page)
	return page, args.Error(1)
}

// MockPage mocks browser.Page. It also counts Close calls so tests can assert
// that a session is released exactly once.
type MockPage struct {
	mock.Mock
	closes atomic.Int32
}

var _ browser.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) WaitForLoadState(ctx context.Context, state string, timeout time.Duration) error {
	return m.Called(ctx, state, timeout).Error(0)
}

func (m *MockPage) WaitForSelector(ctx context.Context, selector, state string, timeout time.Duration) error {
	return m.Called(ctx, selector, state, timeout).Error(0)
}

func (m *MockPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return m.Called(ctx, selector, value, timeout).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error) {
	args := m.Called(ctx, fullPage, timeout)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockPage) Close(ctx context.Context) error {
	m.closes.Add(1)
	return m.Called(ctx).Error(0)
}

// Closes returns how many times Close was called.
func (m *MockPage) Closes() int {
	return int(m.closes.Load())
}
