// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Runner() RunnerConfig
	Report() ReportConfig
	Results() ResultsConfig

	// Runner Setters
	SetRunnerTargetURL(string)
	SetRunnerMaxAttempts(int)
	SetRunnerRetryDelay(d time.Duration)
	SetRunnerNavTimeout(d time.Duration)
	SetRunnerReadiness(string)

	// Browser Setters
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)

	// Report Setters
	SetReportFormat(string)
	SetReportOutput(string)
}

// Config holds the entire application configuration.
// Sections are exported for viper, but callers should go through the Interface getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	RunnerCfg  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	ReportCfg  ReportConfig  `mapstructure:"report" yaml:"report"`
	ResultsCfg ResultsConfig `mapstructure:"results" yaml:"results"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Runner() RunnerConfig   { return c.RunnerCfg }
func (c *Config) Report() ReportConfig   { return c.ReportCfg }
func (c *Config) Results() ResultsConfig { return c.ResultsCfg }

// --- Interface Method Implementations (Setters) ---

// Runner Setters
func (c *Config) SetRunnerTargetURL(u string) { c.RunnerCfg.TargetURL = u }
func (c *Config) SetRunnerMaxAttempts(n int)  { c.RunnerCfg.MaxAttempts = n }
func (c *Config) SetRunnerRetryDelay(d time.Duration) {
	c.RunnerCfg.RetryDelayMs = int(d / time.Millisecond)
}
func (c *Config) SetRunnerNavTimeout(d time.Duration) {
	c.RunnerCfg.NavTimeoutMs = int(d / time.Millisecond)
}
func (c *Config) SetRunnerReadiness(s string) { c.RunnerCfg.Readiness = s }

// Browser Setters
func (c *Config) SetBrowserDriver(d string)  { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserCfg.Headless = b }
func (c *Config) SetReportFormat(f string)   { c.ReportCfg.Format = f }
func (c *Config) SetReportOutput(out string) { c.ReportCfg.Output = out }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser drivers.
const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Driver        string         `mapstructure:"driver" yaml:"driver"`
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	DisableGPU    bool           `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath      string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Install       bool           `mapstructure:"install" yaml:"install"` // playwright only: download driver + chromium first
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// ViewportConfig is the browser window size used for screenshots.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// Supported readiness conditions.
const (
	ReadinessNone             = ""
	ReadinessLoad             = "load"
	ReadinessDOMContentLoaded = "domcontentloaded"
	ReadinessNetworkIdle      = "networkidle"
)

// RunnerConfig configures the verification runner. Millisecond fields keep the option
// names recognized by the original scripts.
type RunnerConfig struct {
	TargetURL     string        `mapstructure:"target_url" yaml:"target_url"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelayMs  int           `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms"`
	NavTimeoutMs  int           `mapstructure:"nav_timeout_ms" yaml:"nav_timeout_ms"`
	StepTimeoutMs int           `mapstructure:"step_timeout_ms" yaml:"step_timeout_ms"`
	Readiness     string        `mapstructure:"readiness" yaml:"readiness"`
	ArtifactDir   string        `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	Backoff       BackoffConfig `mapstructure:"backoff" yaml:"backoff"`
}

// RetryDelay returns the configured delay between navigation attempts.
func (r RunnerConfig) RetryDelay() time.Duration {
	return time.Duration(r.RetryDelayMs) * time.Millisecond
}

// NavTimeout returns the per-attempt navigation timeout.
func (r RunnerConfig) NavTimeout() time.Duration {
	return time.Duration(r.NavTimeoutMs) * time.Millisecond
}

// StepTimeout returns the default timeout for non-navigation steps.
func (r RunnerConfig) StepTimeout() time.Duration {
	return time.Duration(r.StepTimeoutMs) * time.Millisecond
}

// BackoffConfig selects how the delay grows between navigation attempts.
type BackoffConfig struct {
	Strategy   string  `mapstructure:"strategy" yaml:"strategy"`
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`
	MaxDelayMs int     `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`
	Jitter     bool    `mapstructure:"jitter" yaml:"jitter"`
}

// ReportConfig controls the run report written after each scenario.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// ResultsConfig configures the optional run history database.
type ResultsConfig struct {
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

// Enabled reports whether run history should be recorded.
func (r ResultsConfig) Enabled() bool { return r.DatabaseURL != "" }

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "verify-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Runner --
	v.SetDefault("runner.target_url", "http://localhost:9002/backoffice/orders")
	v.SetDefault("runner.max_attempts", 3)
	v.SetDefault("runner.retry_delay_ms", 5000)
	v.SetDefault("runner.nav_timeout_ms", 60000)
	v.SetDefault("runner.step_timeout_ms", 30000)
	v.SetDefault("runner.readiness", ReadinessNone)
	v.SetDefault("runner.artifact_dir", ".")
	v.SetDefault("runner.backoff.strategy", "fixed")
	v.SetDefault("runner.backoff.multiplier", 2.0)
	v.SetDefault("runner.backoff.max_delay_ms", 30000)
	v.SetDefault("runner.backoff.jitter", false)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")

	// -- Results --
	v.SetDefault("results.database_url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The database URL usually carries credentials, so it is bound explicitly.
	v.BindEnv("results.database_url", "VERIFY_RESULTS_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.RunnerCfg.Validate(); err != nil {
		return fmt.Errorf("runner configuration invalid: %w", err)
	}
	switch c.ReportCfg.Format {
	case "text", "json":
	default:
		return fmt.Errorf("report.format must be 'text' or 'json', got %q", c.ReportCfg.Format)
	}
	return nil
}

// Validate checks the BrowserConfig settings.
func (b *BrowserConfig) Validate() error {
	switch b.Driver {
	case DriverChromedp, DriverPlaywright:
	default:
		return fmt.Errorf("driver must be '%s' or '%s', got %q", DriverChromedp, DriverPlaywright, b.Driver)
	}
	if b.Viewport.Width < 0 || b.Viewport.Height < 0 {
		return fmt.Errorf("viewport dimensions must not be negative")
	}
	return nil
}

// Validate checks the RunnerConfig settings.
func (r *RunnerConfig) Validate() error {
	if r.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	u, err := url.Parse(r.TargetURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target_url must be an absolute URL, got %q", r.TargetURL)
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if r.RetryDelayMs < 0 {
		return fmt.Errorf("retry_delay_ms must not be negative")
	}
	if r.NavTimeoutMs <= 0 {
		return fmt.Errorf("nav_timeout_ms must be a positive integer")
	}
	if r.StepTimeoutMs <= 0 {
		return fmt.Errorf("step_timeout_ms must be a positive integer")
	}
	switch r.Readiness {
	case ReadinessNone, ReadinessLoad, ReadinessDOMContentLoaded, ReadinessNetworkIdle:
	default:
		return fmt.Errorf("readiness must be one of load, domcontentloaded, networkidle, got %q", r.Readiness)
	}
	switch strings.ToLower(r.Backoff.Strategy) {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("backoff.strategy must be 'fixed' or 'exponential', got %q", r.Backoff.Strategy)
	}
	if strings.EqualFold(r.Backoff.Strategy, "exponential") && r.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("backoff.multiplier must be at least 1.0")
	}
	return nil
}
