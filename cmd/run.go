// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/verify-cli/internal/browser"
	"github.com/xkilldash9x/verify-cli/internal/config"
	"github.com/xkilldash9x/verify-cli/internal/observability"
	"github.com/xkilldash9x/verify-cli/internal/reporting"
	"github.com/xkilldash9x/verify-cli/internal/runner"
	"github.com/xkilldash9x/verify-cli/internal/scenario"
	"github.com/xkilldash9x/verify-cli/internal/store"
)

const recordTimeout = 10 * time.Second

// runRecorder persists finished runs.
type runRecorder interface {
	RecordRun(ctx context.Context, res *runner.Result) error
	Close()
}

// Seams replaced in tests.
var (
	newLauncher = browser.NewLauncher

	openRecorder = func(ctx context.Context, databaseURL string, logger *zap.Logger) (runRecorder, error) {
		return store.Open(ctx, databaseURL, logger)
	}
)

// errRunsFailed reports that at least one scenario did not complete.
var errRunsFailed = errors.New("verification failed")

func newRunCmd() *cobra.Command {
	var (
		builtin  string
		parallel int
	)

	runCmd := &cobra.Command{
		Use:   "run [scenario.yaml...]",
		Short: "Run the built-in scenario or the given scenario files against the target",
		Long: `Launches a browser session per scenario, navigates to the target with bounded
retries, executes every step in order and writes screenshots to their paths.

With no files the built-in partial-settle scenario runs against runner.target_url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			if err := applyRunOverrides(cmd, cfg); err != nil {
				return err
			}

			scenarios, err := loadScenarios(args, builtin)
			if err != nil {
				return err
			}

			launcher, err := newLauncher(cfg.Browser(), logger)
			if err != nil {
				return err
			}
			r, err := runner.NewFromConfig(cfg, launcher, logger)
			if err != nil {
				return err
			}

			reporter, err := reporting.New(cfg.Report().Format, cfg.Report().Output)
			if err != nil {
				return err
			}
			defer func() {
				if err := reporter.Close(); err != nil {
					logger.Error("Failed to finalize report.", zap.Error(err))
				}
			}()

			recorder := connectRecorder(ctx, cfg, logger)
			if recorder != nil {
				defer recorder.Close()
			}

			explicitTarget := cmd.Flags().Changed("target")
			results := runScenarios(ctx, r, scenarios, func(sc scenario.Scenario) string {
				return targetFor(sc, cfg, explicitTarget)
			}, parallel, logger)

			failed := 0
			for _, res := range results {
				if res == nil {
					failed++
					continue
				}
				if err := reporter.Write(res); err != nil {
					logger.Error("Failed to write report.", zap.Error(err))
				}
				if recorder != nil {
					record(ctx, recorder, res, logger)
				}
				if !res.Succeeded() {
					failed++
				}
			}

			if err := ctx.Err(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d scenario run(s) failed", errRunsFailed, failed, len(scenarios))
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.String("target", "", "target URL (overrides runner.target_url and scenario target_url)")
	flags.Int("attempts", 0, "maximum navigation attempts")
	flags.Int("retry-delay-ms", 0, "delay between navigation attempts in milliseconds")
	flags.Int("nav-timeout-ms", 0, "per-attempt navigation timeout in milliseconds")
	flags.String("readiness", "", "wait after navigation: load, domcontentloaded or networkidle")
	flags.String("driver", "", "browser driver: chromedp or playwright")
	flags.Bool("headless", true, "run the browser headless")
	flags.StringP("format", "f", "", "report format: text or json")
	flags.StringP("output", "o", "", "report output path (default stdout)")
	flags.StringVar(&builtin, "scenario", scenario.PartialSettleName, "built-in scenario to run when no files are given")
	flags.IntVarP(&parallel, "parallel", "p", 1, "number of scenarios to run concurrently")
	return runCmd
}

// applyRunOverrides copies explicitly set flags into the configuration.
func applyRunOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("target") {
		v, _ := flags.GetString("target")
		cfg.SetRunnerTargetURL(v)
	}
	if flags.Changed("attempts") {
		v, _ := flags.GetInt("attempts")
		if v < 1 {
			return fmt.Errorf("--attempts must be at least 1")
		}
		cfg.SetRunnerMaxAttempts(v)
	}
	if flags.Changed("retry-delay-ms") {
		v, _ := flags.GetInt("retry-delay-ms")
		if v < 0 {
			return fmt.Errorf("--retry-delay-ms must not be negative")
		}
		cfg.SetRunnerRetryDelay(time.Duration(v) * time.Millisecond)
	}
	if flags.Changed("nav-timeout-ms") {
		v, _ := flags.GetInt("nav-timeout-ms")
		if v <= 0 {
			return fmt.Errorf("--nav-timeout-ms must be positive")
		}
		cfg.SetRunnerNavTimeout(time.Duration(v) * time.Millisecond)
	}
	if flags.Changed("readiness") {
		v, _ := flags.GetString("readiness")
		cfg.SetRunnerReadiness(v)
	}
	if flags.Changed("driver") {
		v, _ := flags.GetString("driver")
		cfg.SetBrowserDriver(v)
	}
	if flags.Changed("headless") {
		v, _ := flags.GetBool("headless")
		cfg.SetBrowserHeadless(v)
	}
	if flags.Changed("format") {
		v, _ := flags.GetString("format")
		cfg.SetReportFormat(v)
	}
	if flags.Changed("output") {
		v, _ := flags.GetString("output")
		cfg.SetReportOutput(v)
	}
	if p, _ := flags.GetInt("parallel"); p < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}
	if v, ok := cfg.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
	}
	return nil
}

// loadScenarios reads scenario files, or returns the named built-in when there are none.
func loadScenarios(paths []string, builtin string) ([]scenario.Scenario, error) {
	if len(paths) == 0 {
		sc, ok := scenario.Builtin(builtin)
		if !ok {
			return nil, fmt.Errorf("unknown built-in scenario %q", builtin)
		}
		return []scenario.Scenario{sc}, nil
	}

	scenarios := make([]scenario.Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// targetFor picks the run target: an explicit --target wins, then the scenario's
// own target_url, then runner.target_url.
func targetFor(sc scenario.Scenario, cfg config.Interface, explicit bool) string {
	if !explicit && sc.TargetURL() != "" {
		return sc.TargetURL()
	}
	return cfg.Runner().TargetURL
}

// runScenarios runs each scenario in its own session, at most parallel at a time.
// The returned slice is in input order; an entry is nil when the input was rejected
// before a run started.
func runScenarios(ctx context.Context, r *runner.Runner, scenarios []scenario.Scenario, target func(scenario.Scenario) string, parallel int, logger *zap.Logger) []*runner.Result {
	results := make([]*runner.Result, len(scenarios))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, sc := range scenarios {
		g.Go(func() error {
			res, err := r.Run(ctx, sc, target(sc))
			if res == nil && err != nil {
				logger.Error("Scenario rejected.", zap.String("scenario", sc.Name()), zap.Error(err))
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// connectRecorder opens the run history store when configured. Failures are logged
// and recording is skipped.
func connectRecorder(ctx context.Context, cfg config.Interface, logger *zap.Logger) runRecorder {
	if !cfg.Results().Enabled() {
		return nil
	}
	recorder, err := openRecorder(ctx, cfg.Results().DatabaseURL, logger)
	if err != nil {
		logger.Warn("Run history disabled: could not connect to database.", zap.Error(err))
		return nil
	}
	return recorder
}

func record(ctx context.Context, recorder runRecorder, res *runner.Result, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := recorder.RecordRun(ctx, res); err != nil {
		logger.Warn("Failed to record run.", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
