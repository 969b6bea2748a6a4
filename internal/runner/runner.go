// File: internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/verify-cli/internal/artifact"
	"github.com/xkilldash9x/verify-cli/internal/browser"
	"github.com/xkilldash9x/verify-cli/internal/config"
	"github.com/xkilldash9x/verify-cli/internal/retry"
	"github.com/xkilldash9x/verify-cli/internal/scenario"
)

const defaultCloseTimeout = 10 * time.Second

// ArtifactWriter persists screenshot data and returns the path written.
type ArtifactWriter interface {
	WritePNG(path string, data []byte) (string, error)
}

// Options tunes a Runner.
type Options struct {
	// Retry bounds the attempts of every navigate step.
	Retry retry.Policy
	// NavTimeout limits each navigation attempt.
	NavTimeout time.Duration
	// StepTimeout applies to steps without their own timeout, and to readiness waits.
	StepTimeout time.Duration
	// Readiness is waited for after every navigation without its own wait_until.
	Readiness string
	// CloseTimeout bounds session release. Defaults to 10s.
	CloseTimeout time.Duration
	// NewTimer supplies the timer for the wait between navigation attempts. Nil waits in
	// real time. It is called once per navigate step.
	NewTimer func() backoff.Timer
}

// OptionsFromConfig maps runner configuration onto Options.
func OptionsFromConfig(cfg config.RunnerConfig) Options {
	return Options{
		Retry:       retry.FromConfig(cfg),
		NavTimeout:  cfg.NavTimeout(),
		StepTimeout: cfg.StepTimeout(),
		Readiness:   cfg.Readiness,
	}
}

// Runner executes scenarios. Every Run launches, uses and releases its own session,
// so one Runner may serve concurrent runs.
type Runner struct {
	launcher  browser.Launcher
	artifacts ArtifactWriter
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Runner.
func New(launcher browser.Launcher, artifacts ArtifactWriter, opts Options, logger *zap.Logger) (*Runner, error) {
	if launcher == nil {
		return nil, errors.New("runner requires a browser launcher")
	}
	if artifacts == nil {
		return nil, errors.New("runner requires an artifact writer")
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if opts.NavTimeout <= 0 || opts.StepTimeout <= 0 {
		return nil, errors.New("navigation and step timeouts must be positive")
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	return &Runner{
		launcher:  launcher,
		artifacts: artifacts,
		opts:      opts,
		logger:    logger.Named("runner"),
		now:       time.Now,
	}, nil
}

// NewFromConfig wires a Runner from application configuration.
func NewFromConfig(cfg config.Interface, launcher browser.Launcher, logger *zap.Logger) (*Runner, error) {
	return New(launcher, artifact.NewWriter(cfg.Runner().ArtifactDir), OptionsFromConfig(cfg.Runner()), logger)
}

// run is the mutable state of one Run call.
type run struct {
	*Runner
	ctx    context.Context
	page   browser.Page
	target *url.URL
	res    *Result
	log    *zap.Logger
}

// Run executes sc against targetURL (or the scenario's own target when targetURL is
// empty). When sc does not start with a navigate step the target is loaded first.
// The returned Result is always non-nil once the input is valid; a failed run also
// returns its *RunError.
func (r *Runner) Run(ctx context.Context, sc scenario.Scenario, targetURL string) (*Result, error) {
	if targetURL == "" {
		targetURL = sc.TargetURL()
	}
	target, err := url.Parse(targetURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("target URL must be absolute, got %q", targetURL)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	plan := sc.Steps()
	if !sc.StartsWithNavigate() {
		plan = append([]scenario.Step{scenario.Navigate("")}, plan...)
	}

	res := &Result{
		RunID:      uuid.NewString(),
		Scenario:   sc.Name(),
		TargetURL:  target.String(),
		State:      StateNotStarted,
		TotalSteps: len(plan),
		Artifacts:  []string{},
		Started:    r.now(),
	}
	x := &run{
		Runner: r,
		ctx:    ctx,
		target: target,
		res:    res,
		log:    r.logger.With(zap.String("run_id", res.RunID), zap.String("scenario", res.Scenario)),
	}
	x.log.Info("Starting verification run.", zap.String("target", res.TargetURL), zap.Int("steps", len(plan)))

	page, err := r.launcher.Launch(ctx)
	if err != nil {
		kind := KindLaunchFailed
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		return x.fail(&RunError{Kind: kind, Step: -1, Err: err})
	}
	x.page = page
	defer x.release()

	for i, step := range plan {
		if err := x.execute(i, step); err != nil {
			return x.fail(err)
		}
		res.StepsCompleted++
	}

	x.transition(StateCompleted)
	res.Finished = r.now()
	x.log.Info("Verification run completed.",
		zap.Int("steps", res.StepsCompleted),
		zap.Strings("artifacts", res.Artifacts),
		zap.Duration("duration", res.Duration()))
	return res, nil
}

// release closes the session with a fresh deadline so cleanup still happens after
// the run's context was cancelled.
func (x *run) release() {
	ctx, cancel := context.WithTimeout(browser.Detach(x.ctx), x.opts.CloseTimeout)
	defer cancel()
	if err := x.page.Close(ctx); err != nil {
		x.log.Warn("Failed to release browser session.", zap.Error(err))
		return
	}
	x.log.Debug("Browser session released.")
}

func (x *run) fail(re *RunError) (*Result, error) {
	x.transition(StateFailed)
	x.res.Error = re
	x.res.Finished = x.now()
	x.log.Error("Verification run failed.",
		zap.String("kind", string(re.Kind)),
		zap.Int("step", re.Step),
		zap.Error(re.Err))
	return x.res, re
}

func (x *run) transition(to State) {
	if x.res.State == to {
		return
	}
	x.log.Debug("State transition.", zap.String("from", string(x.res.State)), zap.String("to", string(to)))
	x.res.State = to
}

// stepTimeout is the step's own timeout or the runner default.
func (x *run) stepTimeout(step scenario.Step) time.Duration {
	if t := step.Timeout(); t > 0 {
		return t
	}
	return x.opts.StepTimeout
}

func (x *run) execute(i int, step scenario.Step) *RunError {
	if step.Action() != scenario.ActionNavigate && x.res.State != StateExecuting {
		x.transition(StateExecuting)
	}
	x.log.Info("Executing step.", zap.Int("step", i), zap.String("action", string(step.Action())), zap.Stringer("detail", step))

	newErr := func(kind Kind, err error) *RunError {
		if x.ctx.Err() != nil {
			kind = KindCancelled
		}
		return &RunError{Kind: kind, Step: i, Action: step.Action(), Selector: step.Selector(), Path: step.Path(), Err: err}
	}
	// lookupErr separates "never appeared" from "appeared but the action failed".
	lookupErr := func(err error) *RunError {
		if errors.Is(err, browser.ErrElementNotFound) {
			return newErr(KindElementNotFound, err)
		}
		return newErr(KindActionFailed, err)
	}

	switch step.Action() {
	case scenario.ActionNavigate:
		return x.navigate(step, newErr)

	case scenario.ActionWaitForLoadState:
		if err := x.page.WaitForLoadState(x.ctx, step.LoadState(), x.stepTimeout(step)); err != nil {
			return newErr(KindReadinessTimeout, err)
		}

	case scenario.ActionWaitForSelector:
		if err := x.page.WaitForSelector(x.ctx, step.Selector(), string(step.SelectorState()), x.stepTimeout(step)); err != nil {
			return lookupErr(err)
		}

	case scenario.ActionFill:
		if err := x.page.Fill(x.ctx, step.Selector(), step.Value(), x.stepTimeout(step)); err != nil {
			return lookupErr(err)
		}

	case scenario.ActionClick:
		if err := x.page.Click(x.ctx, step.Selector(), x.stepTimeout(step)); err != nil {
			return lookupErr(err)
		}

	case scenario.ActionScreenshot:
		data, err := x.page.Screenshot(x.ctx, step.FullPage(), x.stepTimeout(step))
		if err != nil {
			return newErr(KindActionFailed, err)
		}
		path, err := x.artifacts.WritePNG(step.Path(), data)
		if err != nil {
			return newErr(KindArtifactWriteFailed, err)
		}
		x.res.Artifacts = append(x.res.Artifacts, path)
		x.log.Info("Screenshot saved.", zap.String("path", path), zap.Int("bytes", len(data)))

	default:
		return newErr(KindActionFailed, fmt.Errorf("unsupported action %q", step.Action()))
	}
	return nil
}

// navigate loads the step's URL under the retry policy and then waits for readiness.
func (x *run) navigate(step scenario.Step, newErr func(Kind, error) *RunError) *RunError {
	first := x.res.State == StateNotStarted
	if first {
		x.transition(StateNavigating)
	}

	dest, err := x.resolve(step.URL())
	if err != nil {
		return newErr(KindNavigationFailed, err)
	}

	var timer backoff.Timer
	if x.opts.NewTimer != nil {
		timer = x.opts.NewTimer()
	}
	attempts, err := retry.Do(x.ctx, x.opts.Retry, timer, func(ctx context.Context, attempt int) error {
		navCtx, cancel := context.WithTimeout(ctx, x.opts.NavTimeout)
		defer cancel()

		x.log.Debug("Navigating.", zap.String("url", dest), zap.Int("attempt", attempt))
		if err := x.page.Navigate(navCtx, dest); err != nil {
			x.log.Warn("Navigation attempt failed.",
				zap.String("url", dest),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", x.opts.Retry.MaxAttempts),
				zap.Error(err))
			return err
		}
		return nil
	})
	x.res.Attempts += attempts
	if err != nil {
		re := newErr(KindNavigationFailed, err)
		re.Attempts = attempts
		return re
	}
	x.log.Info("Navigation succeeded.", zap.String("url", dest), zap.Int("attempts", attempts))

	readiness := step.LoadState()
	if readiness == "" {
		readiness = x.opts.Readiness
	}
	if readiness != "" {
		if err := x.page.WaitForLoadState(x.ctx, readiness, x.stepTimeout(step)); err != nil {
			return newErr(KindReadinessTimeout, err)
		}
	}
	if first {
		x.transition(StateReady)
	}
	return nil
}

// resolve turns a navigate step URL into an absolute URL. Empty means the target.
func (x *run) resolve(raw string) (string, error) {
	if raw == "" {
		return x.target.String(), nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid navigate URL %q: %w", raw, err)
	}
	return x.target.ResolveReference(ref).String(), nil
}
