// File: internal/runner/runner_test.go
package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/verify-cli/internal/artifact"
	"github.com/xkilldash9x/verify-cli/internal/browser"
	"github.com/xkilldash9x/verify-cli/internal/config"
	"github.com/xkilldash9x/verify-cli/internal/mocks"
	"github.com/xkilldash9x/verify-cli/internal/retry"
	"github.com/xkilldash9x/verify-cli/internal/scenario"
)

const target = "http://localhost:9002/backoffice/orders"

var (
	errNavTimeout = errors.New("navigation timeout of 60000 ms exceeded")
	pngA          = append([]byte("\x89PNG\r\n\x1a\n"), []byte("first")...)
	pngB          = append([]byte("\x89PNG\r\n\x1a\n"), []byte("second")...)
)

// recordingTimer records requested delays and fires at once. With cancel set it
// cancels the run instead of firing.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
	cancel context.CancelFunc
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Start(d time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		return
	}
	r.c <- time.Time{}
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func (r *recordingTimer) timer() backoff.Timer { return r }

// fakeWriter records artifact writes in memory.
type fakeWriter struct {
	writes map[string][]byte
	err    error
}

func (f *fakeWriter) WritePNG(path string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.writes == nil {
		f.writes = map[string][]byte{}
	}
	f.writes[path] = data
	return "/artifacts/" + path, nil
}

type fixture struct {
	launcher *mocks.MockLauncher
	page     *mocks.MockPage
	timer    *recordingTimer
	writer   ArtifactWriter
	logs     *observer.ObservedLogs
	opts     Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	page := new(mocks.MockPage)
	page.Test(t)
	launcher := new(mocks.MockLauncher)
	launcher.Test(t)
	launcher.On("Launch", mock.Anything).Return(page, nil).Maybe()
	page.On("Close", mock.Anything).Return(nil).Maybe()

	rec := newRecordingTimer()
	return &fixture{
		launcher: launcher,
		page:     page,
		timer:    rec,
		writer:   &fakeWriter{},
		opts: Options{
			Retry:       retry.Fixed(3, 5*time.Second),
			NavTimeout:  60 * time.Second,
			StepTimeout: 30 * time.Second,
			NewTimer:    rec.timer,
		},
	}
}

func (f *fixture) runner(t *testing.T) *Runner {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs
	r, err := New(f.launcher, f.writer, f.opts, zap.New(core))
	require.NoError(t, err)
	return r
}

func calledMethods(page *mocks.MockPage) []string {
	var names []string
	for _, c := range page.Calls {
		names = append(names, c.Method)
	}
	return names
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)
	logger := zap.NewNop()

	_, err := New(nil, f.writer, f.opts, logger)
	assert.Error(t, err)

	_, err = New(f.launcher, nil, f.opts, logger)
	assert.Error(t, err)

	opts := f.opts
	opts.Retry.MaxAttempts = 0
	_, err = New(f.launcher, f.writer, opts, logger)
	assert.ErrorContains(t, err, "invalid retry policy")

	opts = f.opts
	opts.StepTimeout = 0
	_, err = New(f.launcher, f.writer, opts, logger)
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := new(mocks.MockConfig)
	rc := config.NewDefaultConfig().Runner()
	rc.ArtifactDir = t.TempDir()
	cfg.On("Runner").Return(rc)

	r, err := NewFromConfig(cfg, new(mocks.MockLauncher), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, r.opts.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, r.opts.Retry.InitialDelay)
	assert.Equal(t, 60*time.Second, r.opts.NavTimeout)
	assert.Equal(t, defaultCloseTimeout, r.opts.CloseTimeout)
}

func TestRun_NavigationExhausted(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		f := newFixture(t)
		f.opts.Retry = retry.Fixed(n, 5*time.Second)
		f.page.On("Navigate", mock.Anything, target).Return(errNavTimeout)

		sc := scenario.PartialSettle()
		res, err := f.runner(t).Run(context.Background(), sc, target)

		require.ErrorIs(t, err, ErrNavigationFailed)
		require.ErrorIs(t, err, errNavTimeout)
		re, ok := AsRunError(err)
		require.True(t, ok)
		assert.Equal(t, KindNavigationFailed, re.Kind)
		assert.Equal(t, 0, re.Step)
		assert.Equal(t, n, re.Attempts)

		assert.Equal(t, StateFailed, res.State)
		assert.Equal(t, n, res.Attempts)
		assert.Zero(t, res.StepsCompleted)
		assert.Len(t, f.timer.delays, n-1)
		for _, d := range f.timer.delays {
			assert.Equal(t, 5*time.Second, d)
		}

		f.page.AssertNumberOfCalls(t, "Navigate", n)
		f.page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything, mock.Anything)
		f.page.AssertNotCalled(t, "Screenshot", mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, 1, f.page.Closes())
		assert.Equal(t, n, f.logs.FilterMessage("Navigation attempt failed.").Len())
	}
}

func TestRun_NavigationSucceedsAtAttemptK(t *testing.T) {
	for k := 1; k <= 3; k++ {
		f := newFixture(t)
		if k > 1 {
			f.page.On("Navigate", mock.Anything, target).Return(errNavTimeout).Times(k - 1)
		}
		f.page.On("Navigate", mock.Anything, target).Return(nil).Once()

		sc := scenario.New("nav-only").Navigate("").MustBuild()
		res, err := f.runner(t).Run(context.Background(), sc, target)

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, res.State)
		assert.Equal(t, k, res.Attempts)
		assert.Len(t, f.timer.delays, k-1)
		f.page.AssertNumberOfCalls(t, "Navigate", k)
		assert.Equal(t, 1, f.page.Closes())
	}
}

// Two navigation timeouts followed by a successful load: two 5s waits, then the
// first interaction step runs.
func TestRun_PartialSettleAfterTwoTimeouts(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	f.writer = artifact.NewWriter(dir)

	f.page.On("Navigate", mock.Anything, target).Return(context.DeadlineExceeded).Twice()
	f.page.On("Navigate", mock.Anything, target).Return(nil).Once()
	f.page.On("Click", mock.Anything, "text=Settle Change", 30*time.Second).Return(nil).Once()
	f.page.On("WaitForSelector", mock.Anything, `div[role="dialog"]`, "visible", 30*time.Second).Return(nil).Once()
	f.page.On("Fill", mock.Anything, "#settle-amount", "5", 30*time.Second).Return(nil).Once()
	f.page.On("Click", mock.Anything, "text=Settle Cash", 30*time.Second).Return(nil).Once()
	f.page.On("Screenshot", mock.Anything, false, 30*time.Second).Return(pngA, nil).Once()

	res, err := f.runner(t).Run(context.Background(), scenario.PartialSettle(), target)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, f.timer.delays)
	assert.Equal(t, []string{
		"Navigate", "Navigate", "Navigate",
		"Click", "WaitForSelector", "Fill", "Click", "Screenshot",
		"Close",
	}, calledMethods(f.page))

	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 6, res.TotalSteps)
	assert.Equal(t, 6, res.StepsCompleted)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, scenario.PartialSettleName, res.Scenario)

	want := filepath.Join(dir, "verification.png")
	require.Equal(t, []string{want}, res.Artifacts)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, pngA, data)
	f.page.AssertExpectations(t)
}

func TestRun_MissingElementAbortsRemainingSteps(t *testing.T) {
	f := newFixture(t)
	writer := &fakeWriter{}
	f.writer = writer
	f.page.On("Navigate", mock.Anything, target).Return(nil)
	f.page.On("Screenshot", mock.Anything, false, 30*time.Second).Return(pngA, nil).Once()
	f.page.On("WaitForSelector", mock.Anything, "#a", "visible", 30*time.Second).
		Return(browser.ErrElementNotFound).Once()

	sc := scenario.New("abort").
		Navigate("").
		Screenshot("p1.png", false).
		WaitForSelector("#a").
		Click("#b").
		Screenshot("p2.png", false).
		MustBuild()

	res, err := f.runner(t).Run(context.Background(), sc, target)

	require.ErrorIs(t, err, ErrElementNotFound)
	require.ErrorIs(t, err, browser.ErrElementNotFound)
	re, _ := AsRunError(err)
	assert.Equal(t, 2, re.Step)
	assert.Equal(t, "#a", re.Selector)
	assert.Equal(t, scenario.ActionWaitForSelector, re.Action)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.StepsCompleted)
	assert.Equal(t, []string{"/artifacts/p1.png"}, res.Artifacts)
	assert.Contains(t, writer.writes, "p1.png")
	assert.NotContains(t, writer.writes, "p2.png")
	f.page.AssertNotCalled(t, "Click", mock.Anything, "#b", mock.Anything)
	f.page.AssertNumberOfCalls(t, "Screenshot", 1)
	assert.Equal(t, 1, f.page.Closes())
}

func TestRun_MissingClickTargetSkipsLaterSteps(t *testing.T) {
	f := newFixture(t)
	writer := &fakeWriter{}
	f.writer = writer
	f.page.On("Navigate", mock.Anything, target).Return(nil).Once()
	f.page.On("Click", mock.Anything, "#a", 30*time.Second).Return(browser.ErrElementNotFound).Once()

	sc := scenario.New("missing-a").
		Navigate("").
		Click("#a").
		Screenshot("p1.png", false).
		Click("#b").
		Screenshot("p2.png", false).
		MustBuild()

	res, err := f.runner(t).Run(context.Background(), sc, target)

	require.ErrorIs(t, err, ErrElementNotFound)
	re, ok := AsRunError(err)
	require.True(t, ok)
	assert.Equal(t, 1, re.Step)
	assert.Equal(t, scenario.ActionClick, re.Action)
	assert.Equal(t, "#a", re.Selector)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.StepsCompleted)
	assert.Empty(t, res.Artifacts)
	assert.Empty(t, writer.writes)
	f.page.AssertNotCalled(t, "Click", mock.Anything, "#b", mock.Anything)
	f.page.AssertNotCalled(t, "Screenshot", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Navigate", "Click", "Close"}, calledMethods(f.page))
	assert.Equal(t, 1, f.page.Closes())
	f.page.AssertExpectations(t)
}

func TestRun_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(p *mocks.MockPage)
		steps []scenario.Step
		kind  Kind
		step  int
	}{
		{
			name: "click element missing",
			setup: func(p *mocks.MockPage) {
				p.On("Click", mock.Anything, "#go", 30*time.Second).Return(browser.ErrElementNotFound)
			},
			steps: []scenario.Step{scenario.Click("#go")},
			kind:  KindElementNotFound,
			step:  1,
		},
		{
			name: "fill rejected",
			setup: func(p *mocks.MockPage) {
				p.On("Fill", mock.Anything, "#amount", "5", 30*time.Second).Return(errors.New("element is not editable"))
			},
			steps: []scenario.Step{scenario.Fill("#amount", "5")},
			kind:  KindActionFailed,
			step:  1,
		},
		{
			name: "load state timeout",
			setup: func(p *mocks.MockPage) {
				p.On("WaitForLoadState", mock.Anything, "networkidle", 30*time.Second).Return(browser.ErrReadinessTimeout)
			},
			steps: []scenario.Step{scenario.WaitForLoadState("networkidle")},
			kind:  KindReadinessTimeout,
			step:  1,
		},
		{
			name: "screenshot capture fails",
			setup: func(p *mocks.MockPage) {
				p.On("Screenshot", mock.Anything, true, 30*time.Second).Return(nil, errors.New("target closed"))
			},
			steps: []scenario.Step{scenario.Screenshot("full.png", true)},
			kind:  KindActionFailed,
			step:  1,
		},
		{
			name: "navigate readiness timeout",
			setup: func(p *mocks.MockPage) {
				p.On("WaitForLoadState", mock.Anything, "load", 30*time.Second).Return(browser.ErrReadinessTimeout)
			},
			steps: []scenario.Step{scenario.Navigate("").WithReadiness("load")},
			kind:  KindReadinessTimeout,
			step:  0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.page.On("Navigate", mock.Anything, target).Return(nil)
			tc.setup(f.page)

			sc := scenario.New(tc.name).Add(tc.steps...).MustBuild()
			res, err := f.runner(t).Run(context.Background(), sc, target)

			re, ok := AsRunError(err)
			require.True(t, ok, "expected *RunError, got %v", err)
			assert.Equal(t, tc.kind, re.Kind)
			assert.Equal(t, tc.step, re.Step)
			assert.Same(t, re, res.Error)
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, 1, f.page.Closes())
		})
	}
}

func TestRun_ArtifactWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.writer = &fakeWriter{err: errors.New("permission denied")}
	f.page.On("Navigate", mock.Anything, target).Return(nil)
	f.page.On("Screenshot", mock.Anything, false, 30*time.Second).Return(pngA, nil)

	sc := scenario.New("write").Screenshot("/readonly/shot.png", false).MustBuild()
	res, err := f.runner(t).Run(context.Background(), sc, target)

	require.ErrorIs(t, err, ErrArtifactWriteFailed)
	re, _ := AsRunError(err)
	assert.Equal(t, "/readonly/shot.png", re.Path)
	assert.Contains(t, re.Error(), "/readonly/shot.png")
	assert.Empty(t, res.Artifacts)
	assert.Equal(t, 1, f.page.Closes())
}

func TestRun_LaunchFailureReleasesNothing(t *testing.T) {
	f := newFixture(t)
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything).Return(nil, errors.New("chrome not found"))
	f.launcher = launcher

	res, err := f.runner(t).Run(context.Background(), scenario.PartialSettle(), target)

	require.ErrorIs(t, err, ErrLaunchFailed)
	re, _ := AsRunError(err)
	assert.Equal(t, -1, re.Step)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, f.page.Closes())
	assert.Empty(t, f.page.Calls)
}

func TestRun_ReleasesSessionOnceAndLogsCloseFailure(t *testing.T) {
	f := newFixture(t)
	page := new(mocks.MockPage)
	page.On("Navigate", mock.Anything, target).Return(nil)
	page.On("Close", mock.Anything).Return(errors.New("browser already gone"))
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything).Return(page, nil)
	f.launcher = launcher

	res, err := f.runner(t).Run(context.Background(), scenario.New("close").Navigate("").MustBuild(), target)

	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, page.Closes())
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to release browser session.").Len())
}

func TestRun_CancellationStillReleases(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := new(mocks.MockPage)
	page.On("Navigate", mock.Anything, target).Return(nil)
	page.On("Click", mock.Anything, "#slow", 30*time.Second).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)
	page.On("Close", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	})).Return(nil).Once()
	launcher := new(mocks.MockLauncher)
	launcher.On("Launch", mock.Anything).Return(page, nil)
	f.launcher = launcher

	sc := scenario.New("cancel").Click("#slow").Click("#never").MustBuild()
	res, err := f.runner(t).Run(ctx, sc, target)

	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, page.Closes())
	page.AssertNotCalled(t, "Click", mock.Anything, "#never", mock.Anything)
	page.AssertExpectations(t)
}

func TestRun_CancelledBetweenAttempts(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.timer.cancel = cancel
	f.page.On("Navigate", mock.Anything, target).Return(errNavTimeout).Once()

	res, err := f.runner(t).Run(ctx, scenario.PartialSettle(), target)

	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, res.Attempts)
	f.page.AssertNumberOfCalls(t, "Navigate", 1)
	assert.Equal(t, 1, f.page.Closes())
}

func TestRun_PrependsNavigationAndResolvesURLs(t *testing.T) {
	f := newFixture(t)
	f.opts.Readiness = "domcontentloaded"
	f.page.On("Navigate", mock.Anything, target).Return(nil).Once()
	f.page.On("Navigate", mock.Anything, "http://localhost:9002/backoffice/settlements?page=2").Return(nil).Once()
	f.page.On("WaitForLoadState", mock.Anything, "domcontentloaded", 30*time.Second).Return(nil).Once()
	f.page.On("WaitForLoadState", mock.Anything, "networkidle", 30*time.Second).Return(nil).Once()
	f.page.On("Click", mock.Anything, "#next", 2*time.Second).Return(nil).Once()

	sc := scenario.New("implicit").
		Add(scenario.Click("#next").WithTimeout(2 * time.Second)).
		Add(scenario.Navigate("settlements?page=2").WithReadiness("networkidle")).
		MustBuild()
	res, err := f.runner(t).Run(context.Background(), sc, target)

	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalSteps)
	assert.Equal(t, 3, res.StepsCompleted)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []string{
		"Navigate", "WaitForLoadState", "Click", "Navigate", "WaitForLoadState", "Close",
	}, calledMethods(f.page))
	f.page.AssertExpectations(t)
}

func TestRun_StateTransitions(t *testing.T) {
	f := newFixture(t)
	f.page.On("Navigate", mock.Anything, target).Return(nil)
	f.page.On("Click", mock.Anything, "#go", 30*time.Second).Return(nil)

	sc := scenario.New("states").Click("#go").MustBuild()
	_, err := f.runner(t).Run(context.Background(), sc, target)
	require.NoError(t, err)

	var path []string
	for _, entry := range f.logs.FilterMessage("State transition.").All() {
		path = append(path, entry.ContextMap()["to"].(string))
	}
	assert.Equal(t, []string{"Navigating", "Ready", "Executing", "Completed"}, path)
}

func TestRun_ScenarioTargetFallback(t *testing.T) {
	f := newFixture(t)
	f.page.On("Navigate", mock.Anything, "http://127.0.0.1:8080/").Return(nil)

	sc := scenario.New("own-target").Target("http://127.0.0.1:8080/").Navigate("").MustBuild()
	res, err := f.runner(t).Run(context.Background(), sc, "")

	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/", res.TargetURL)
}

func TestRun_InvalidInput(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t)

	res, err := r.Run(context.Background(), scenario.PartialSettle(), "localhost:9002/orders")
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "must be absolute")

	res, err = r.Run(context.Background(), scenario.Scenario{}, target)
	assert.Nil(t, res)
	assert.Error(t, err)

	f.launcher.AssertNotCalled(t, "Launch", mock.Anything)
}

// Running the same scenario twice leaves one file per path holding the latest image.
func TestRun_ArtifactOverwriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	sc := scenario.New("overwrite").Screenshot("out/verification.png", true).MustBuild()

	var paths []string
	for _, data := range [][]byte{pngA, pngB} {
		f := newFixture(t)
		f.writer = artifact.NewWriter(dir)
		f.page.On("Navigate", mock.Anything, target).Return(nil)
		f.page.On("Screenshot", mock.Anything, true, 30*time.Second).Return(data, nil)

		res, err := f.runner(t).Run(context.Background(), sc, target)
		require.NoError(t, err)
		paths = append(paths, res.Artifacts...)
	}

	require.Len(t, paths, 2)
	assert.Equal(t, paths[0], paths[1])
	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, pngB, data)
}

func TestRunError_Formatting(t *testing.T) {
	re := &RunError{
		Kind:     KindElementNotFound,
		Step:     2,
		Action:   scenario.ActionClick,
		Selector: "text=Settle Cash",
		Err:      browser.ErrElementNotFound,
	}
	assert.Equal(t, `ElementNotFound at step 2 (click text=Settle Cash): element not found`, re.Error())
	assert.Equal(t, "element not found", re.Reason())
	assert.NotErrorIs(t, re, ErrActionFailed)

	nav := &RunError{Kind: KindNavigationFailed, Step: 0, Action: scenario.ActionNavigate, Attempts: 3, Err: errNavTimeout}
	assert.Contains(t, nav.Error(), "after 3 attempt(s)")

	launch := &RunError{Kind: KindLaunchFailed, Step: -1}
	assert.Equal(t, "LaunchFailed", launch.Error())
	assert.Equal(t, "LaunchFailed", launch.Reason())
}
