// File: internal/scenario/step.go
package scenario

import (
	"fmt"
	"strings"
	"time"
)

// Action identifies the kind of interaction a Step performs.
type Action string

const (
	ActionNavigate         Action = "navigate"
	ActionWaitForSelector  Action = "wait_for_selector"
	ActionWaitForLoadState Action = "wait_for_load_state"
	ActionFill             Action = "fill"
	ActionClick            Action = "click"
	ActionScreenshot       Action = "screenshot"
)

// SelectorState is the element condition a wait_for_selector step waits for.
type SelectorState string

const (
	StateVisible  SelectorState = "visible"
	StateAttached SelectorState = "attached"
	StateHidden   SelectorState = "hidden"
)

// Load states understood by wait_for_load_state and navigate readiness.
const (
	LoadStateLoad             = "load"
	LoadStateDOMContentLoaded = "domcontentloaded"
	LoadStateNetworkIdle      = "networkidle"
)

// Step is one immutable interaction against the page. Construct it with the
// package-level constructors; the zero value is not a valid step.
type Step struct {
	action        Action
	selector      string
	value         string
	url           string
	loadState     string
	selectorState SelectorState
	path          string
	fullPage      bool
	timeout       time.Duration
}

// Navigate loads url. An empty url means the run's target URL; relative URLs are
// resolved against it.
func Navigate(url string) Step {
	return Step{action: ActionNavigate, url: url}
}

// WaitForSelector waits until selector reaches state. An empty state means visible.
func WaitForSelector(selector string, state SelectorState) Step {
	if state == "" {
		state = StateVisible
	}
	return Step{action: ActionWaitForSelector, selector: selector, selectorState: state}
}

// WaitForLoadState waits for one of the load, domcontentloaded or networkidle states.
func WaitForLoadState(state string) Step {
	return Step{action: ActionWaitForLoadState, loadState: state}
}

// Fill replaces the value of the first element matching selector.
func Fill(selector, value string) Step {
	return Step{action: ActionFill, selector: selector, value: value}
}

// Click clicks the first element matching selector.
func Click(selector string) Step {
	return Step{action: ActionClick, selector: selector}
}

// Screenshot captures the page as a PNG written to path.
func Screenshot(path string, fullPage bool) Step {
	return Step{action: ActionScreenshot, path: path, fullPage: fullPage}
}

// WithTimeout returns a copy of the step with an explicit timeout. Zero keeps the
// runner default.
func (s Step) WithTimeout(d time.Duration) Step {
	s.timeout = d
	return s
}

// WithReadiness returns a copy of a navigate step that waits for state after loading.
func (s Step) WithReadiness(state string) Step {
	s.loadState = state
	return s
}

func (s Step) Action() Action               { return s.action }
func (s Step) Selector() string             { return s.selector }
func (s Step) Value() string                { return s.value }
func (s Step) URL() string                  { return s.url }
func (s Step) LoadState() string            { return s.loadState }
func (s Step) SelectorState() SelectorState { return s.selectorState }
func (s Step) Path() string                 { return s.path }
func (s Step) FullPage() bool               { return s.fullPage }
func (s Step) Timeout() time.Duration       { return s.timeout }
func (s Step) LocatesElement() bool         { return s.selector != "" }

// Validate checks that the step carries the fields its action needs.
func (s Step) Validate() error {
	if s.timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", s.action)
	}
	switch s.action {
	case ActionNavigate:
		if s.loadState != "" && !validLoadState(s.loadState) {
			return fmt.Errorf("navigate: unknown readiness %q", s.loadState)
		}
	case ActionWaitForSelector:
		if strings.TrimSpace(s.selector) == "" {
			return fmt.Errorf("wait_for_selector: selector is required")
		}
		switch s.selectorState {
		case StateVisible, StateAttached, StateHidden:
		default:
			return fmt.Errorf("wait_for_selector: unknown state %q", s.selectorState)
		}
	case ActionWaitForLoadState:
		if !validLoadState(s.loadState) {
			return fmt.Errorf("wait_for_load_state: unknown state %q", s.loadState)
		}
	case ActionFill:
		if strings.TrimSpace(s.selector) == "" {
			return fmt.Errorf("fill: selector is required")
		}
	case ActionClick:
		if strings.TrimSpace(s.selector) == "" {
			return fmt.Errorf("click: selector is required")
		}
	case ActionScreenshot:
		if strings.TrimSpace(s.path) == "" {
			return fmt.Errorf("screenshot: path is required")
		}
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", s.action)
	}
	return nil
}

// String renders the step for logs and reports.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(string(s.action))
	switch s.action {
	case ActionNavigate:
		if s.url == "" {
			b.WriteString(" <target>")
		} else {
			b.WriteString(" " + s.url)
		}
		if s.loadState != "" {
			b.WriteString(" until " + s.loadState)
		}
	case ActionWaitForSelector:
		fmt.Fprintf(&b, " %s (%s)", s.selector, s.selectorState)
	case ActionWaitForLoadState:
		b.WriteString(" " + s.loadState)
	case ActionFill:
		fmt.Fprintf(&b, " %s = %q", s.selector, s.value)
	case ActionClick:
		b.WriteString(" " + s.selector)
	case ActionScreenshot:
		b.WriteString(" " + s.path)
		if s.fullPage {
			b.WriteString(" (full page)")
		}
	}
	if s.timeout > 0 {
		fmt.Fprintf(&b, " [timeout %s]", s.timeout)
	}
	return b.String()
}

func validLoadState(state string) bool {
	switch state {
	case LoadStateLoad, LoadStateDOMContentLoaded, LoadStateNetworkIdle:
		return true
	}
	return false
}
