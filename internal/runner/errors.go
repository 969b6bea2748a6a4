// File: internal/runner/errors.go
package runner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/verify-cli/internal/scenario"
)

// Kind classifies why a run failed.
type Kind string

const (
	KindLaunchFailed        Kind = "LaunchFailed"
	KindNavigationFailed    Kind = "NavigationFailed"
	KindReadinessTimeout    Kind = "ReadinessTimeout"
	KindElementNotFound     Kind = "ElementNotFound"
	KindActionFailed        Kind = "ActionFailed"
	KindArtifactWriteFailed Kind = "ArtifactWriteFailed"
	KindCancelled           Kind = "Cancelled"
)

// Sentinels matched by errors.Is against a *RunError of the same kind.
var (
	ErrLaunchFailed        = errors.New("browser launch failed")
	ErrNavigationFailed    = errors.New("navigation failed")
	ErrReadinessTimeout    = errors.New("readiness timeout")
	ErrElementNotFound     = errors.New("element not found")
	ErrActionFailed        = errors.New("action failed")
	ErrArtifactWriteFailed = errors.New("artifact write failed")
	ErrCancelled           = errors.New("run cancelled")
)

var kindSentinels = map[Kind]error{
	KindLaunchFailed:        ErrLaunchFailed,
	KindNavigationFailed:    ErrNavigationFailed,
	KindReadinessTimeout:    ErrReadinessTimeout,
	KindElementNotFound:     ErrElementNotFound,
	KindActionFailed:        ErrActionFailed,
	KindArtifactWriteFailed: ErrArtifactWriteFailed,
	KindCancelled:           ErrCancelled,
}

// RunError is the tagged failure of a run. Step is the index of the failing step in
// the executed plan, or -1 when no step was running.
type RunError struct {
	Kind     Kind            `json:"kind"`
	Step     int             `json:"step"`
	Action   scenario.Action `json:"action,omitempty"`
	Selector string          `json:"selector,omitempty"`
	Path     string          `json:"path,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
	Err      error           `json:"-"`
}

func (e *RunError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Step >= 0 {
		fmt.Fprintf(&b, " at step %d (%s", e.Step, e.Action)
		if e.Selector != "" {
			b.WriteString(" " + e.Selector)
		}
		if e.Path != "" {
			b.WriteString(" " + e.Path)
		}
		b.WriteString(")")
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *RunError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *RunError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Reason is the underlying cause without the step prefix, for reports.
func (e *RunError) Reason() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// AsRunError extracts a *RunError from err.
func AsRunError(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
