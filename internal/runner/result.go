// File: internal/runner/result.go
package runner

import (
	"time"
)

// State is the run's position in NotStarted -> Navigating -> Ready -> Executing ->
// Completed, or Failed from any of them.
type State string

const (
	StateNotStarted State = "NotStarted"
	StateNavigating State = "Navigating"
	StateReady      State = "Ready"
	StateExecuting  State = "Executing"
	StateCompleted  State = "Completed"
	StateFailed     State = "Failed"
)

// Result describes one finished run.
type Result struct {
	RunID          string    `json:"run_id"`
	Scenario       string    `json:"scenario"`
	TargetURL      string    `json:"target_url"`
	State          State     `json:"state"`
	Attempts       int       `json:"navigation_attempts"`
	TotalSteps     int       `json:"total_steps"`
	StepsCompleted int       `json:"steps_completed"`
	Artifacts      []string  `json:"artifacts"`
	Error          *RunError `json:"error,omitempty"`
	Started        time.Time `json:"started_at"`
	Finished       time.Time `json:"finished_at"`
}

// Succeeded reports whether every step completed.
func (r *Result) Succeeded() bool {
	return r.State == StateCompleted
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
