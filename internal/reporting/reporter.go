// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xkilldash9x/verify-cli/internal/runner"
)

// Reporter writes run results to an output.
type Reporter interface {
	// Write records a single finished run.
	Write(result *runner.Result) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("text" or "json") writing to outputPath, or to
// stdout when outputPath is empty or "stdout".
func New(format, outputPath string) (Reporter, error) {
	return newReporter(format, outputPath, os.Stdout)
}

func newReporter(format, outputPath string, stdout io.Writer) (Reporter, error) {
	switch format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "json" {
		return NewJSONReporter(writer), nil
	}
	return NewTextReporter(writer), nil
}

// Failure describes the step a run stopped at.
type Failure struct {
	Kind     runner.Kind `json:"kind"`
	Step     int         `json:"step"`
	Action   string      `json:"action,omitempty"`
	Selector string      `json:"selector,omitempty"`
	Path     string      `json:"path,omitempty"`
	Reason   string      `json:"reason"`
}

// RunReport is the reported view of a runner.Result.
type RunReport struct {
	RunID          string    `json:"run_id"`
	Scenario       string    `json:"scenario"`
	TargetURL      string    `json:"target_url"`
	State          string    `json:"state"`
	Succeeded      bool      `json:"succeeded"`
	Attempts       int       `json:"navigation_attempts"`
	StepsCompleted int       `json:"steps_completed"`
	TotalSteps     int       `json:"total_steps"`
	Artifacts      []string  `json:"artifacts"`
	StartedAt      time.Time `json:"started_at"`
	DurationMs     int64     `json:"duration_ms"`
	Failure        *Failure  `json:"failure,omitempty"`
}

// NewRunReport flattens a result for output.
func NewRunReport(res *runner.Result) RunReport {
	report := RunReport{
		RunID:          res.RunID,
		Scenario:       res.Scenario,
		TargetURL:      res.TargetURL,
		State:          string(res.State),
		Succeeded:      res.Succeeded(),
		Attempts:       res.Attempts,
		StepsCompleted: res.StepsCompleted,
		TotalSteps:     res.TotalSteps,
		Artifacts:      res.Artifacts,
		StartedAt:      res.Started,
		DurationMs:     res.Duration().Milliseconds(),
	}
	if report.Artifacts == nil {
		report.Artifacts = []string{}
	}
	if re := res.Error; re != nil {
		report.Failure = &Failure{
			Kind:     re.Kind,
			Step:     re.Step,
			Action:   string(re.Action),
			Selector: re.Selector,
			Path:     re.Path,
			Reason:   re.Reason(),
		}
	}
	return report
}
