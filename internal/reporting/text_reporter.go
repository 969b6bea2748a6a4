// File: internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/verify-cli/internal/runner"
)

// TextReporter writes a human readable block per run as soon as it finishes.
type TextReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewTextReporter takes ownership of writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

// Write renders one run.
func (r *TextReporter) Write(result *runner.Result) error {
	if result == nil {
		return nil
	}
	report := NewRunReport(result)

	var b strings.Builder
	status := "PASS"
	if !report.Succeeded {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "%s  %s  (run %s)\n", status, report.Scenario, report.RunID)
	fmt.Fprintf(&b, "  target:     %s\n", report.TargetURL)
	fmt.Fprintf(&b, "  state:      %s\n", report.State)
	fmt.Fprintf(&b, "  attempts:   %d\n", report.Attempts)
	fmt.Fprintf(&b, "  steps:      %d/%d\n", report.StepsCompleted, report.TotalSteps)
	fmt.Fprintf(&b, "  duration:   %s\n", (time.Duration(report.DurationMs) * time.Millisecond).String())
	for _, path := range report.Artifacts {
		fmt.Fprintf(&b, "  artifact:   %s\n", path)
	}
	if f := report.Failure; f != nil {
		fmt.Fprintf(&b, "  failure:    %s\n", f.Kind)
		if f.Step >= 0 {
			parts := []string{f.Action}
			for _, s := range []string{f.Selector, f.Path} {
				if s != "" {
					parts = append(parts, s)
				}
			}
			fmt.Fprintf(&b, "  step:       %d %s\n", f.Step, strings.Join(parts, " "))
		}
		fmt.Fprintf(&b, "  reason:     %s\n", f.Reason)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}
