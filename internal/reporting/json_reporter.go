// File: internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/verify-cli/internal/runner"
)

// Summary is the JSON document produced by JSONReporter.
type Summary struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Runs      []RunReport `json:"runs"`
}

// JSONReporter buffers run reports and writes a single document on Close.
type JSONReporter struct {
	writer io.WriteCloser
	// mu protects the summary; parallel runs report concurrently.
	mu      sync.Mutex
	summary Summary
	closed  bool
}

// NewJSONReporter takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer:  writer,
		summary: Summary{Runs: []RunReport{}},
	}
}

// Write adds a run to the report.
func (r *JSONReporter) Write(result *runner.Result) error {
	if result == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("json reporter is closed")
	}

	report := NewRunReport(result)
	r.summary.Runs = append(r.summary.Runs, report)
	r.summary.Total++
	if report.Succeeded {
		r.summary.Succeeded++
	} else {
		r.summary.Failed++
	}
	return nil
}

// Close writes the document and closes the writer. Later calls are no-ops.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	encoder := json.ConfigCompatibleWithStandardLibrary.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.summary)
	closeErr := r.writer.Close()
	if encodeErr != nil {
		return fmt.Errorf("failed to encode json report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close report output: %w", closeErr)
	}
	return nil
}
