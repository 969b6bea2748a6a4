// File: internal/scenario/loader.go
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileScenario is the on-disk YAML layout of a scenario.
type fileScenario struct {
	Name      string     `yaml:"name"`
	TargetURL string     `yaml:"target_url,omitempty"`
	Steps     []fileStep `yaml:"steps"`
}

type fileStep struct {
	Action    string        `yaml:"action"`
	Selector  string        `yaml:"selector,omitempty"`
	Value     string        `yaml:"value,omitempty"`
	URL       string        `yaml:"url,omitempty"`
	State     string        `yaml:"state,omitempty"`      // selector state or load state
	WaitUntil string        `yaml:"wait_until,omitempty"` // navigate readiness
	Path      string        `yaml:"path,omitempty"`
	FullPage  bool          `yaml:"full_page,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// Load reads and validates a scenario file. When the file has no name the file
// name without extension is used.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario file: %w", err)
	}
	base := filepath.Base(path)
	return parse(data, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Parse decodes a scenario from YAML. Unknown fields are rejected so that typos
// fail loudly instead of silently skipping a step option.
func Parse(data []byte) (Scenario, error) {
	return parse(data, "")
}

func parse(data []byte, defaultName string) (Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var fs fileScenario
	if err := dec.Decode(&fs); err != nil {
		if errors.Is(err, io.EOF) {
			return Scenario{}, errors.New("failed to parse scenario: document is empty")
		}
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if fs.Name == "" {
		fs.Name = defaultName
	}

	b := New(fs.Name).Target(fs.TargetURL)
	for i, raw := range fs.Steps {
		step, err := raw.toStep()
		if err != nil {
			return Scenario{}, fmt.Errorf("step %d: %w", i, err)
		}
		b.Add(step)
	}
	return b.Build()
}

func (f fileStep) toStep() (Step, error) {
	var step Step
	switch Action(strings.ToLower(strings.TrimSpace(f.Action))) {
	case ActionNavigate:
		step = Navigate(f.URL).WithReadiness(f.WaitUntil)
	case ActionWaitForSelector:
		step = WaitForSelector(f.Selector, SelectorState(f.State))
	case ActionWaitForLoadState:
		step = WaitForLoadState(f.State)
	case ActionFill:
		step = Fill(f.Selector, f.Value)
	case ActionClick:
		step = Click(f.Selector)
	case ActionScreenshot:
		step = Screenshot(f.Path, f.FullPage)
	case "":
		return Step{}, errors.New("action is required")
	default:
		return Step{}, fmt.Errorf("unknown action %q", f.Action)
	}
	return step.WithTimeout(f.Timeout), nil
}

// Marshal renders a scenario in the YAML layout accepted by Parse.
func Marshal(sc Scenario) ([]byte, error) {
	fs := fileScenario{Name: sc.name, TargetURL: sc.targetURL}
	for _, s := range sc.steps {
		fstep := fileStep{
			Action:   string(s.action),
			Selector: s.selector,
			Value:    s.value,
			URL:      s.url,
			Path:     s.path,
			FullPage: s.fullPage,
			Timeout:  s.timeout,
		}
		switch s.action {
		case ActionNavigate:
			fstep.WaitUntil = s.loadState
		case ActionWaitForSelector:
			fstep.State = string(s.selectorState)
		case ActionWaitForLoadState:
			fstep.State = s.loadState
		}
		fs.Steps = append(fs.Steps, fstep)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fs); err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}
	return buf.Bytes(), nil
}
