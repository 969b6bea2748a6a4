// File: internal/scenario/scenario.go
package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// Scenario is a named, fixed, ordered sequence of steps. It is safe to share between
// goroutines because nothing mutates it after Build.
type Scenario struct {
	name      string
	targetURL string
	steps     []Step
}

// Name returns the scenario name used in logs and reports.
func (s Scenario) Name() string { return s.name }

// TargetURL returns the scenario's own target, or "" to use the configured one.
func (s Scenario) TargetURL() string { return s.targetURL }

// Len returns the number of steps.
func (s Scenario) Len() int { return len(s.steps) }

// Step returns the step at index i.
func (s Scenario) Step(i int) Step { return s.steps[i] }

// Steps returns a copy of the step list.
func (s Scenario) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// StartsWithNavigate reports whether the first step is a navigate step.
func (s Scenario) StartsWithNavigate() bool {
	return len(s.steps) > 0 && s.steps[0].action == ActionNavigate
}

// Validate checks the scenario and every step in it.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.name) == "" {
		return errors.New("scenario name is required")
	}
	if len(s.steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", s.name)
	}
	for i, step := range s.steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("scenario %q step %d: %w", s.name, i, err)
		}
	}
	return nil
}

// Builder assembles a Scenario step by step.
//
//	sc, err := scenario.New("checkout").
//		Navigate("").
//		Click("text=Pay").
//		Screenshot("paid.png", false).
//		Build()
type Builder struct {
	name      string
	targetURL string
	steps     []Step
}

// New starts a scenario builder.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Target sets a scenario-specific target URL.
func (b *Builder) Target(url string) *Builder {
	b.targetURL = url
	return b
}

// Add appends prebuilt steps.
func (b *Builder) Add(steps ...Step) *Builder {
	b.steps = append(b.steps, steps...)
	return b
}

func (b *Builder) Navigate(url string) *Builder { return b.Add(Navigate(url)) }

func (b *Builder) WaitForSelector(selector string) *Builder {
	return b.Add(WaitForSelector(selector, StateVisible))
}

func (b *Builder) WaitForLoadState(state string) *Builder { return b.Add(WaitForLoadState(state)) }

func (b *Builder) Fill(selector, value string) *Builder { return b.Add(Fill(selector, value)) }

func (b *Builder) Click(selector string) *Builder { return b.Add(Click(selector)) }

func (b *Builder) Screenshot(path string, fullPage bool) *Builder {
	return b.Add(Screenshot(path, fullPage))
}

// Build validates and freezes the scenario.
func (b *Builder) Build() (Scenario, error) {
	sc := Scenario{
		name:      b.name,
		targetURL: b.targetURL,
		steps:     make([]Step, len(b.steps)),
	}
	copy(sc.steps, b.steps)
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// MustBuild is Build for scenarios defined in code; it panics on an invalid scenario.
func (b *Builder) MustBuild() Scenario {
	sc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sc
}
