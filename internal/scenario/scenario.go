// Package scenario defines the declarative test plans the harness runs.
//
// A plan is a YAML document listing named scenarios; each scenario is an
// ordered list of steps that spawn role processes, pause briefly to let
// dependent roles come up, or block until a role exits. The skal system
// tests ship as an embedded default plan.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout applies to scenarios that do not set one.
const DefaultTimeout = 500 * time.Millisecond

// Duration wraps time.Duration so plan files can use "500ms"-style
// strings.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Plan is an ordered list of scenarios, run strictly sequentially.
type Plan struct {
	// Name labels the plan in the run history.
	Name string `yaml:"name,omitempty"`

	// Scenarios are executed in order.
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario is one self-contained test case.
type Scenario struct {
	// Name uniquely identifies this scenario within the plan.
	Name string `yaml:"name"`

	// Description is the human-readable line recorded in the results.
	Description string `yaml:"description"`

	// Timeout bounds the whole scenario; the watchdog fires past it.
	// Defaults to DefaultTimeout.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Steps run in order. Each step is exactly one of spawn, pause, or
	// wait.
	Steps []Step `yaml:"steps"`
}

// EffectiveTimeout returns the scenario timeout, applying the default.
func (s *Scenario) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout.Std()
	}
	return DefaultTimeout
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	// Spawn launches a role process without waiting for it.
	Spawn *SpawnStep `yaml:"spawn,omitempty"`

	// Pause sleeps briefly. Used to stagger startup of dependent roles
	// (best-effort pacing, not a correctness guarantee).
	Pause Duration `yaml:"pause,omitempty"`

	// Wait blocks until a spawned role exits and checks its status.
	Wait *WaitStep `yaml:"wait,omitempty"`
}

// SpawnStep launches argv under a role name.
type SpawnStep struct {
	Role string   `yaml:"role"`
	Argv []string `yaml:"argv"`
}

// WaitStep blocks on a role's exit. The scenario fails if the exit
// status differs from Exit (default 0).
type WaitStep struct {
	Role string `yaml:"role"`
	Exit int    `yaml:"exit,omitempty"`
}

// LoadPlan reads and parses a plan YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan parses plan YAML with strict field validation, so typos like
// "scenario:" for "scenarios:" are rejected rather than ignored.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&plan); err != nil {
		return nil, fmt.Errorf("parsing plan YAML: %w", err)
	}
	if err := validatePlan(&plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}

// validatePlan checks that required fields are present and coherent.
func validatePlan(p *Plan) error {
	if len(p.Scenarios) == 0 {
		return fmt.Errorf("scenarios list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, s := range p.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenarios[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("scenarios[%d]: duplicate scenario name %q", i, s.Name)
		}
		seen[s.Name] = true
		if s.Description == "" {
			return fmt.Errorf("scenarios[%d]: description is required", i)
		}
		if len(s.Steps) == 0 {
			return fmt.Errorf("scenarios[%d]: steps list is required and must be non-empty", i)
		}
		for j, step := range s.Steps {
			if err := validateStep(&step); err != nil {
				return fmt.Errorf("scenarios[%d].steps[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// validateStep checks that a step sets exactly one action.
func validateStep(st *Step) error {
	set := 0
	if st.Spawn != nil {
		set++
		if st.Spawn.Role == "" {
			return fmt.Errorf("spawn: role is required")
		}
		if len(st.Spawn.Argv) == 0 {
			return fmt.Errorf("spawn: argv is required and must be non-empty")
		}
	}
	if st.Pause > 0 {
		set++
	}
	if st.Wait != nil {
		set++
		if st.Wait.Role == "" {
			return fmt.Errorf("wait: role is required")
		}
		if st.Wait.Exit < 0 {
			return fmt.Errorf("wait: exit must be non-negative")
		}
	}

	switch set {
	case 0:
		return fmt.Errorf("step must set one of spawn, pause, wait")
	case 1:
		return nil
	default:
		return fmt.Errorf("step must set exactly one of spawn, pause, wait")
	}
}
