package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/ir"
)

// Scenario defines a refresh test scenario: a sequence of refreshes of one
// pipeline against the same database, each followed by assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipeline is the pipeline name passed to the engine.
	// Defaults to "test".
	Pipeline string `yaml:"pipeline,omitempty"`

	// RunID is a fixed run ID for deterministic traces.
	// Defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Strict enables strict dependency checking in the engine.
	Strict bool `yaml:"strict,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is one Refresh call.
type Step struct {
	Name string `yaml:"name"`

	// Nodes are inline definitions, passed to the engine as written.
	Nodes []ir.NodeDefinition `yaml:"nodes,omitempty"`

	// Specs is a CUE directory compiled and dependency-ordered before the
	// refresh. Relative to the scenario file. Exclusive with Nodes.
	Specs string `yaml:"specs,omitempty"`

	// Setup statements run directly on the database before the refresh and
	// are not traced.
	Setup []string `yaml:"setup,omitempty"`

	// Only narrows which persisted states are loaded.
	Only []string `yaml:"only,omitempty"`

	// FailOn injects a failure into every statement containing one of these
	// substrings.
	FailOn []string `yaml:"fail_on,omitempty"`

	// ExpectError is the RefreshError code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion validates a step's trace, actions or the database afterwards.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an exec event's statement contains Statement
	// - "trace_order": statements appear in order
	// - "trace_count": events of Kind (optionally matching Statement) occur Count times
	// - "action": Node was handled with Action
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Statement is a substring matched against executed statements.
	Statement string `yaml:"statement,omitempty"`

	// Statements is the expected statement order (trace_order).
	Statements []string `yaml:"statements,omitempty"`

	// Kind is the event kind counted by trace_count. Defaults to "exec".
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Node and Action are used by the action assertion.
	Node   string `yaml:"node,omitempty"`
	Action string `yaml:"action,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match; an empty map with Absent asserts no row matches.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no row matches (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertAction        = "action"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Step specs paths are resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for i := range scenario.Steps {
		if s := scenario.Steps[i].Specs; s != "" && !filepath.IsAbs(s) {
			scenario.Steps[i].Specs = filepath.Join(base, s)
		}
	}

	for i, step := range scenario.Steps {
		if step.Specs == "" {
			continue
		}
		if _, err := os.Stat(step.Specs); err != nil {
			return nil, fmt.Errorf("invalid scenario: steps[%d]: specs directory not found: %s", i, step.Specs)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Specs != "" && len(step.Nodes) > 0 {
			return fmt.Errorf("steps[%d]: nodes and specs are mutually exclusive", i)
		}
		for j, node := range step.Nodes {
			if node.Name == "" {
				return fmt.Errorf("steps[%d].nodes[%d]: name is required", i, j)
			}
			if len(node.CreateStatements) == 0 {
				return fmt.Errorf("steps[%d].nodes[%d]: create is required", i, j)
			}
			if node.DeleteStatement == "" {
				return fmt.Errorf("steps[%d].nodes[%d]: delete is required", i, j)
			}
		}
		for j := range step.Assertions {
			if err := validateAssertion(i, j, &step.Assertions[j]); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(step, index int, a *Assertion) error {
	where := fmt.Sprintf("steps[%d].assertions[%d]", step, index)
	switch a.Type {
	case "":
		return fmt.Errorf("%s: type is required", where)
	case AssertTraceContains:
		if a.Statement == "" {
			return fmt.Errorf("%s: statement is required for trace_contains", where)
		}
	case AssertTraceOrder:
		if len(a.Statements) == 0 {
			return fmt.Errorf("%s: statements list is required for trace_order", where)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative for trace_count", where)
		}
	case AssertAction:
		if a.Node == "" || a.Action == "" {
			return fmt.Errorf("%s: node and action are required for action", where)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("%s: table is required for final_state", where)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("%s: expect or absent is required for final_state", where)
		}
	default:
		return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
	}
	return nil
}
