package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/strata/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Pipeline     string       `json:"pipeline"`
	Steps        []StepResult `json:"steps"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization, which only handles maps, slices and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, step := range s.Steps {
		actions := make([]any, len(step.Actions))
		for j, a := range step.Actions {
			actions[j] = map[string]any{"node": a.Node, "kind": a.Kind}
		}

		trace := make([]any, len(step.Trace))
		for j, ev := range step.Trace {
			m := map[string]any{"seq": ev.Seq, "kind": ev.Kind}
			if ev.Statement != "" {
				m["statement"] = ev.Statement
			}
			if ev.InTx {
				m["in_tx"] = true
			}
			if ev.Failed {
				m["failed"] = true
			}
			trace[j] = m
		}

		m := map[string]any{
			"name":    step.Name,
			"actions": actions,
			"trace":   trace,
		}
		if step.ErrorCode != "" {
			m["error_code"] = step.ErrorCode
		}
		steps[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"pipeline":      s.Pipeline,
		"steps":         steps,
	}
}

// Snapshot returns the canonical JSON trace of a scenario result.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	pipeline := scenario.Pipeline
	if pipeline == "" {
		pipeline = DefaultPipeline
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		Pipeline:     pipeline,
		Steps:        result.Steps,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}
