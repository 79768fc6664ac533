package engine

import (
	"context"
	"sort"

	"github.com/roach88/strata/internal/ir"
)

// ActionKind is the decision taken for one node.
type ActionKind string

const (
	// ActionReap removes a node that is no longer defined.
	ActionReap ActionKind = "reap"

	// ActionRebuild drops and recreates a new or changed node.
	ActionRebuild ActionKind = "rebuild"

	// ActionRefresh runs the refresh statements of an unchanged node.
	ActionRefresh ActionKind = "refresh"

	// ActionSkip leaves an unchanged node without refresh statements alone.
	ActionSkip ActionKind = "skip"
)

// Action is one planned (or completed) step of a refresh.
type Action struct {
	Kind ActionKind `json:"kind"`
	Node string     `json:"node"`

	// Hash is the freshly computed content hash. Empty for reaps.
	Hash string `json:"hash,omitempty"`

	// PreviousHash is the persisted hash, if the node had a state row.
	PreviousHash string `json:"previous_hash,omitempty"`

	// Statements lists the SQL the action runs, in execution order.
	Statements []string `json:"statements,omitempty"`

	def   *ir.NodeDefinition
	state *ir.NodeState
}

// NodeHash pairs a node name with its content hash.
type NodeHash struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// Plan is the ordered list of actions a refresh would perform.
type Plan struct {
	Pipeline string   `json:"pipeline"`
	Actions  []Action `json:"actions"`
}

// Count returns the number of actions of the given kind.
func (p *Plan) Count(kind ActionKind) int {
	return countActions(p.Actions, kind)
}

func countActions(actions []Action, kind ActionKind) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// ComputeHashes returns the content hash of every definition, in order.
//
// Dependencies are looked up among the hashes already computed; a dependency
// that has not been seen yet (unknown, or declared later) contributes an
// empty chunk.
func ComputeHashes(defs []ir.NodeDefinition) []NodeHash {
	hashes := make([]NodeHash, 0, len(defs))
	index := make(map[string]string, len(defs))
	lookup := func(name string) string {
		return index[name]
	}

	for _, def := range defs {
		h := ir.NodeHash(def, lookup)
		hashes = append(hashes, NodeHash{Name: def.Name, Hash: h})
		index[def.Name] = h
	}
	return hashes
}

// Plan computes the actions Refresh would perform without executing any of
// them.
//
// names, when non-nil, narrows which persisted states are loaded. Only those
// states take part in obsolete detection and in the unchanged check; every
// definition is still walked, so a defined node whose state was not loaded
// is planned as a rebuild.
func (e *Engine) Plan(ctx context.Context, pipeline string, defs []ir.NodeDefinition, names []string) (*Plan, error) {
	if e.strict {
		if err := checkDependencyOrder(pipeline, defs); err != nil {
			return nil, err
		}
	}

	states, err := e.states.FindStates(ctx, ir.StateFilter{Pipeline: pipeline, Names: names})
	if err != nil {
		return nil, persistenceError(pipeline, "", err)
	}

	stateByName := make(map[string]*ir.NodeState, len(states))
	for i := range states {
		stateByName[states[i].Name] = &states[i]
	}

	hashes := ComputeHashes(defs)

	defined := make(map[string]bool, len(defs))
	for _, def := range defs {
		defined[def.Name] = true
	}

	plan := &Plan{Pipeline: pipeline}

	var obsolete []*ir.NodeState
	for i := range states {
		if !defined[states[i].Name] {
			obsolete = append(obsolete, &states[i])
		}
	}
	sort.Slice(obsolete, func(i, j int) bool {
		return obsolete[i].Name < obsolete[j].Name
	})
	for _, st := range obsolete {
		plan.Actions = append(plan.Actions, Action{
			Kind:         ActionReap,
			Node:         st.Name,
			PreviousHash: st.ContentHash,
			Statements:   []string{st.CleanupStatement},
			state:        st,
		})
	}

	for i := range defs {
		def := &defs[i]
		hash := hashes[i].Hash
		st := stateByName[def.Name]

		action := Action{Node: def.Name, Hash: hash, def: def, state: st}
		if st != nil {
			action.PreviousHash = st.ContentHash
		}

		switch {
		case st != nil && st.ContentHash == hash && def.HasRefresh():
			action.Kind = ActionRefresh
			action.Statements = append([]string(nil), def.RefreshStatements...)
		case st != nil && st.ContentHash == hash:
			action.Kind = ActionSkip
		default:
			action.Kind = ActionRebuild
			action.Statements = make([]string, 0, len(def.CreateStatements)+1)
			action.Statements = append(action.Statements, def.DeleteStatement)
			action.Statements = append(action.Statements, def.CreateStatements...)
		}
		plan.Actions = append(plan.Actions, action)
	}

	return plan, nil
}

// checkDependencyOrder verifies that every dependency is declared before
// the node that names it.
func checkDependencyOrder(pipeline string, defs []ir.NodeDefinition) error {
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		for _, dep := range def.Dependencies {
			if !seen[dep] {
				return NewUnknownDependencyError(pipeline, def.Name, dep)
			}
		}
		seen[def.Name] = true
	}
	return nil
}
