package compiler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Dependency issue kinds.
const (
	IssueUnknown = "unknown" // dependency names no defined node
	IssueForward = "forward" // dependency is defined after the node
	IssueSelf    = "self"    // node depends on itself
	IssueCycle   = "cycle"   // nodes depend on each other
)

// DependencyIssue describes one problem in the dependency graph.
type DependencyIssue struct {
	Kind       string   `json:"kind"`
	Node       string   `json:"node"`
	Dependency string   `json:"dependency,omitempty"`
	Path       []string `json:"path,omitempty"` // cycle path: ["a", "b", "a"]
	Message    string   `json:"message"`
}

// DependencyError is returned by Order when the nodes cannot be ordered.
type DependencyError struct {
	Issues []DependencyIssue
}

func (e *DependencyError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return "dependency error: " + strings.Join(msgs, "; ")
}

// AnalyzeDependencies reports every dependency problem in defs without
// failing.
//
// Forward references are only a problem for callers that hand defs to the
// engine unordered; Order fixes them. Unknown dependencies, self
// dependencies and cycles cannot be fixed by reordering.
//
// Cycles are found with Tarjan's algorithm. Each strongly connected
// component with more than one node is reported once.
func AnalyzeDependencies(defs []ir.NodeDefinition) []DependencyIssue {
	issues := []DependencyIssue{}

	index := make(map[string]int, len(defs))
	for i, def := range defs {
		if _, dup := index[def.Name]; !dup {
			index[def.Name] = i
		}
	}

	for i, def := range defs {
		for _, dep := range def.Dependencies {
			j, known := index[dep]
			switch {
			case !known:
				issues = append(issues, DependencyIssue{
					Kind:       IssueUnknown,
					Node:       def.Name,
					Dependency: dep,
					Message:    fmt.Sprintf("node %q depends on unknown node %q", def.Name, dep),
				})
			case dep == def.Name:
				issues = append(issues, DependencyIssue{
					Kind:       IssueSelf,
					Node:       def.Name,
					Dependency: dep,
					Path:       []string{dep, dep},
					Message:    fmt.Sprintf("node %q depends on itself", def.Name),
				})
			case j > i:
				issues = append(issues, DependencyIssue{
					Kind:       IssueForward,
					Node:       def.Name,
					Dependency: dep,
					Message:    fmt.Sprintf("node %q depends on %q, which is declared after it", def.Name, dep),
				})
			}
		}
	}

	graph := buildGraph(defs, index)
	for _, scc := range tarjanSCC(graph, defs) {
		if len(scc) < 2 {
			continue
		}
		path := cyclePath(scc, graph)
		issues = append(issues, DependencyIssue{
			Kind:    IssueCycle,
			Node:    path[0],
			Path:    path,
			Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " → ")),
		})
	}

	return issues
}

// Order returns defs sorted so every node comes after its dependencies.
//
// The sort is stable: among nodes whose dependencies are satisfied, the one
// declared first goes first, so already ordered input is returned
// unchanged. Unknown dependencies and cycles fail with *DependencyError.
func Order(defs []ir.NodeDefinition) ([]ir.NodeDefinition, error) {
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.Name] = i
	}

	var issues []DependencyIssue
	for _, issue := range AnalyzeDependencies(defs) {
		if issue.Kind != IssueForward {
			issues = append(issues, issue)
		}
	}
	if len(issues) > 0 {
		return nil, &DependencyError{Issues: issues}
	}

	// Kahn's algorithm with declaration index as priority.
	indegree := make([]int, len(defs))
	dependents := make([][]int, len(defs))
	for i, def := range defs {
		for _, dep := range def.Dependencies {
			j := index[dep]
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range defs {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]ir.NodeDefinition, 0, len(defs))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, defs[i])
		for _, k := range dependents[i] {
			indegree[k]--
			if indegree[k] == 0 {
				ready = append(ready, k)
			}
		}
	}

	return ordered, nil
}

// dependencyGraph maps node name → names of its known dependencies.
type dependencyGraph map[string][]string

func buildGraph(defs []ir.NodeDefinition, index map[string]int) dependencyGraph {
	graph := make(dependencyGraph, len(defs))
	for _, def := range defs {
		if graph[def.Name] == nil {
			graph[def.Name] = []string{}
		}
		for _, dep := range def.Dependencies {
			if _, known := index[dep]; known && dep != def.Name {
				graph[def.Name] = append(graph[def.Name], dep)
			}
		}
	}
	return graph
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in declaration order so the output is deterministic.
func tarjanSCC(graph dependencyGraph, defs []ir.NodeDefinition) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, def := range defs {
		if _, visited := indices[def.Name]; !visited {
			strongConnect(def.Name)
		}
	}

	return sccs
}

// cyclePath returns a closed walk through an SCC starting and ending at
// its alphabetically first member. Edges are tried in declaration order
// and dead ends are backtracked.
func cyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)

	path := []string{start}
	visited := map[string]bool{start: true}
	var walk func(current string) bool
	walk = func(current string) bool {
		for _, w := range graph[current] {
			if !members[w] {
				continue
			}
			if w == start {
				path = append(path, w)
				return true
			}
			if visited[w] {
				continue
			}
			visited[w] = true
			path = append(path, w)
			if walk(w) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	walk(start)
	return path
}
