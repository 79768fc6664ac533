package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/strata/internal/ir"
)

// Pipeline is the compiled form of a pipeline instance.
type Pipeline struct {
	// Name is empty when the instance does not set `pipeline`.
	Name string

	// Nodes in declaration order.
	Nodes []ir.NodeDefinition
}

// CompilePipeline parses a CUE instance into a Pipeline.
//
// The instance looks like:
//
//	pipeline: "analytics"
//	node: orders_daily: {
//		dependencies: ["orders_clean"]
//		create: ["CREATE TABLE orders_daily AS ..."]
//		refresh: ["DELETE FROM orders_daily", "INSERT INTO orders_daily ..."]
//		delete: "DROP TABLE IF EXISTS orders_daily"
//	}
//
// Nodes keep the order in which CUE yields the fields of `node`, which is
// declaration order for a single file.
func CompilePipeline(v cue.Value) (*Pipeline, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Pipeline{}

	nameVal := v.LookupPath(cue.ParsePath("pipeline"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   "pipeline",
				Message: "pipeline must be a string",
				Pos:     nameVal.Pos(),
			}
		}
		p.Name = name
	}

	nodesVal := v.LookupPath(cue.ParsePath("node"))
	if !nodesVal.Exists() {
		return p, nil
	}

	iter, err := nodesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		def, err := compileNode(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		p.Nodes = append(p.Nodes, *def)
	}

	return p, nil
}

// CompileNode parses a CUE value into a NodeDefinition.
// The node name is the last label of the value's path:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`node: a: { create: ["..."], delete: "..." }`)
//	def, err := CompileNode(v.LookupPath(cue.ParsePath("node.a")))
func CompileNode(v cue.Value) (*ir.NodeDefinition, error) {
	var name string
	if sels := v.Path().Selectors(); len(sels) > 0 {
		sel := sels[len(sels)-1]
		if sel.IsString() {
			name = sel.Unquoted()
		} else {
			name = sel.String()
		}
	}
	return compileNode(name, v)
}

func compileNode(name string, v cue.Value) (*ir.NodeDefinition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if name == "" {
		return nil, &CompileError{Field: "node", Message: "node name is required", Pos: v.Pos()}
	}

	def := &ir.NodeDefinition{Name: name}
	var err error

	// create is required and non-empty
	def.CreateStatements, err = stringList(v, "create", name)
	if err != nil {
		return nil, err
	}
	if len(def.CreateStatements) == 0 {
		return nil, &CompileError{
			Field:   fmt.Sprintf("node.%s.create", name),
			Message: "at least one create statement is required",
			Pos:     v.Pos(),
		}
	}

	// delete is required
	delVal := v.LookupPath(cue.ParsePath("delete"))
	if !delVal.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("node.%s.delete", name),
			Message: "delete statement is required",
			Pos:     v.Pos(),
		}
	}
	def.DeleteStatement, err = delVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	def.Dependencies, err = stringList(v, "dependencies", name)
	if err != nil {
		return nil, err
	}

	// An explicit `refresh: []` is kept as non-nil: the node is then
	// refreshed with an empty transaction instead of skipped.
	def.RefreshStatements, err = stringList(v, "refresh", name)
	if err != nil {
		return nil, err
	}

	return def, nil
}

// stringList reads an optional list of strings. Returns nil when the field
// is absent and a non-nil slice when it is present.
func stringList(v cue.Value, field, node string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}

	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("node.%s.%s", node, field),
			Message: "must be a list of strings",
			Pos:     fv.Pos(),
		}
	}

	out := []string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("node.%s.%s", node, field),
				Message: "must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
