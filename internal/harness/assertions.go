package harness

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/strata/internal/testutil"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so only these are interpolated.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Step     string       // Step the assertion belongs to
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Step trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (step %s)\n", e.Type, e.Step)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nStep trace:\n")
		for _, ev := range e.Trace {
			if ev.Kind == testutil.EventExec {
				fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.Statement)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, ev.Kind)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks that some executed statement contains the
// assertion's statement text.
func assertTraceContains(step StepResult, a Assertion) error {
	for _, ev := range step.Trace {
		if ev.Kind == testutil.EventExec && strings.Contains(ev.Statement, a.Statement) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Step:     step.Name,
		Expected: fmt.Sprintf("statement containing %q", a.Statement),
		Actual:   "not found in trace",
		Trace:    step.Trace,
	}
}

// assertTraceOrder checks that statements appear in the specified order.
// Statements don't need to be consecutive (intervening ones are allowed).
// Each entry matches the first executed statement containing it.
func assertTraceOrder(step StepResult, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range step.Trace {
		if ev.Kind != testutil.EventExec {
			continue
		}
		for _, want := range a.Statements {
			if positions[want] == 0 && strings.Contains(ev.Statement, want) {
				positions[want] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, want := range a.Statements {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Step:     step.Name,
				Expected: fmt.Sprintf("all statements present: %q", a.Statements),
				Actual:   fmt.Sprintf("missing statement: %q", want),
				Trace:    step.Trace,
			}
		}
	}

	for i := 1; i < len(a.Statements); i++ {
		prev, curr := a.Statements[i-1], a.Statements[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Step:     step.Name,
				Expected: fmt.Sprintf("statements in order: %q", a.Statements),
				Actual: fmt.Sprintf("%q (pos %d) should be before %q (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: step.Trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that events of the given kind, optionally
// restricted to statements containing a.Statement, occur exactly a.Count
// times.
func assertTraceCount(step StepResult, a Assertion) error {
	kind := a.Kind
	if kind == "" {
		kind = testutil.EventExec
	}

	count := 0
	for _, ev := range step.Trace {
		if ev.Kind != kind {
			continue
		}
		if a.Statement != "" && !strings.Contains(ev.Statement, a.Statement) {
			continue
		}
		count++
	}

	if count != a.Count {
		what := kind
		if a.Statement != "" {
			what = fmt.Sprintf("%s %q", kind, a.Statement)
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Step:     step.Name,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    step.Trace,
		}
	}
	return nil
}

// assertAction checks the decision taken for a node.
func assertAction(step StepResult, a Assertion) error {
	for _, act := range step.Actions {
		if act.Node == a.Node {
			if act.Kind == a.Action {
				return nil
			}
			return &AssertionError{
				Type:     AssertAction,
				Step:     step.Name,
				Expected: fmt.Sprintf("node %s: %s", a.Node, a.Action),
				Actual:   fmt.Sprintf("node %s: %s", a.Node, act.Kind),
			}
		}
	}
	return &AssertionError{
		Type:     AssertAction,
		Step:     step.Name,
		Expected: fmt.Sprintf("node %s: %s", a.Node, a.Action),
		Actual:   "node not processed",
	}
}

// assertFinalState queries a table and checks the single matching row with
// subset semantics, or that no row matches when a.Absent is set.
func assertFinalState(ctx context.Context, db *sql.DB, stepName string, a Assertion) error {
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := db.QueryContext(ctx, query, whereArgs...)
	if err != nil {
		if a.Absent && strings.Contains(err.Error(), "no such table") {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Step:     stepName,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		if a.Absent {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Step:     stepName,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	}
	if a.Absent {
		return &AssertionError{
			Type:     AssertFinalState,
			Step:     stepName,
			Expected: fmt.Sprintf("no row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Step:     stepName,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := sortedKeys(a.Expect)
	for _, key := range keys {
		expected := a.Expect[key]
		actual, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Step:     stepName,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Step:     stepName,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are sorted
// for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}
	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML value with a value scanned from SQLite.
// SQLite returns INTEGER as int64, TEXT as string or []byte, and stores
// booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && exp == s
	case int:
		n, ok := actual.(int64)
		return ok && int64(exp) == n
	case int64:
		n, ok := actual.(int64)
		return ok && exp == n
	case bool:
		if b, ok := actual.(bool); ok {
			return exp == b
		}
		if n, ok := actual.(int64); ok {
			return exp == (n != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// EvaluateAssertions evaluates a step's assertions.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, db *sql.DB, step StepResult, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(step, a)
		case AssertTraceOrder:
			err = assertTraceOrder(step, a)
		case AssertTraceCount:
			err = assertTraceCount(step, a)
		case AssertAction:
			err = assertAction(step, a)
		case AssertFinalState:
			if db == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a database", i)
			} else {
				err = assertFinalState(ctx, db, step.Name, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
