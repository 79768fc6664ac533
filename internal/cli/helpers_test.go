package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const analyticsSpec = `
package pipeline

pipeline: "analytics"

node: orders_raw: {
	create: ["CREATE TABLE orders_raw (id INTEGER PRIMARY KEY, amount INTEGER)"]
	delete: "DROP TABLE IF EXISTS orders_raw"
}

node: orders_total: {
	dependencies: ["orders_raw"]
	create: [
		"CREATE TABLE orders_total (total INTEGER)",
		"INSERT INTO orders_total SELECT COALESCE(SUM(amount), 0) FROM orders_raw",
	]
	refresh: [
		"DELETE FROM orders_total",
		"INSERT INTO orders_total SELECT COALESCE(SUM(amount), 0) FROM orders_raw",
	]
	delete: "DROP TABLE IF EXISTS orders_total"
}
`

// writeSpecs writes content as nodes.cue in a fresh directory and returns it.
func writeSpecs(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "specs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.cue"), []byte(content), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout, stderr and
// the command error. The working directory is a temp dir so no stray
// strata.yaml is picked up.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// runCommand executes a standalone subcommand.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
