package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/testutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// cliEnv runs commands against one temp database with a fixed clock and
// sequential ids g-1, g-2, ...
type cliEnv struct {
	dir   string
	opts  *RootOptions
	clock *testutil.FixedClock
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	clock := testutil.NewFixedClock(t0)
	return &cliEnv{
		dir:   dir,
		clock: clock,
		opts: &RootOptions{
			Format:   "text",
			Database: filepath.Join(dir, "goals.db"),
			Clock:    clock,
			IDs:      testutil.NewSequentialIDs("g"),
		},
	}
}

func (e *cliEnv) run(t *testing.T, newCmd func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newCmd(e.opts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, newCmd func(*RootOptions) *cobra.Command, args ...string) string {
	t.Helper()
	out, err := e.run(t, newCmd, args...)
	require.NoError(t, err, out)
	return out
}

func (e *cliEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// importPlan writes and imports a plan. Goals get ids in declaration
// order, parents first.
func (e *cliEnv) importPlan(t *testing.T, plan string) {
	t.Helper()
	path := e.writeFile(t, "plan.cue", plan)
	e.mustRun(t, NewImportCommand, path)
}

const parentChildPlan = `
goal: p: {
	title:      "Parent"
	start:      "2026-03-02"
	deadline:   "2026-03-30"
	on_finally: [{manual: "debrief"}]
}
goal: c: {
	title:    "Child"
	parent:   "p"
	start:    "2026-03-02"
	deadline: "2026-03-10"
}
`
