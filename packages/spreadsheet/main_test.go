package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cli runs commands against one database in one directory
type cli struct {
	t      *testing.T
	dir    string
	vars   map[string]string
	stdin  string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{t: t, dir: dir, vars: map[string]string{
		"SPREADSHEET_DB":          filepath.Join(dir, "sheets.db"),
		"SPREADSHEET_UNSANDBOXED": "true",
		"SPREADSHEET_LOG_LEVEL":   "error",
	}}
}

func (c *cli) run(args ...string) error {
	c.stdout.Reset()
	c.stderr.Reset()
	return run(context.Background(), args, env{
		stdin:  strings.NewReader(c.stdin),
		stdout: &c.stdout,
		stderr: &c.stderr,
		getenv: fakeEnv(c.vars),
	})
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	require.NoError(c.t, c.run(args...), "stderr: %s", c.stderr.String())
	return c.stdout.String()
}

func (c *cli) path(name string) string {
	return filepath.Join(c.dir, name)
}

func TestCLICalc(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("create", "Sheet1"), "created Sheet1")
	c.mustRun("set", "-sheet", "Sheet1", "A1", "20")
	c.mustRun("set", "-sheet", "Sheet1", "A2", "=A1 + 1")

	c.stdin = "load_constants(worksheet)\nevaluate_formulae(worksheet)\nprint(worksheet.A2.value)\n"
	c.mustRun("usercode", "-sheet", "Sheet1", "-")

	out := c.mustRun("calc", "-sheet", "Sheet1")
	assert.True(t, strings.HasPrefix(out, "21\nTook "), out)
	assert.Equal(t, "21\n", c.mustRun("get", "-sheet", "Sheet1", "A2"))

	list := c.mustRun("list")
	assert.Contains(t, list, "NAME")
	assert.Contains(t, list, "Sheet1")
}

func TestCLICalcUsercodeError(t *testing.T) {
	c := newCLI(t)
	c.mustRun("create", "Sheet1")
	require.NoError(t, os.WriteFile(c.path("code.py"), []byte("x = 1\n1 / 0\n"), 0o644))
	c.mustRun("usercode", "-sheet", "Sheet1", c.path("code.py"))

	err := c.run("calc", "-sheet", "Sheet1")
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, c.stderr.String(), "ZeroDivisionError: division by zero")
	assert.Contains(t, c.stderr.String(), "usercode error: ZeroDivisionError: division by zero (line 2)")
}

func TestCLIImportExport(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.WriteFile(c.path("in.csv"), []byte("1,2\n=A1+B1\n"), 0o644))
	c.mustRun("import", "-sheet", "Data", c.path("in.csv"))
	c.mustRun("calc", "-sheet", "Data")

	c.mustRun("export", "-sheet", "Data", c.path("out.csv"))
	data, err := os.ReadFile(c.path("out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1,2\n3,\n", string(data))

	c.mustRun("export", "-sheet", "Data", c.path("out.xlsx"))
	c.mustRun("import", "-sheet", "Copy", c.path("out.xlsx"))
	c.mustRun("calc", "-sheet", "Copy")
	assert.Equal(t, "3\n", c.mustRun("get", "-sheet", "Copy", "A2"))

	err = c.run("export", "-sheet", "Data", c.path("out.txt"))
	assertAppError(t, InvalidArgument, err)
}

func TestCLIPaste(t *testing.T) {
	c := newCLI(t)
	c.mustRun("create", "Sheet1")
	c.mustRun("set", "-sheet", "Sheet1", "A1", "5")
	c.mustRun("set", "-sheet", "Sheet1", "B1", "=A1 * 2")

	c.mustRun("paste", "-sheet", "Sheet1", "-from", "A1:B1", "-to", "A2:B3")
	c.mustRun("calc", "-sheet", "Sheet1")
	assert.Equal(t, "10\n", c.mustRun("get", "-sheet", "Sheet1", "B3"))

	c.mustRun("paste", "-sheet", "Sheet1", "-from", "A1", "-to", "D1", "-cut")
	c.mustRun("calc", "-sheet", "Sheet1")
	assert.Equal(t, "10\n", c.mustRun("get", "-sheet", "Sheet1", "B1"))
	assert.Equal(t, "\n", c.mustRun("get", "-sheet", "Sheet1", "A1"))
}

func TestCLIUsage(t *testing.T) {
	c := newCLI(t)
	assert.ErrorIs(t, c.run(), errReported)
	assert.Contains(t, c.stderr.String(), "usage: spreadsheet")

	assert.Contains(t, c.mustRun("help"), "commands:")

	assert.ErrorIs(t, c.run("frobnicate"), errReported)
	assert.Contains(t, c.stderr.String(), `unknown command "frobnicate"`)

	assert.ErrorIs(t, c.run("set", "-sheet", "Sheet1", "A1"), errReported)
	assert.Contains(t, c.stderr.String(), "usage: spreadsheet set")

	assert.NoError(t, c.run("calc", "-h"))
	assert.ErrorIs(t, c.run("calc", "-nope"), errReported)
}

func TestCLIErrors(t *testing.T) {
	c := newCLI(t)
	assertAppError(t, NotFound, c.run("get", "-sheet", "Missing", "A1"))

	c.mustRun("create", "Sheet1")
	assertAppError(t, AlreadyExists, c.run("create", "Sheet1"))

	c.vars["SPREADSHEET_WORKERS"] = "lots"
	assert.ErrorContains(t, c.run("list"), "SPREADSHEET_WORKERS")
}

func TestCLIWorkerNeedsTokenHash(t *testing.T) {
	c := newCLI(t)
	assert.ErrorContains(t, c.run("worker"), "SPREADSHEET_TOKEN_HASH")
}

func TestCLIJail(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("jail", c.path("jail"))
	assert.Contains(t, out, "prepared")
	_, err := os.Stat(filepath.Join(c.path("jail"), "etc", "resolv.conf"))
	assert.NoError(t, err)
}
