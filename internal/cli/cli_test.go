package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"simplic/internal/errs"
	"simplic/internal/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	config   string
	projects string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, "/bin/sh")
}

func newHarnessWith(t *testing.T, interpreter string) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	dir := t.TempDir()
	projects := filepath.Join(dir, "projects")
	config := filepath.Join(dir, "simplic.hcl")
	body := fmt.Sprintf(`projects_root = %q
watch     = false
log_level = "error"

tools {
  interpreter = %q
  packager    = "/nonexistent/packager"
}

jobs {
  grace_period = "200ms"
}
`, projects, interpreter)
	require.NoError(t, os.WriteFile(config, []byte(body), 0644))

	prev := interactive
	interactive = func() bool { return false }
	t.Cleanup(func() { interactive = prev })

	return &harness{config: config, projects: projects}
}

// exec runs the command line and returns stdout, stderr and the error.
func (h *harness) exec(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", h.config, "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func (h *harness) writeEntry(t *testing.T, name, script string) {
	t.Helper()
	path := filepath.Join(h.projects, name, project.EntryFile)
	require.NoError(t, os.WriteFile(path, []byte(script), 0644))
}

func TestProjectNewAndList(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	assert.Contains(t, out, `Created PyToExe project "demo"`)
	assert.FileExists(t, filepath.Join(h.projects, "demo", project.EntryFile))

	out, _, err = h.exec(t, "project", "new", "other", "-t", "KoToApk")
	require.NoError(t, err)
	assert.Contains(t, out, "Building KoToApk projects is not implemented yet")

	out, _, err = h.exec(t, "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "KoToApk")

	out, _, err = h.exec(t, "project", "ls", "-q", "DEM")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
	assert.NotContains(t, out, "other")

	out, _, err = h.exec(t, "project", "list", "--query", "zzz")
	require.NoError(t, err)
	assert.Contains(t, out, "No projects found")
}

func TestProjectNewErrors(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.exec(t, "project", "new")
	assert.ErrorIs(t, err, errNotInteractive)

	_, _, err = h.exec(t, "project", "new", "demo")
	assert.ErrorIs(t, err, errNotInteractive, "type is prompted for when not given")

	_, _, err = h.exec(t, "project", "new", "demo", "--type", "Rust")
	assert.Equal(t, errs.InvalidName, errs.KindOf(err))

	_, _, err = h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	_, _, err = h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	assert.Error(t, err)
}

func TestTreeCommands(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(h.projects, "demo", "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(h.projects, "demo", "lib", "util.py"), nil, 0644))

	out, _, err := h.exec(t, "tree", "ls", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "lib/\n")
	assert.Contains(t, out, "  util.py")
	assert.Contains(t, out, "main.py")

	out, _, err = h.exec(t, "tree", "ls", "demo", "lib")
	require.NoError(t, err)
	assert.Contains(t, out, "util.py")
	assert.NotContains(t, out, "main.py")

	_, _, err = h.exec(t, "tree", "mv", "demo", "lib/util.py", "helpers.py")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(h.projects, "demo", "lib", "helpers.py"))

	_, _, err = h.exec(t, "tree", "mv", "demo", "lib/helpers.py", "../main.py")
	assert.Error(t, err)

	// Without --yes the command must ask, and it cannot without a terminal.
	_, _, err = h.exec(t, "tree", "rm", "demo", "lib")
	assert.ErrorIs(t, err, errNotInteractive)
	assert.DirExists(t, filepath.Join(h.projects, "demo", "lib"))

	out, _, err = h.exec(t, "tree", "rm", "demo", "lib", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted lib")
	assert.NoDirExists(t, filepath.Join(h.projects, "demo", "lib"))
}

func TestRunStreamsOutput(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	h.writeEntry(t, "demo", "echo hello\necho oops >&2\n")

	out, errOut, err := h.exec(t, "run", "demo")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
	assert.Contains(t, errOut, "oops")
}

func TestRunExitStatus(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	h.writeEntry(t, "demo", "exit 3\n")

	_, _, err = h.exec(t, "run", "demo")
	var exitErr *exitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 3, exitErr.code)
}

func TestRunErrors(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.exec(t, "run", "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, _, err = h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(h.projects, "demo", project.EntryFile)))

	_, _, err = h.exec(t, "run", "demo")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestInterpreterMissingOnlyFailsRun(t *testing.T) {
	h := newHarnessWith(t, "definitely-not-an-interpreter-xyz")

	_, _, err := h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)
	out, _, err := h.exec(t, "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
	_, _, err = h.exec(t, "tree", "ls", "demo")
	require.NoError(t, err)

	_, _, err = h.exec(t, "run", "demo")
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
}

func TestBuildToolMissing(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec(t, "project", "new", "demo", "--type", "PyToExe")
	require.NoError(t, err)

	_, _, err = h.exec(t, "build", "demo")
	assert.Equal(t, errs.ToolNotFound, errs.KindOf(err))
	assert.NoDirExists(t, filepath.Join(h.projects, "demo", project.OutputsDir))
}

func TestBuildNotImplemented(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.exec(t, "project", "new", "app", "--type", "PyToApk")
	require.NoError(t, err)

	_, _, err = h.exec(t, "build", "app")
	assert.Equal(t, errs.NotImplemented, errs.KindOf(err))
}

func TestPrinter(t *testing.T) {
	var out, errOut bytes.Buffer
	p := printer{out: &out, errOut: &errOut, noColor: true}

	p.info("plain %d", 1)
	p.success("done")
	p.failure("bad")
	assert.Equal(t, "plain 1\n✓ done\n", out.String())
	assert.Equal(t, "✗ bad\n", errOut.String())
	assert.Equal(t, "x", p.dim("x"))

	out.Reset()
	errOut.Reset()
	quiet := printer{out: &out, errOut: &errOut, quiet: true}
	quiet.info("hidden")
	quiet.warning("hidden")
	quiet.failure("shown")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "shown")

	colored := printer{out: &out}
	assert.Equal(t, colorGray+"x"+colorReset, colored.dim("x"))
}
