package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/mmpack/pkg/archive"
	"github.com/ngld/mmpack/pkg/lifecycle"
	"github.com/ngld/mmpack/pkg/shell"
)

func TestSplitOptions(t *testing.T) {
	rest, options := splitOptions([]string{"test", "flavour=debug", "=odd", "empty="})
	assert.Equal(t, []string{"test", "=odd"}, rest)
	assert.Equal(t, map[string]string{"flavour": "debug", "empty": ""}, options)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(eris.New("config broken")))
	assert.Equal(t, 1, exitCode(&lifecycle.StepError{Hook: lifecycle.HookBuild, Err: eris.New("boom")}))
	assert.Equal(t, 4, exitCode(&lifecycle.StepError{
		Hook: lifecycle.HookTest,
		Err:  &shell.ExitError{Status: 4, Command: "python3 -m pytest"},
	}))
}

func TestConsoleWriter(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(NewConsoleWriter(&out))

	logger.Info().Str("hook", "build").Bool("command", true).Msg("dh_auto_build")
	logger.Warn().Msg("careful")

	assert.Contains(t, out.String(), "build: ")
	assert.Contains(t, out.String(), "dh_auto_build")
	assert.Contains(t, out.String(), "careful")
}

func TestConsoleWriterRejectsGarbage(t *testing.T) {
	_, err := NewConsoleWriter(&bytes.Buffer{}).Write([]byte("not json"))
	assert.Error(t, err)
}

func runRoot(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestHelperCommands(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tests")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "unit"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "unit", "test_a.py"), []byte("pass\n"), 0644))

	require.NoError(t, runRoot(t, "mkdir", "-p", filepath.Join(root, "build", "lib")))
	assert.DirExists(t, filepath.Join(root, "build", "lib"))

	require.NoError(t, runRoot(t, "cp", "-r", src, filepath.Join(root, "build")))
	assert.FileExists(t, filepath.Join(root, "build", "tests", "unit", "test_a.py"))

	require.NoError(t, runRoot(t, "mv", filepath.Join(root, "build", "tests"), filepath.Join(root, "moved")))
	assert.FileExists(t, filepath.Join(root, "moved", "unit", "test_a.py"))

	require.NoError(t, runRoot(t, "rm", "-rf", filepath.Join(root, "build"), filepath.Join(root, "missing")))
	assert.NoDirExists(t, filepath.Join(root, "build"))
}

func TestPackCommand(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "jobs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "balancer.py"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "jobs", "job.py"), []byte("y"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "jobs", "notes.txt"), []byte("z"), 0644))

	dest := filepath.Join(root, "out.tar.xz")
	t.Setenv("CI", "true")
	require.NoError(t, runRoot(t, "pack", dest, src))

	entries, err := archive.List(dest)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "balancer.py", entries[0].Name)
	assert.Equal(t, "jobs/job.py", entries[1].Name)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"clean", "build", "install", "binary", "hook", "pack", "rules", "rm", "mkdir", "mv", "cp"} {
		found, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, found.Name())
	}
}
