package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRemoveTreeTwice(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "build")
	writeFile(t, filepath.Join(dir, "lib", "a.py"), "x")

	require.NoError(t, RemoveTree(dir))
	require.NoError(t, RemoveTree(dir))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debian", "tmp")

	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, IsDir(dir))
}

func TestEnsureDirRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging")
	writeFile(t, path, "not a dir")

	assert.Error(t, EnsureDir(path))
}

func TestCopyTree(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "tests")
	dest := filepath.Join(root, "build", "tests")

	writeFile(t, filepath.Join(src, "test_jobs.py"), "def test_ok(): pass\n")
	writeFile(t, filepath.Join(src, "fixtures", "data.json"), "{}")
	require.NoError(t, os.Chmod(filepath.Join(src, "test_jobs.py"), 0755))

	// leftovers from a previous run have to disappear
	writeFile(t, filepath.Join(dest, "stale.py"), "")

	require.NoError(t, CopyTree(src, dest))

	content, err := os.ReadFile(filepath.Join(dest, "test_jobs.py"))
	require.NoError(t, err)
	assert.Equal(t, "def test_ok(): pass\n", string(content))

	info, err := os.Stat(filepath.Join(dest, "test_jobs.py"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	assert.FileExists(t, filepath.Join(dest, "fixtures", "data.json"))
	assert.NoFileExists(t, filepath.Join(dest, "stale.py"))
}

func TestCopyTreeMissingSource(t *testing.T) {
	root := t.TempDir()
	assert.Error(t, CopyTree(filepath.Join(root, "missing"), filepath.Join(root, "out")))
}

func TestMove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")
	require.NoError(t, os.Mkdir(filepath.Join(root, "out"), 0755))

	require.NoError(t, Move([]string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}, filepath.Join(root, "out")))
	assert.FileExists(t, filepath.Join(root, "out", "a.txt"))
	assert.FileExists(t, filepath.Join(root, "out", "b.txt"))

	require.NoError(t, Move([]string{filepath.Join(root, "out", "a.txt")}, filepath.Join(root, "renamed.txt")))
	assert.FileExists(t, filepath.Join(root, "renamed.txt"))

	assert.Error(t, Move([]string{filepath.Join(root, "renamed.txt"), filepath.Join(root, "out", "b.txt")}, filepath.Join(root, "nope")))
}
