package tail_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cedar-tools/scriptrun/internal/execution/tail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeper_PrefixesRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "jobs"), 0o755))

	var lines []string
	s := tail.NewSweeper(root, func(line string) {
		lines = append(lines, line)
	}, zap.NewNop())

	appendFile(t, filepath.Join(root, "app.log"), "archived\n")
	appendFile(t, filepath.Join(root, "jobs", "dedup.log"), "scanning\n\n")

	s.Sweep()
	assert.ElementsMatch(t, []string{"[app.log] archived", "[jobs/dedup.log] scanning"}, lines)

	lines = nil
	s.Sweep()
	assert.Empty(t, lines)
}

func TestSweeper_PrimeSkipsExistingContent(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.log")
	appendFile(t, path, "old\n")

	var lines []string
	s := tail.NewSweeper(root, func(line string) {
		lines = append(lines, line)
	}, zap.NewNop())
	require.NoError(t, s.Prime())

	s.Sweep()
	assert.Empty(t, lines)

	appendFile(t, path, "new\n")
	s.Sweep()
	assert.Equal(t, []string{"[app.log] new"}, lines)
}

func TestSweeper_SkipDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "__pycache__"), 0o755))
	appendFile(t, filepath.Join(root, "__pycache__", "noise.log"), "noise\n")

	var lines []string
	s := tail.NewSweeper(root, func(line string) {
		lines = append(lines, line)
	}, zap.NewNop(), tail.WithSkipDir(func(name string) bool {
		return name == "__pycache__"
	}))

	s.Sweep()
	assert.Empty(t, lines)
}

func TestSweeper_MissingRoot(t *testing.T) {
	s := tail.NewSweeper(filepath.Join(t.TempDir(), "log"), func(string) {
		t.Fatal("unexpected line")
	}, zap.NewNop())

	assert.NoError(t, s.Prime())
	s.Sweep()
}

func TestSweeper_ForgetsRemovedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "run.log")
	appendFile(t, path, "first\n")

	var lines []string
	s := tail.NewSweeper(root, func(line string) {
		lines = append(lines, line)
	}, zap.NewNop())

	s.Sweep()
	require.NoError(t, os.Remove(path))
	s.Sweep()

	appendFile(t, path, "again\n")
	s.Sweep()
	assert.Equal(t, []string{"[run.log] first", "[run.log] again"}, lines)
}
