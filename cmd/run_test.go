package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cedar-tools/scriptrun/internal/inventory"
)

func TestExitStatus(t *testing.T) {
	assert.Equal(t, 0, exitStatus(0))
	assert.Equal(t, 3, exitStatus(3))
	assert.Equal(t, 143, exitStatus(-15))
	assert.Equal(t, 137, exitStatus(-9))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, float64(3), parseValue("3"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, []any{"a", "b"}, parseValue(`["a","b"]`))
	assert.Equal(t, "Ada", parseValue("Ada"))
}

func TestLoadScriptConfig(t *testing.T) {
	root := t.TempDir()
	scripts := filepath.Join(root, "scripts")
	configs := filepath.Join(root, "configs")

	require.NoError(t, os.MkdirAll(filepath.Join(scripts, "hello"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "hello", "main.sh"), []byte("exit 0\n"), 0o644))
	require.NoError(t, os.MkdirAll(configs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configs, "hello.json"), []byte(`{"name":"saved","count":1}`), 0o644))

	file := filepath.Join(root, "override.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"file"}`), 0o644))

	inv, err := inventory.New(inventory.Params{ScriptsDir: scripts, ConfigsDir: configs, Log: zap.NewNop()})
	require.NoError(t, err)

	cfg, err := loadScriptConfig(inv, "hello", file, []string{"count=2", "tag=x"})
	require.NoError(t, err)

	assert.Equal(t, "file", cfg["name"])
	assert.Equal(t, float64(2), cfg["count"])
	assert.Equal(t, "x", cfg["tag"])

	_, err = loadScriptConfig(inv, "hello", "", []string{"novalue"})
	assert.Error(t, err)

	_, err = loadScriptConfig(inv, "missing", "", nil)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}
