package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 0.5, c.Engine.Lambda)
	assert.True(t, c.Engine.Incremental)

	ec := c.ConnectivityConfig()
	assert.Equal(t, c.Engine.Lambda, ec.Lambda)
	assert.Equal(t, c.Engine.IncrementalLimit, ec.IncrementalLimit)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative lambda": func(c *Config) { c.Engine.Lambda = -1 },
		"negative cell":   func(c *Config) { c.Engine.GridCellSize = -1 },
		"negative limit":  func(c *Config) { c.Engine.IncrementalLimit = -1 },
		"negative cache":  func(c *Config) { c.Checks.CacheSize = -1 },
		"bad level":       func(c *Config) { c.Log.Level = "loud" },
		"bad format":      func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		c := DefaultConfig()
		mutate(c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestMergeFileKeepsAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otn.yaml")
	write(t, path, "engine:\n  lambda: 0\n  incremental: false\nlog:\n  format: json\n")

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Engine.Lambda, "explicit zero wins")
	assert.False(t, c.Engine.Incremental)
	assert.Equal(t, 16.0, c.Engine.GridCellSize)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "info", c.Log.Level)

	write(t, path, "engine: [")
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	c := DefaultConfig()
	c.Merge(&Config{
		Engine: EngineConfig{Lambda: 0.2},
		Checks: ChecksConfig{Disabled: []string{"open_port"}},
		Review: ReviewConfig{StateFile: "state.yaml"},
	})
	assert.Equal(t, 0.2, c.Engine.Lambda)
	assert.Equal(t, 16.0, c.Engine.GridCellSize)
	assert.Equal(t, []string{"open_port"}, c.Checks.Disabled)
	assert.Equal(t, "state.yaml", c.StatePath("board.otl"))
	c.Merge(nil)
}

func TestStatePath(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, filepath.Join("boards", "cpu.review.yaml"), c.StatePath(filepath.Join("boards", "cpu.otl")))
	assert.Equal(t, "b.review.yaml", c.StatePath("b.kicad_pcb"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c := DefaultConfig()
	c.Checks.RulesFile = "house.rules"
	c.Engine.Incremental = false
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoaderPrecedence(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	work := filepath.Join(project, "boards", "cpu")
	require.NoError(t, os.MkdirAll(work, 0o755))

	write(t, filepath.Join(home, UserConfigDir, UserConfigFile), "engine:\n  lambda: 0.1\n  grid_cell_size: 8\nlog:\n  level: debug\n")
	write(t, filepath.Join(project, ProjectConfigFile), "engine:\n  lambda: 0.2\nchecks:\n  rules_file: house.rules\n")
	write(t, filepath.Join(project, ".env"), "OTN_CACHE_SIZE=12\nOTN_LOG_LEVEL=warn\n")

	env := map[string]string{"OTN_LOG_LEVEL": "error", "OTN_DISABLED_CHECKS": "open_port, net.not_feeded"}
	l := NewLoader(nil)
	l.HomeDir = home
	l.WorkDir = work
	l.LookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	c, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, 8.0, c.Engine.GridCellSize, "user file")
	assert.Equal(t, 0.2, c.Engine.Lambda, "project file beats user file")
	assert.Equal(t, "house.rules", c.Checks.RulesFile)
	assert.Equal(t, 12, c.Checks.CacheSize, ".env")
	assert.Equal(t, "error", c.Log.Level, "process env beats .env")
	assert.Equal(t, []string{"open_port", "net.not_feeded"}, c.Checks.Disabled)
}

func TestLoaderExplicitFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(nil)
	l.HomeDir = dir
	l.WorkDir = dir
	l.LookupEnv = noEnv

	_, err := l.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit config must exist")

	path := filepath.Join(dir, "custom.yaml")
	write(t, path, "engine:\n  incremental_limit: 10\n")
	c, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Engine.IncrementalLimit)
}

func TestLoaderRejectsBadEnv(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(nil)
	l.HomeDir = dir
	l.WorkDir = dir
	l.LookupEnv = func(k string) (string, bool) {
		if k == "OTN_LAMBDA" {
			return "wide", true
		}
		return "", false
	}
	_, err := l.Load("")
	assert.Error(t, err)
}

func TestEnsureUserConfig(t *testing.T) {
	l := NewLoader(nil)
	l.HomeDir = t.TempDir()
	path, err := l.EnsureUserConfig()
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := l.EnsureUserConfig()
	require.NoError(t, err)
	assert.Equal(t, path, again)
}
