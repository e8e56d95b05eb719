package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := loadConfig()
	assert.Equal(t, 50, cfg.HistoryCap)
	assert.Equal(t, "@every 5m", cfg.Autosave)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 6.0, cfg.HandleRadius)
	assert.Equal(t, filepath.Join(diagramaDir(), "library.db"), cfg.LibraryPath)
	assert.False(t, cfg.SystemClipboard)
}

func TestLoadConfig_Layers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".diagrama"), 0o700))
	require.NoError(t, os.WriteFile(settingsPath(), []byte(`{
		"history_cap": 20,
		"log_level": "debug",
		"scene_width": 800
	}`), 0o644))

	cfg := loadConfig()
	assert.Equal(t, 20, cfg.HistoryCap)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 800.0, cfg.SceneWidth)

	t.Setenv("DIAGRAMA_HISTORY_CAP", "5")
	t.Setenv("DIAGRAMA_AUTOSAVE", "")
	t.Setenv("DIAGRAMA_SYSTEM_CLIPBOARD", "1")
	t.Setenv("DIAGRAMA_LIBRARY_PATH", "/tmp/lib.db")

	cfg = loadConfig()
	assert.Equal(t, 5, cfg.HistoryCap)
	assert.Equal(t, "", cfg.Autosave, "an explicit empty value disables autosave")
	assert.True(t, cfg.SystemClipboard)
	assert.Equal(t, "/tmp/lib.db", cfg.LibraryPath)

	sc := cfg.sessionConfig()
	assert.Equal(t, 5, sc.HistoryCapacity)
	assert.Equal(t, 800.0, sc.SceneWidth)
}

func TestLoadConfig_BadSettingsIgnored(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".diagrama"), 0o700))
	require.NoError(t, os.WriteFile(settingsPath(), []byte("{not json"), 0o644))

	assert.Equal(t, 50, loadConfig().HistoryCap)
}

func TestSplitLeading(t *testing.T) {
	pos, rest := splitLeading([]string{"a.json", "--format", "svg"})
	assert.Equal(t, []string{"a.json"}, pos)
	assert.Equal(t, []string{"--format", "svg"}, rest)

	pos, rest = splitLeading([]string{"--format", "svg", "a.json"})
	assert.Empty(t, pos)
	assert.Equal(t, []string{"--format", "svg", "a.json"}, rest)
}
