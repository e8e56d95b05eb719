package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rendis/diagrama/internal/connector"
	"github.com/rendis/diagrama/internal/history"
	"github.com/rendis/diagrama/internal/scheduler"
	"github.com/rendis/diagrama/internal/session"
)

// Config holds all diagrama configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	LibraryPath     string  `json:"library_path"`
	LogLevel        string  `json:"log_level"`
	HistoryCap      int     `json:"history_cap"`
	Autosave        string  `json:"autosave"`
	KeepRevisions   int     `json:"keep_revisions"`
	SceneWidth      float64 `json:"scene_width"`
	SceneHeight     float64 `json:"scene_height"`
	HandleRadius    float64 `json:"handle_radius"`
	SystemClipboard bool    `json:"system_clipboard"`
}

func defaultConfig() Config {
	return Config{
		LibraryPath:   filepath.Join(diagramaDir(), "library.db"),
		LogLevel:      "info",
		HistoryCap:    history.DefaultCapacity,
		Autosave:      scheduler.DefaultSpec,
		KeepRevisions: 20,
		SceneWidth:    session.DefaultSceneWidth,
		SceneHeight:   session.DefaultSceneHeight,
		HandleRadius:  connector.DefaultHandleRadius,
	}
}

func diagramaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".diagrama"
	}
	return filepath.Join(home, ".diagrama")
}

func settingsPath() string {
	return filepath.Join(diagramaDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Env vars override.
	if v := os.Getenv("DIAGRAMA_LIBRARY_PATH"); v != "" {
		cfg.LibraryPath = v
	}
	if v := os.Getenv("DIAGRAMA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DIAGRAMA_HISTORY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryCap = n
		}
	}
	if v, ok := os.LookupEnv("DIAGRAMA_AUTOSAVE"); ok {
		cfg.Autosave = v
	}
	if v := os.Getenv("DIAGRAMA_SYSTEM_CLIPBOARD"); v != "" {
		cfg.SystemClipboard = v == "true" || v == "1"
	}

	return cfg
}

// sessionConfig maps the tunables onto the session. Zero values keep the
// session defaults.
func (c Config) sessionConfig() session.Config {
	return session.Config{
		SceneWidth:      c.SceneWidth,
		SceneHeight:     c.SceneHeight,
		HistoryCapacity: c.HistoryCap,
		HandleRadius:    c.HandleRadius,
	}
}
