package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all ceflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	SweepSchedule string `json:"sweep_schedule"`
	CheckpointTTL string `json:"checkpoint_ttl"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(ceflowDir(), "ceflow.db"),
		LogLevel:      "info",
		SweepSchedule: "0 * * * *",
		CheckpointTTL: "168h",
	}
}

func ceflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ceflow"
	}
	return filepath.Join(home, ".ceflow")
}

func settingsPath() string {
	return filepath.Join(ceflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CEFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CEFLOW_SWEEP_SCHEDULE"); v != "" {
		cfg.SweepSchedule = v
	}
	if v := os.Getenv("CEFLOW_CHECKPOINT_TTL"); v != "" {
		cfg.CheckpointTTL = v
	}

	return cfg
}

func (c Config) checkpointTTL() time.Duration {
	d, err := time.ParseDuration(c.CheckpointTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}
