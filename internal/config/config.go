/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config holds the user-editable settings of the annotate tools.
// Settings live in a YAML file in the user scope; environment variables are read-only overrides.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// config_version: bump when the structure changes in a backward-incompatible way.

type ViewerConfig struct {
	MaxScale        float64 `yaml:"max_scale"`
	HistoryCapacity int     `yaml:"history_capacity"`
	// WheelZoomRate is the exponent applied per accumulated wheel pixel: factor = exp(-delta*rate).
	WheelZoomRate float64 `yaml:"wheel_zoom_rate"`
}

type TagsConfig struct {
	// DefaultColor is given to new tags without a colour; empty cycles the palette.
	DefaultColor string `yaml:"default_color"`
	NeutralColor string `yaml:"neutral_color"`
}

type ExportConfig struct {
	Format string `yaml:"format"` // "csv" | "json"
	OutDir string `yaml:"out_dir"`
}

type JournalConfig struct {
	Enabled  bool `yaml:"enabled"`
	KeepLast int  `yaml:"keep_last"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Viewer        ViewerConfig  `yaml:"viewer"`
	Tags          TagsConfig    `yaml:"tags"`
	Export        ExportConfig  `yaml:"export"`
	Journal       JournalConfig `yaml:"journal"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Viewer:        ViewerConfig{MaxScale: 20, HistoryCapacity: 50, WheelZoomRate: 0.0015},
		Tags:          TagsConfig{NeutralColor: "#ffcc00"},
		Export:        ExportConfig{Format: "csv", OutDir: ""},
		Journal:       JournalConfig{Enabled: true, KeepLast: 20},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath      = "ANN_CONFIG"
	EnvMaxScale        = "ANN_MAX_SCALE"
	EnvHistoryCapacity = "ANN_HISTORY_CAPACITY"
	EnvExportFormat    = "ANN_EXPORT_FORMAT"
	EnvExportOutDir    = "ANN_EXPORT_OUT_DIR"
	EnvJournalEnabled  = "ANN_JOURNAL"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "ANN_LOG_LEVEL"
	EnvLogFormat = "ANN_LOG_FORMAT"
	EnvLogSource = "ANN_LOG_SOURCE"
	EnvLogFile   = "ANN_LOG_FILE"
)

// ConfigPath returns the per-user config file path. ANN_CONFIG takes precedence.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Annotate")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Annotate")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "annotate")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "annotate")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A malformed file is ignored in favour of defaults.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		// Start from defaults so keys absent in the file keep their default values.
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.Viewer.MaxScale >= 1 {
		dst.Viewer.MaxScale = src.Viewer.MaxScale
	}
	if src.Viewer.HistoryCapacity > 0 {
		dst.Viewer.HistoryCapacity = src.Viewer.HistoryCapacity
	}
	if src.Viewer.WheelZoomRate > 0 {
		dst.Viewer.WheelZoomRate = src.Viewer.WheelZoomRate
	}
	if v := strings.TrimSpace(src.Tags.DefaultColor); v != "" {
		dst.Tags.DefaultColor = v
	}
	if v := strings.TrimSpace(src.Tags.NeutralColor); v != "" {
		dst.Tags.NeutralColor = v
	}
	if v := strings.ToLower(strings.TrimSpace(src.Export.Format)); v == "csv" || v == "json" {
		dst.Export.Format = v
	}
	if v := strings.TrimSpace(src.Export.OutDir); v != "" {
		dst.Export.OutDir = v
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Journal.Enabled = src.Journal.Enabled
	if src.Journal.KeepLast > 0 {
		dst.Journal.KeepLast = src.Journal.KeepLast
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvMaxScale)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			cfg.Viewer.MaxScale = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryCapacity)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Viewer.HistoryCapacity = n
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvExportFormat))); v == "csv" || v == "json" {
		cfg.Export.Format = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportOutDir)); v != "" {
		cfg.Export.OutDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournalEnabled)); v != "" {
		cfg.Journal.Enabled = truthy(v)
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"viewer.max_scale":        EnvMaxScale,
	"viewer.history_capacity": EnvHistoryCapacity,
	"export.format":           EnvExportFormat,
	"export.out_dir":          EnvExportOutDir,
	"journal.enabled":         EnvJournalEnabled,
	"logging.level":           EnvLogLevel,
	"logging.format":          EnvLogFormat,
	"logging.source":          EnvLogSource,
	"logging.file":            EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
