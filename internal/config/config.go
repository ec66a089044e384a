/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the per-user YAML configuration of the material library
// tool and resolves the location of the preferences document.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Library       LibraryConfig   `yaml:"library"`
	Thumbnails    ThumbnailConfig `yaml:"thumbnails"`
	Logging       LoggingConfig   `yaml:"logging"`
}

type LibraryConfig struct {
	// Dir overrides the directory stored in the preferences document.
	Dir string `yaml:"dir"`
}

type ThumbnailConfig struct {
	Workers         int   `yaml:"workers"`
	Queue           int   `yaml:"queue"`
	RenderTimeoutMs int   `yaml:"render_timeout_ms"`
	CacheMaxBytes   int64 `yaml:"cache_max_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Thumbnails:    ThumbnailConfig{Workers: 2, Queue: 256, RenderTimeoutMs: 60000, CacheMaxBytes: 64 << 20},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// RenderTimeout returns the render wait bound.
func (t ThumbnailConfig) RenderTimeout() time.Duration {
	if t.RenderTimeoutMs <= 0 {
		return time.Duration(Defaults().Thumbnails.RenderTimeoutMs) * time.Millisecond
	}
	return time.Duration(t.RenderTimeoutMs) * time.Millisecond
}

// Env var names used as overrides.
const (
	EnvConfigDir       = "MLB_CONFIG_DIR"
	EnvLibraryDir      = "MLB_LIBRARY_DIR"
	EnvThumbWorkers    = "MLB_THUMB_WORKERS"
	EnvRenderTimeoutMs = "MLB_RENDER_TIMEOUT_MS"
	EnvThumbCacheBytes = "MLB_THUMB_CACHE_MAX_BYTES"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "MLB_LOG_LEVEL"
	EnvLogFormat = "MLB_LOG_FORMAT"
	EnvLogSource = "MLB_LOG_SOURCE"
	EnvLogFile   = "MLB_LOG_FILE"
)

// Dir returns the per-user configuration directory. MLB_CONFIG_DIR wins.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "MatLib")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "MatLib")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "matlib")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "matlib")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// PrefsPath returns the path of the preferences document.
func PrefsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prefs.json"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, err
		}
		mergeInto(&cfg, &fileCfg)
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
	if v := strings.TrimSpace(src.Library.Dir); v != "" {
		dst.Library.Dir = v
	}
	if src.Thumbnails.Workers > 0 {
		dst.Thumbnails.Workers = src.Thumbnails.Workers
	}
	if src.Thumbnails.Queue > 0 {
		dst.Thumbnails.Queue = src.Thumbnails.Queue
	}
	if src.Thumbnails.RenderTimeoutMs > 0 {
		dst.Thumbnails.RenderTimeoutMs = src.Thumbnails.RenderTimeoutMs
	}
	if src.Thumbnails.CacheMaxBytes > 0 {
		dst.Thumbnails.CacheMaxBytes = src.Thumbnails.CacheMaxBytes
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

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvLibraryDir)); v != "" {
		cfg.Library.Dir = v
	}
	if n, ok := envInt(EnvThumbWorkers); ok {
		cfg.Thumbnails.Workers = n
	}
	if n, ok := envInt(EnvRenderTimeoutMs); ok {
		cfg.Thumbnails.RenderTimeoutMs = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvThumbCacheBytes)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Thumbnails.CacheMaxBytes = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var envKeys = map[string]string{
	"library.dir":                  EnvLibraryDir,
	"thumbnails.workers":           EnvThumbWorkers,
	"thumbnails.render_timeout_ms": EnvRenderTimeoutMs,
	"thumbnails.cache_max_bytes":   EnvThumbCacheBytes,
	"logging.level":                EnvLogLevel,
	"logging.format":               EnvLogFormat,
	"logging.source":               EnvLogSource,
	"logging.file":                 EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
