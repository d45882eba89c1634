/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

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

type EditorConfig struct {
	Supersample     int     `yaml:"supersample"`
	MinShapeSize    float64 `yaml:"min_shape_size"`
	DoubleTapMs     int     `yaml:"double_tap_ms"`
	StrokeWidth     float64 `yaml:"stroke_width"`
	HistoryDepth    int     `yaml:"history_depth"`
	HistoryMaxBytes int     `yaml:"history_max_bytes"`
	// SnapThreshold enables drag snapping within this many design units; 0 disables it.
	SnapThreshold float64 `yaml:"snap_threshold"`
}

type StorageConfig struct {
	Type   string `yaml:"type"` // memory | filesystem | sqlite | postgres | s3 | remote
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint points the S3 client at an S3-compatible service (minio, localstack).
	Endpoint string `yaml:"endpoint"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb"`
}

type CatalogConfig struct {
	Path         string `yaml:"path"`
	TemplatesDir string `yaml:"templates_dir"`
}

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Editor        EditorConfig  `yaml:"editor"`
	Storage       StorageConfig `yaml:"storage"`
	Server        ServerConfig  `yaml:"server"`
	Catalog       CatalogConfig `yaml:"catalog"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Editor: EditorConfig{
			Supersample:     4,
			MinShapeSize:    5,
			DoubleTapMs:     500,
			StrokeWidth:     5,
			HistoryDepth:    100,
			HistoryMaxBytes: 64 * 1024 * 1024,
		},
		Storage: StorageConfig{Type: "filesystem", Path: "./data", DSN: "caseforge.db"},
		Server:  ServerConfig{Addr: ":8080", AllowedOrigins: []string{"https://*", "http://*"}, MaxUploadMB: 32},
		Catalog: CatalogConfig{},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, TLSInsecure: false},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvStorageType     = "CASEFORGE_STORAGE_TYPE"
	EnvStoragePath     = "CASEFORGE_STORAGE_PATH"
	EnvStorageDSN      = "CASEFORGE_STORAGE_DSN"
	EnvStorageBucket   = "CASEFORGE_S3_BUCKET"
	EnvStorageRegion   = "CASEFORGE_S3_REGION"
	EnvStorageEndpoint = "CASEFORGE_S3_ENDPOINT"
	EnvServerAddr      = "CASEFORGE_ADDR"
	EnvCatalogPath     = "CASEFORGE_CATALOG"
	EnvTemplatesDir    = "CASEFORGE_TEMPLATES_DIR"
	EnvSupersample     = "CASEFORGE_SUPERSAMPLE"
	EnvBackendURL      = "CASEFORGE_BACKEND_URL"
	EnvBackendTimeout  = "CASEFORGE_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec = "CASEFORGE_TLS_INSECURE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "CASEFORGE_LOG_LEVEL"
	EnvLogFormat = "CASEFORGE_LOG_FORMAT"
	EnvLogSource = "CASEFORGE_LOG_SOURCE"
	EnvLogFile   = "CASEFORGE_LOG_FILE"
	// EnvConfigFile points Load at an explicit config file instead of ConfigPath.
	EnvConfigFile = "CASEFORGE_CONFIG"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "CaseForge")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "CaseForge")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "caseforge")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
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
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// editor
	if src.Editor.Supersample > 0 {
		dst.Editor.Supersample = src.Editor.Supersample
	}
	if src.Editor.SnapThreshold > 0 {
		dst.Editor.SnapThreshold = src.Editor.SnapThreshold
	}
	if src.Editor.MinShapeSize > 0 {
		dst.Editor.MinShapeSize = src.Editor.MinShapeSize
	}
	if src.Editor.DoubleTapMs > 0 {
		dst.Editor.DoubleTapMs = src.Editor.DoubleTapMs
	}
	if src.Editor.StrokeWidth > 0 {
		dst.Editor.StrokeWidth = src.Editor.StrokeWidth
	}
	if src.Editor.HistoryDepth > 0 {
		dst.Editor.HistoryDepth = src.Editor.HistoryDepth
	}
	if src.Editor.HistoryMaxBytes > 0 {
		dst.Editor.HistoryMaxBytes = src.Editor.HistoryMaxBytes
	}
	// storage
	if t := strings.TrimSpace(src.Storage.Type); t != "" {
		dst.Storage.Type = strings.ToLower(t)
	}
	if src.Storage.Path != "" {
		dst.Storage.Path = src.Storage.Path
	}
	if src.Storage.DSN != "" {
		dst.Storage.DSN = src.Storage.DSN
	}
	if src.Storage.Bucket != "" {
		dst.Storage.Bucket = src.Storage.Bucket
	}
	if src.Storage.Prefix != "" {
		dst.Storage.Prefix = src.Storage.Prefix
	}
	if src.Storage.Region != "" {
		dst.Storage.Region = src.Storage.Region
	}
	if src.Storage.Endpoint != "" {
		dst.Storage.Endpoint = src.Storage.Endpoint
	}
	// server
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = append([]string(nil), src.Server.AllowedOrigins...)
	}
	if src.Server.MaxUploadMB > 0 {
		dst.Server.MaxUploadMB = src.Server.MaxUploadMB
	}
	// catalog
	if src.Catalog.Path != "" {
		dst.Catalog.Path = src.Catalog.Path
	}
	if src.Catalog.TemplatesDir != "" {
		dst.Catalog.TemplatesDir = src.Catalog.TemplatesDir
	}
	// backend
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
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
	if v := strings.TrimSpace(os.Getenv(EnvStorageType)); v != "" {
		cfg.Storage.Type = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoragePath)); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageBucket)); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageRegion)); v != "" {
		cfg.Storage.Region = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageEndpoint)); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCatalogPath)); v != "" {
		cfg.Catalog.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTemplatesDir)); v != "" {
		cfg.Catalog.TemplatesDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSupersample)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Editor.Supersample = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeout)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTLSInsec)); v != "" {
		cfg.Backend.TLSInsecure = truthy(v)
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

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

var envKeys = map[string]string{
	"storage.type":       EnvStorageType,
	"storage.path":       EnvStoragePath,
	"storage.dsn":        EnvStorageDSN,
	"storage.bucket":     EnvStorageBucket,
	"storage.region":     EnvStorageRegion,
	"storage.endpoint":   EnvStorageEndpoint,
	"server.addr":        EnvServerAddr,
	"catalog.path":       EnvCatalogPath,
	"catalog.templates":  EnvTemplatesDir,
	"editor.supersample": EnvSupersample,
	"backend.base_url":   EnvBackendURL,
	"backend.timeout_ms": EnvBackendTimeout,
	"backend.tls_insec":  EnvBackendTLSInsec,
	"logging.level":      EnvLogLevel,
	"logging.format":     EnvLogFormat,
	"logging.source":     EnvLogSource,
	"logging.file":       EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok {
		return "", false
	}
	if os.Getenv(name) != "" {
		return name, true
	}
	return "", false
}

// EffectiveTimeout returns the backend timeout, falling back to the default for non-positive values.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// DoubleTapWindow returns the tap gap under which two taps count as a double tap.
func (e EditorConfig) DoubleTapWindow() time.Duration {
	if e.DoubleTapMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(e.DoubleTapMs) * time.Millisecond
}
