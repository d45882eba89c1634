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
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points Load at a temp config file and an in-memory keyring.
func isolate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigFile, path)
	restore := SetTokenStore(NewMemoryTokenStore())
	t.Cleanup(restore)
	return path
}

func TestDefaultsWhenNoFile(t *testing.T) {
	isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected empty token, got %q", tok)
	}
	if cfg.Editor.Supersample != 4 || cfg.Editor.MinShapeSize != 5 || cfg.Editor.DoubleTapMs != 500 {
		t.Fatalf("unexpected editor defaults: %#v", cfg.Editor)
	}
	if cfg.Storage.Type != "filesystem" {
		t.Fatalf("storage type = %q, want filesystem", cfg.Storage.Type)
	}
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
	if name, ok := EnvOverrideFor("backend.base_url"); !ok || name != EnvBackendURL {
		t.Fatalf("EnvOverrideFor mismatch: %q %v", name, ok)
	}
}

func TestEnvOverridesStorage(t *testing.T) {
	isolate(t)
	t.Setenv(EnvStorageType, "SQLite")
	t.Setenv(EnvStorageDSN, "/tmp/designs.db")
	t.Setenv(EnvSupersample, "2")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.DSN != "/tmp/designs.db" {
		t.Fatalf("storage overrides not applied: %#v", cfg.Storage)
	}
	if cfg.Editor.Supersample != 2 {
		t.Fatalf("supersample = %d, want 2", cfg.Editor.Supersample)
	}
}

func TestInvalidSupersampleIgnored(t *testing.T) {
	isolate(t)
	t.Setenv(EnvSupersample, "zero")
	cfg, _, _ := Load()
	if cfg.Editor.Supersample != 4 {
		t.Fatalf("invalid override should keep default, got %d", cfg.Editor.Supersample)
	}
}

func TestMergeIncludesEditorAndServer(t *testing.T) {
	dst := Defaults()
	src := AppConfig{
		Editor: EditorConfig{MinShapeSize: 8, DoubleTapMs: 300},
		Server: ServerConfig{Addr: ":9090", AllowedOrigins: []string{"https://shop.example"}},
	}
	mergeInto(&dst, &src)
	if dst.Editor.MinShapeSize != 8 || dst.Editor.DoubleTapMs != 300 || dst.Editor.Supersample != 4 {
		t.Fatalf("editor not merged: %#v", dst.Editor)
	}
	if dst.Server.Addr != ":9090" || len(dst.Server.AllowedOrigins) != 1 {
		t.Fatalf("server not merged: %#v", dst.Server)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/caseforge.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/caseforge.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/caseforge.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/caseforge.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestSaveAndLoadRoundTripWithToken(t *testing.T) {
	path := isolate(t)
	cfg := Defaults()
	cfg.Storage.Type = "s3"
	cfg.Storage.Bucket = "designs"
	if err := Save(cfg, "secret-token"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Storage.Type != "s3" || got.Storage.Bucket != "designs" {
		t.Fatalf("storage not persisted: %#v", got.Storage)
	}
	if tok != "secret-token" {
		t.Fatalf("token = %q, want secret-token", tok)
	}
	if err := ClearBackendToken(); err != nil {
		t.Fatalf("ClearBackendToken: %v", err)
	}
	if _, err := BackendToken(); err != ErrTokenNotFound {
		t.Fatalf("expected ErrTokenNotFound after clear, got %v", err)
	}
}

func TestDurations(t *testing.T) {
	if d := (BackendConfig{}).EffectiveTimeout(); d != 15*time.Second {
		t.Fatalf("EffectiveTimeout default = %v", d)
	}
	if d := (EditorConfig{DoubleTapMs: 250}).DoubleTapWindow(); d != 250*time.Millisecond {
		t.Fatalf("DoubleTapWindow = %v", d)
	}
	if d := (EditorConfig{}).DoubleTapWindow(); d != 500*time.Millisecond {
		t.Fatalf("DoubleTapWindow default = %v", d)
	}
}
