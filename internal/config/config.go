/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the user configuration of gofountain.
// The YAML file lives in the user scope, environment variables are read-only
// overrides, and the backend token is kept in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"gofountain/internal/render"
)

// config_version: bump when the structure changes in a backward-incompatible way.

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	ListenAddr  string `yaml:"listen_addr"`  // address of "gofountain serve"
	DatabaseURL string `yaml:"database_url"` // Postgres DSN; empty means in-memory store
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
	EnableServer   bool `yaml:"enable_server"`
}

// RenderConfig holds the HTML defaults used by the html, export and serve commands.
type RenderConfig struct {
	Theme            string `yaml:"theme"`
	IncludeCSS       bool   `yaml:"include_css"`
	IncludeTitlePage bool   `yaml:"include_title_page"`
	IncludeBoneyard  bool   `yaml:"include_boneyard"`
	IncludeNotes     bool   `yaml:"include_notes"`
	SceneAnchors     bool   `yaml:"scene_anchors"`
}

type LibraryConfig struct {
	Root         string `yaml:"root"`
	SnapshotKeep int    `yaml:"snapshot_keep"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Render        RenderConfig  `yaml:"render"`
	Library       LibraryConfig `yaml:"library"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	h := render.DefaultHTMLOptions()
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, EnableServer: false},
		Render: RenderConfig{
			Theme:            h.Theme,
			IncludeCSS:       h.IncludeCSS,
			IncludeTitlePage: h.IncludeTitlePage,
			IncludeBoneyard:  h.IncludeBoneyard,
			IncludeNotes:     h.IncludeNotes,
			SceneAnchors:     h.SceneAnchors,
		},
		Library: LibraryConfig{Root: ".", SnapshotKeep: 20},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, ListenAddr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "GFT_CONFIG"
	EnvBackendURL       = "GFT_BACKEND_URL"
	EnvBackendTimeoutMs = "GFT_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "GFT_TLS_INSECURE"
	EnvListenAddr       = "GFT_LISTEN_ADDR"
	EnvDatabaseURL      = "GFT_DATABASE_URL"
	EnvTelemetryOptIn   = "GFT_TELEMETRY_OPT_IN"
	EnvEnableServer     = "GFT_ENABLE_SERVER"
	EnvTheme            = "GFT_THEME"
	EnvLibraryRoot      = "GFT_LIBRARY"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GFT_LOG_LEVEL"
	EnvLogFormat = "GFT_LOG_FORMAT"
	EnvLogSource = "GFT_LOG_SOURCE"
	EnvLogFile   = "GFT_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "GoFountain"
	keyringToken   = "backend_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. GFT_CONFIG overrides it.
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
		base = filepath.Join(base, "GoFountain")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoFountain")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "gofountain")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "gofountain")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
// A missing file or keyring entry is not an error; a malformed file is.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		// unmarshal over defaults so keys missing from the file keep their default
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	tok, err := tokenStore.Get(keyringService, keyringToken)
	if err != nil {
		tok = ""
	}
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

// ClearToken removes the backend token from the OS keyring.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.EnableServer = src.General.EnableServer

	if t := strings.ToLower(strings.TrimSpace(src.Render.Theme)); t != "" {
		dst.Render.Theme = t
	}
	dst.Render.IncludeCSS = src.Render.IncludeCSS
	dst.Render.IncludeTitlePage = src.Render.IncludeTitlePage
	dst.Render.IncludeBoneyard = src.Render.IncludeBoneyard
	dst.Render.IncludeNotes = src.Render.IncludeNotes
	dst.Render.SceneAnchors = src.Render.SceneAnchors

	if strings.TrimSpace(src.Library.Root) != "" {
		dst.Library.Root = strings.TrimSpace(src.Library.Root)
	}
	if src.Library.SnapshotKeep > 0 {
		dst.Library.SnapshotKeep = src.Library.SnapshotKeep
	}

	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Backend.ListenAddr != "" {
		dst.Backend.ListenAddr = src.Backend.ListenAddr
	}
	if src.Backend.DatabaseURL != "" {
		dst.Backend.DatabaseURL = src.Backend.DatabaseURL
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

func parseBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTLSInsec)); v != "" {
		cfg.Backend.TLSInsecure = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvListenAddr)); v != "" {
		cfg.Backend.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Backend.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnableServer)); v != "" {
		cfg.General.EnableServer = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTheme)); v != "" {
		cfg.Render.Theme = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLibraryRoot)); v != "" {
		cfg.Library.Root = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.tls_insecure":     EnvBackendTLSInsec,
	"backend.listen_addr":      EnvListenAddr,
	"backend.database_url":     EnvDatabaseURL,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"general.enable_server":    EnvEnableServer,
	"render.theme":             EnvTheme,
	"library.root":             EnvLibraryRoot,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// EffectiveTimeout returns the backend timeout for http.Client, falling back to the default.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	ms := b.TimeoutMs
	if ms <= 0 {
		ms = Defaults().Backend.TimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// HTMLOptions converts the render section into renderer options.
func (r RenderConfig) HTMLOptions() render.HTMLOptions {
	return render.HTMLOptions{
		Theme:            r.Theme,
		IncludeCSS:       r.IncludeCSS,
		IncludeTitlePage: r.IncludeTitlePage,
		IncludeBoneyard:  r.IncludeBoneyard,
		IncludeNotes:     r.IncludeNotes,
		SceneAnchors:     r.SceneAnchors,
	}
}
