// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management
// for convoke.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.convoke/config.toml
//   - ~/.convoke/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/convoke/internal/model"
	"github.com/jeranaias/convoke/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete convoke configuration.
type Config struct {
	// General settings
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Ollama server configuration
	Ollama OllamaConfig `toml:"ollama" json:"ollama"`

	// Chat defaults applied to new conversations
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Web search provider configuration
	Search SearchConfig `toml:"search" json:"search"`

	// Conversation storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Debug logging configuration
	Debug DebugConfig `toml:"debug" json:"debug"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// OllamaConfig contains Ollama server configuration.
type OllamaConfig struct {
	// BaseURL is the URL of the Ollama server
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is an optional bearer token for proxied Ollama deployments
	APIKey string `toml:"api_key" json:"api_key"`
	// TimeoutSecs is the per-request timeout for non-streaming calls
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// ChatConfig contains default chat settings for new conversations.
type ChatConfig struct {
	// Temperature controls sampling randomness (0.0-2.0)
	Temperature float64 `toml:"temperature" json:"temperature"`
	// MaxTokens caps completion length
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// TopP is the nucleus sampling cutoff (0.0-1.0)
	TopP float64 `toml:"top_p" json:"top_p"`
	// SearchMode is the default search policy: "off", "auto", "smart"
	SearchMode string `toml:"search_mode" json:"search_mode"`
	// SystemPrompt overrides the built-in system prompt when set
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
}

// SearchConfig contains web search provider configuration.
type SearchConfig struct {
	// Endpoint is the search API URL to POST queries to
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// APIKey is the search API bearer credential
	APIKey string `toml:"api_key" json:"api_key"`
	// MaxResults is the default result count (1-10)
	MaxResults int `toml:"max_results" json:"max_results"`
	// TimeoutSecs is the per-search timeout
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RequestsPerSecond caps the upstream call rate
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// StorageConfig contains conversation storage configuration.
type StorageConfig struct {
	// Dir is the conversation storage directory (empty = ~/.convoke/conversations)
	Dir string `toml:"dir" json:"dir"`
	// MaxConversations caps the number of stored conversations
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// DebugConfig contains debug logging configuration.
type DebugConfig struct {
	// Enabled turns on per-turn debug recording
	Enabled bool `toml:"enabled" json:"enabled"`
	// Persist writes debug logs to a local SQLite database
	Persist bool `toml:"persist" json:"persist"`
	// DBPath is the debug database path (empty = ~/.convoke/debug.db)
	DBPath string `toml:"db_path" json:"db_path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowStats displays response statistics after each turn
	ShowStats bool `toml:"show_stats" json:"show_stats"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "llama3.2",

		Ollama: OllamaConfig{
			BaseURL:     "http://127.0.0.1:11434",
			TimeoutSecs: 30,
		},

		Chat: ChatConfig{
			Temperature: 0.7,
			MaxTokens:   2048,
			TopP:        0.9,
			SearchMode:  string(model.SearchModeSmart),
		},

		Search: SearchConfig{
			MaxResults:        8,
			TimeoutSecs:       15,
			RequestsPerSecond: 1,
		},

		Storage: StorageConfig{
			MaxConversations: 100,
		},

		Debug: DebugConfig{
			Enabled: false,
			Persist: false,
		},

		UI: UIConfig{
			Theme:     "dark",
			ShowStats: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the convoke configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".convoke"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err := finishLoad(cfg)
	if err != nil {
		return nil, err
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// finishLoad applies env overrides, defaults, and validation to a loaded
// config.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file. The file is created
// with 0600 permissions since it may hold API keys.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# convoke configuration file\n")
	buf.WriteString("# Generated by convoke - edit with care\n")
	buf.WriteString("\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Ollama URL must parse
	if c.Ollama.BaseURL != "" {
		if u, err := url.Parse(c.Ollama.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "ollama.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Ollama.BaseURL),
			})
		}
	}
	if c.Ollama.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "ollama.timeout_secs",
			Message: "must be non-negative",
		})
	}

	// Chat sampling parameters
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be between 0.0 and 2.0, got %g", c.Chat.Temperature),
		})
	}
	if c.Chat.TopP < 0 || c.Chat.TopP > 1 {
		errs = append(errs, ValidationError{
			Field:   "chat.top_p",
			Message: fmt.Sprintf("must be between 0.0 and 1.0, got %g", c.Chat.TopP),
		})
	}
	if c.Chat.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tokens",
			Message: "must be non-negative",
		})
	}
	if c.Chat.SearchMode != "" && !model.SearchMode(c.Chat.SearchMode).Valid() {
		errs = append(errs, ValidationError{
			Field:   "chat.search_mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: off, auto, smart", c.Chat.SearchMode),
		})
	}

	// Search provider
	if c.Search.Endpoint != "" {
		if u, err := url.Parse(c.Search.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "search.endpoint",
				Message: fmt.Sprintf("invalid URL '%s'", c.Search.Endpoint),
			})
		}
	}
	if c.Search.MaxResults < 0 || c.Search.MaxResults > 10 {
		errs = append(errs, ValidationError{
			Field:   "search.max_results",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Search.MaxResults),
		})
	}
	if c.Search.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "search.requests_per_second",
			Message: "must be non-negative",
		})
	}

	// Storage
	if c.Storage.MaxConversations < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_conversations",
			Message: "must be non-negative",
		})
	}

	// UI theme
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = defaults.DefaultModel
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = defaults.Ollama.BaseURL
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}

	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = defaults.Chat.Temperature
	}
	if c.Chat.MaxTokens == 0 {
		c.Chat.MaxTokens = defaults.Chat.MaxTokens
	}
	if c.Chat.TopP == 0 {
		c.Chat.TopP = defaults.Chat.TopP
	}
	if c.Chat.SearchMode == "" {
		c.Chat.SearchMode = defaults.Chat.SearchMode
	}

	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = defaults.Search.MaxResults
	}
	if c.Search.TimeoutSecs == 0 {
		c.Search.TimeoutSecs = defaults.Search.TimeoutSecs
	}
	if c.Search.RequestsPerSecond == 0 {
		c.Search.RequestsPerSecond = defaults.Search.RequestsPerSecond
	}

	if c.Storage.MaxConversations == 0 {
		c.Storage.MaxConversations = defaults.Storage.MaxConversations
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CONVOKE_MODEL: overrides default_model
//   - CONVOKE_OLLAMA_URL: overrides ollama.base_url
//   - OLLAMA_API_KEY: overrides ollama.api_key
//   - CONVOKE_SEARCH_ENDPOINT: overrides search.endpoint
//   - CONVOKE_SEARCH_API_KEY: overrides search.api_key
//   - CONVOKE_SEARCH_MODE: overrides chat.search_mode
//   - CONVOKE_DEBUG: set to "1" or "true" to enable debug recording
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CONVOKE_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("CONVOKE_OLLAMA_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_API_KEY"); v != "" {
		c.Ollama.APIKey = v
	}
	if v := os.Getenv("CONVOKE_SEARCH_ENDPOINT"); v != "" {
		c.Search.Endpoint = v
	}
	if v := os.Getenv("CONVOKE_SEARCH_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("CONVOKE_SEARCH_MODE"); v != "" {
		c.Chat.SearchMode = v
	}
	if v := os.Getenv("CONVOKE_DEBUG"); v != "" {
		c.Debug.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// ChatSettings converts the chat section into runtime chat settings.
func (c *Config) ChatSettings() model.ChatSettings {
	settings := model.DefaultChatSettings()
	settings.Temperature = c.Chat.Temperature
	settings.MaxTokens = c.Chat.MaxTokens
	settings.TopP = c.Chat.TopP
	settings.SearchMode = model.SearchMode(c.Chat.SearchMode)
	settings.MaxSearchResults = c.Search.MaxResults
	settings.SearchTimeout = time.Duration(c.Search.TimeoutSecs) * time.Second
	settings.SystemPrompt = c.Chat.SystemPrompt
	settings.DebugMode = c.Debug.Enabled
	return settings.Normalize()
}

// OllamaTimeout returns the Ollama request timeout as a duration.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSecs) * time.Second
}

// SearchAPIKey returns the bearer credential for the search provider.
// Falls back to the Ollama key so hosted setups that share one key only
// configure it once.
func (c *Config) SearchAPIKey() string {
	if c.Search.APIKey != "" {
		return c.Search.APIKey
	}
	return c.Ollama.APIKey
}

// ConversationsDir returns the configured conversation storage directory,
// resolving the default when unset.
func (c *Config) ConversationsDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations"), nil
}

// DebugDBPath returns the configured debug database path, resolving the
// default when unset.
func (c *Config) DebugDBPath() (string, error) {
	if c.Debug.DBPath != "" {
		return c.Debug.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "debug.db"), nil
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
// API keys are redacted so they never reach logs or error output.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Ollama.APIKey != "" {
		safe.Ollama.APIKey = "[REDACTED]"
	}
	if safe.Search.APIKey != "" {
		safe.Search.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
