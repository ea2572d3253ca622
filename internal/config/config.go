// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/samlabs/sam-gateway/internal/archive"
	"github.com/samlabs/sam-gateway/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort     = 8080
	DefaultWebUsername = "admin"
	DefaultWebPassword = "gateway"
	DefaultBackendURL  = "http://localhost:8000/v1"
	DefaultPlatform    = "spotify"

	// DefaultDeviceWarningText is spoken when the platform is connected
	// but no playback device is active.
	DefaultDeviceWarningText = "No active Spotify device found. Please open Spotify on any device to continue."
)

// SystemConfig holds web server settings that require restart.
type SystemConfig struct {
	Port     int    `json:"port"`     // HTTP server port
	Username string `json:"username"` // Login username
	Password string `json:"password"` // Login password
}

// BackendConfig holds assistant backend connection settings.
type BackendConfig struct {
	BaseURL      string `json:"base_url"`                // Backend API base URL
	ClientID     string `json:"client_id,omitempty"`     // OAuth2 client ID (optional)
	ClientSecret string `json:"client_secret,omitempty"` // OAuth2 client secret (optional)
	TokenURL     string `json:"token_url,omitempty"`     // OAuth2 token endpoint (optional)
}

// AudioConfig holds audio device settings.
type AudioConfig struct {
	Input string `json:"input"` // Microphone device identifier (empty = platform default)
}

// ChatConfig holds conversation settings.
type ChatConfig struct {
	DeviceWarningText string `json:"device_warning_text"` // Spoken no-device warning
}

// Config holds all application configuration. It is safe for concurrent
// use.
type Config struct {
	System  SystemConfig     `json:"system"`
	Backend BackendConfig    `json:"backend"`
	Audio   AudioConfig      `json:"audio"`
	Chat    ChatConfig       `json:"chat"`
	Archive archive.S3Config `json:"archive"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Backend: BackendConfig{
			BaseURL: DefaultBackendURL,
		},
		Chat: ChatConfig{
			DeviceWarningText: DefaultDeviceWarningText,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default one if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return util.WrapError("read config", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks configuration fields for correctness.
func (c *Config) validate() error {
	if c.System.Port < 1 || c.System.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1-65535", c.System.Port)
	}
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("invalid backend base_url %q: %v", c.Backend.BaseURL, err)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	if c.Chat.DeviceWarningText == "" {
		c.Chat.DeviceWarningText = DefaultDeviceWarningText
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	WebPort     int
	WebUser     string
	WebPassword string

	BackendURL          string
	BackendClientID     string
	BackendClientSecret string
	BackendTokenURL     string

	AudioInput string

	DeviceWarningText string

	Archive archive.S3Config
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,

		BackendURL:          c.Backend.BaseURL,
		BackendClientID:     c.Backend.ClientID,
		BackendClientSecret: c.Backend.ClientSecret,
		BackendTokenURL:     c.Backend.TokenURL,

		AudioInput: c.Audio.Input,

		DeviceWarningText: c.Chat.DeviceWarningText,

		Archive: c.Archive,
	}
}
