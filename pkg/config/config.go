package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envTelegramAccessToken = "TELEGRAM_ACCESS_TOKEN"
	envTelegramVerify      = "TELEGRAM_VERIFY"
	envTelegramWebhookURL  = "TELEGRAM_WEBHOOK_URL"
	envVKAccessToken       = "VK_ACCESS_TOKEN"
	envVKSecretKey         = "VK_SECRET_KEY"
	envVKConfirmation      = "VK_CONFIRMATION"
	envDebug               = "CHATBRIDGE_DEBUG"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Debug    bool           `json:"debug,omitempty"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores per-platform adapter settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	VK       VKConfig       `json:"vk"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled     bool   `json:"enabled"`
	AccessToken string `json:"access_token"`
	Verify      string `json:"verify"`
	WebhookURL  string `json:"webhook_url"`
}

// Credentials flattens the Telegram settings into the opaque mapping
// consumed by the channel registry.
func (c TelegramConfig) Credentials() map[string]string {
	return map[string]string{
		"access_token": c.AccessToken,
		"verify":       c.Verify,
		"webhook_url":  c.WebhookURL,
	}
}

// VKConfig configures the VK channel.
type VKConfig struct {
	Enabled      bool   `json:"enabled"`
	AccessToken  string `json:"access_token"`
	Confirmation string `json:"confirmation"`
	SecretKey    string `json:"secret_key"`
}

// Credentials flattens the VK settings into the opaque mapping consumed by
// the channel registry. The confirmation string rides the shared "verify"
// key.
func (c VKConfig) Credentials() map[string]string {
	return map[string]string{
		"access_token": c.AccessToken,
		"verify":       c.Confirmation,
		"secret_key":   c.SecretKey,
	}
}

// GatewayConfig configures HTTP bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects secret-bearing env settings on top of file
// config, so tokens never have to live in config.json.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envTelegramAccessToken)); value != "" {
		cfg.Channels.Telegram.AccessToken = value
	}
	if value := strings.TrimSpace(os.Getenv(envTelegramVerify)); value != "" {
		cfg.Channels.Telegram.Verify = value
	}
	if value := strings.TrimSpace(os.Getenv(envTelegramWebhookURL)); value != "" {
		cfg.Channels.Telegram.WebhookURL = value
	}
	if value := strings.TrimSpace(os.Getenv(envVKAccessToken)); value != "" {
		cfg.Channels.VK.AccessToken = value
	}
	if value := strings.TrimSpace(os.Getenv(envVKSecretKey)); value != "" {
		cfg.Channels.VK.SecretKey = value
	}
	if value := strings.TrimSpace(os.Getenv(envVKConfirmation)); value != "" {
		cfg.Channels.VK.Confirmation = value
	}
	if value := strings.TrimSpace(os.Getenv(envDebug)); value != "" {
		cfg.Debug = parseBool(value)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is CHATBRIDGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("CHATBRIDGE_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("CHATBRIDGE_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
