package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir         string `json:"data_dir"`
	LogLevel        string `json:"log_level"`
	MaxConcurrent   int    `json:"max_concurrent"`
	RefreshSchedule string `json:"refresh_schedule"`
	Backend         struct {
		BaseURL        string  `json:"base_url"`
		TimeoutSeconds int     `json:"timeout_seconds"`
		RatePerSecond  float64 `json:"rate_per_second"`
		Burst          int     `json:"burst"`
		MaxRetries     int     `json:"max_retries"`
	} `json:"backend"`
	DevServer struct {
		Listen          string `json:"listen"`
		JWTSecret       string `json:"jwt_secret"`
		TokenTTLMinutes int    `json:"token_ttl_minutes"`
		// Replies come from an OpenAI-compatible completions API when
		// LLMBaseURL and LLMModel are set, otherwise prompts are echoed.
		LLMBaseURL string `json:"llm_base_url"`
		LLMModel   string `json:"llm_model"`
		LLMAPIKey  string `json:"llm_api_key"`
	} `json:"devserver"`
}

// DefaultPath returns ~/.chatpane/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".chatpane", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:         filepath.Join(os.Getenv("HOME"), ".chatpane"),
		LogLevel:        "info",
		MaxConcurrent:   4,
		RefreshSchedule: "@every 1m",
	}
	cfg.Backend.BaseURL = "http://127.0.0.1:8787"
	cfg.Backend.TimeoutSeconds = 30
	cfg.Backend.RatePerSecond = 5
	cfg.Backend.Burst = 10
	cfg.Backend.MaxRetries = 2
	cfg.DevServer.Listen = "127.0.0.1:8787"
	cfg.DevServer.TokenTTLMinutes = 24 * 60
	return cfg
}

// Load reads the config at path, writing defaults there first if the file
// does not exist. Variables from a .env file in the working directory and
// CHATPANE_* environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHATPANE_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("CHATPANE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHATPANE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CHATPANE_DEV_SECRET"); v != "" {
		cfg.DevServer.JWTSecret = v
	}
	if v := os.Getenv("CHATPANE_LLM_API_KEY"); v != "" {
		cfg.DevServer.LLMAPIKey = v
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.MaxConcurrent, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	err = validation.ValidateStruct(&c.Backend,
		validation.Field(&c.Backend.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Backend.TimeoutSeconds, validation.Min(0)),
		validation.Field(&c.Backend.RatePerSecond, validation.Min(0.0)),
		validation.Field(&c.Backend.MaxRetries, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("invalid backend config: %w", err)
	}
	err = validation.ValidateStruct(&c.DevServer,
		validation.Field(&c.DevServer.Listen, validation.Required),
		validation.Field(&c.DevServer.TokenTTLMinutes, validation.Min(1)),
		validation.Field(&c.DevServer.LLMBaseURL, is.URL),
		validation.Field(&c.DevServer.LLMModel,
			validation.When(c.DevServer.LLMBaseURL != "", validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("invalid devserver config: %w", err)
	}
	return nil
}

// BackendTimeout returns the per-request timeout for the chat service.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// TokenTTL returns how long development server tokens stay valid.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.DevServer.TokenTTLMinutes) * time.Minute
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map keyed by JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as dot-separated keys, optionally masking secrets.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return m, nil
}

// GetValue returns the value stored under a dot-separated key, creating
// the config with defaults if it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores raw under a dot-separated key in an existing config
// file. raw is decoded as JSON when possible (numbers, booleans) and kept
// as a string otherwise.
func SetValue(path, key, raw string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	flat := Flatten(m)
	flat[strings.TrimSpace(key)] = v

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}
