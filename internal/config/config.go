package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr           string `json:"listen_addr"`
	PollSeconds          int    `json:"poll_seconds"`
	TimeoutSeconds       int    `json:"timeout_seconds"`
	StatusTimeoutSeconds int    `json:"status_timeout_seconds"`
	CodePage             string `json:"code_page"`
	LogLevel             string `json:"log_level"`
	LogFormat            string `json:"log_format"`
}

func Default() *Config {
	return &Config{
		ListenAddr:           "127.0.0.1:8099",
		PollSeconds:          30,
		TimeoutSeconds:       10,
		StatusTimeoutSeconds: 2,
		CodePage:             "cp437",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) StatusTimeout() time.Duration {
	return time.Duration(c.StatusTimeoutSeconds) * time.Second
}

func LoadOrCreateDefault() (*Config, error) {
	if _, err := os.Stat(Path()); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if errSave := Save(cfg); errSave != nil {
			return nil, errSave
		}
		ApplyEnv(cfg)
		normalize(cfg)
		return cfg, nil
	}

	return Load()
}

// Load reads the config file and applies environment overrides on top of it
func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	normalize(cfg)

	return cfg, nil
}

func Save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(Path(), data, 0o600)
}

// ApplyEnv overrides cfg with RECEIPT_PRINTER_* variables that are set
func ApplyEnv(cfg *Config) {
	cfg.ListenAddr = envOr("RECEIPT_PRINTER_LISTEN_ADDR", cfg.ListenAddr)
	cfg.PollSeconds = envInt("RECEIPT_PRINTER_POLL_SEC", cfg.PollSeconds)
	cfg.TimeoutSeconds = envInt("RECEIPT_PRINTER_TIMEOUT_SEC", cfg.TimeoutSeconds)
	cfg.StatusTimeoutSeconds = envInt("RECEIPT_PRINTER_STATUS_TIMEOUT_SEC", cfg.StatusTimeoutSeconds)
	cfg.CodePage = strings.ToLower(envOr("RECEIPT_PRINTER_CODE_PAGE", cfg.CodePage))
	cfg.LogLevel = strings.ToLower(envOr("RECEIPT_PRINTER_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOr("RECEIPT_PRINTER_LOG_FORMAT", cfg.LogFormat))
}

func normalize(cfg *Config) {
	def := Default()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = def.PollSeconds
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = def.TimeoutSeconds
	}
	if cfg.StatusTimeoutSeconds <= 0 {
		cfg.StatusTimeoutSeconds = def.StatusTimeoutSeconds
	}
	if cfg.CodePage == "" {
		cfg.CodePage = def.CodePage
	}
}

// Dir is RECEIPT_PRINTER_CONFIG_DIR, or receipt-printer under the user config directory
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv("RECEIPT_PRINTER_CONFIG_DIR")); dir != "" {
		return dir
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return filepath.Join(configDir, "receipt-printer")
}

func Path() string {
	return filepath.Join(Dir(), "config.json")
}

func EntriesPath() string {
	return filepath.Join(Dir(), "entries.json")
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
