// Package config loads service configuration from an optional YAML file and
// BIOMAGNET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix         = "BIOMAGNET_"
	maxConfigFileSize = 1 << 20
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Storage  StorageConfig  `koanf:"storage"`
	Auth     AuthConfig     `koanf:"auth"`
	Gemini   GeminiConfig   `koanf:"gemini"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Report   ReportConfig   `koanf:"report"`
	Telegram TelegramConfig `koanf:"telegram"`
	Mail     MailConfig     `koanf:"mail"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	AllowedOrigin   string        `koanf:"allowed_origin"`
}

type LogConfig struct {
	Mode     string `koanf:"mode"`
	HashSalt string `koanf:"hash_salt"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type AuthConfig struct {
	JWTSecret           string        `koanf:"jwt_secret"`
	SessionTTL          time.Duration `koanf:"session_ttl"`
	TokenTTL            time.Duration `koanf:"token_ttl"`
	AdminEmails         []string      `koanf:"admin_emails"`
	RequireConfirmation bool          `koanf:"require_confirmation"`
	SignInInterval      time.Duration `koanf:"sign_in_interval"`
	SignInBurst         int           `koanf:"sign_in_burst"`
}

type GeminiConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

type AnalysisConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type ReportConfig struct {
	FontPath string `koanf:"font_path"`
	Timezone string `koanf:"timezone"`
}

type TelegramConfig struct {
	Token  string `koanf:"token"`
	ChatID int64  `koanf:"chat_id"`
}

type MailConfig struct {
	SendGridKey string `koanf:"sendgrid_key"`
	BaseURL     string `koanf:"base_url"`
	FromEmail   string `koanf:"from_email"`
	FromName    string `koanf:"from_name"`
	AppURL      string `koanf:"app_url"`
}

// Load reads path (if non-empty) and then applies environment overrides.
//
//	BIOMAGNET_STORAGE_DSN     -> storage.dsn
//	BIOMAGNET_AUTH_JWT_SECRET -> auth.jwt_secret
//	BIOMAGNET_AUTH_ADMIN_EMAILS=a@x.com,b@y.com
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps BIOMAGNET_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.AllowedOrigin == "" {
		cfg.Server.AllowedOrigin = "*"
	}
	if cfg.Log.Mode == "" {
		cfg.Log.Mode = "development"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "biomagnet.db"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 12 * time.Hour
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.Auth.SignInInterval == 0 {
		cfg.Auth.SignInInterval = 12 * time.Second
	}
	if cfg.Auth.SignInBurst == 0 {
		cfg.Auth.SignInBurst = 5
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 90 * time.Second
	}
	if cfg.Report.Timezone == "" {
		cfg.Report.Timezone = "America/Sao_Paulo"
	}
	if cfg.Mail.BaseURL == "" {
		cfg.Mail.BaseURL = "https://api.sendgrid.com"
	}
	cfg.Auth.AdminEmails = normalizeEmails(cfg.Auth.AdminEmails)
}

func normalizeEmails(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		for _, part := range strings.Split(e, ",") {
			if v := strings.ToLower(strings.TrimSpace(part)); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be postgres or sqlite", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if c.Auth.SessionTTL < 0 || c.Auth.TokenTTL < 0 || c.Auth.SignInInterval < 0 {
		errs = append(errs, errors.New("auth durations must be positive"))
	}
	if c.Auth.SignInBurst < 0 {
		errs = append(errs, errors.New("auth.sign_in_burst must be positive"))
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("report.timezone: %w", err))
	}
	return errors.Join(errs...)
}
