// Package appconfig loads the storeauth service configuration from an
// optional YAML file, a .env file and the process environment, in that
// order of increasing precedence.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/internal/logger"
	"github.com/MrEthical07/storeauth/mailer"
	"github.com/MrEthical07/storeauth/oauth/google"
)

// Config is the file and environment view of the service settings.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`

	ServerURL     string `yaml:"server_url"`
	ClientURL     string `yaml:"client_url"`
	SessionSecret string `yaml:"session_secret"`
	CipherKey     string `yaml:"cipher_key"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`

	Session struct {
		Lifetime   string `yaml:"lifetime"`
		CookieName string `yaml:"cookie_name"`
	} `yaml:"session"`

	MFA struct {
		Issuer string `yaml:"issuer"`
	} `yaml:"mfa"`

	Google struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURI  string `yaml:"redirect_uri"`
	} `yaml:"google"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Pass     string `yaml:"pass"`
		From     string `yaml:"from"`
		TLSMode  string `yaml:"tls_mode"`
		Insecure bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Audit struct {
		Enabled *bool `yaml:"enabled"`
		// Sink is "zap" or "json".
		Sink string `yaml:"sink"`
	} `yaml:"audit"`
}

// Load reads path when it is not empty, then envFile when it exists, then
// applies environment overrides and defaults.
func Load(path, envFile string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = storeauth.EnvDevelopment
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8080"
	}
	if c.ClientURL == "" {
		c.ClientURL = "http://localhost:3000"
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "storeauth:"
	}
	if c.Google.RedirectURI == "" {
		c.Google.RedirectURI = strings.TrimRight(c.ServerURL, "/") + "/api/v1/auth/oauth/google/callback"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Audit.Sink == "" {
		c.Audit.Sink = "zap"
	}
}

func (c *Config) applyEnvOverrides() {
	setStr(&c.Env, "ENV")
	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.HTTPAddr, "HTTP_ADDR")
	setStr(&c.ServerURL, "SERVER_URL")
	setStr(&c.ClientURL, "CLIENT_URL")
	setStr(&c.SessionSecret, "SESSION_SECRET")
	setStr(&c.CipherKey, "CIPHER_KEY")
	setStr(&c.DatabaseURL, "DATABASE_URL")
	setStr(&c.RedisURL, "REDIS_URL")
	setStr(&c.RedisPrefix, "REDIS_PREFIX")
	setStr(&c.Session.Lifetime, "SESSION_LIFETIME")
	setStr(&c.MFA.Issuer, "MFA_ISSUER")

	setStr(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setStr(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setStr(&c.Google.RedirectURI, "GOOGLE_REDIRECT_URI")

	setStr(&c.SMTP.Host, "SMTP_HOST")
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	setStr(&c.SMTP.User, "SMTP_USER")
	setStr(&c.SMTP.Pass, "SMTP_PASS")
	setStr(&c.SMTP.From, "SMTP_FROM")
	setStr(&c.SMTP.TLSMode, "SMTP_TLS_MODE")
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.Insecure = v
	}

	if v, ok := getEnvBool("AUDIT_ENABLED"); ok {
		c.Audit.Enabled = &v
	}
	setStr(&c.Audit.Sink, "AUDIT_SINK")
}

// Engine maps c onto the engine configuration. The result still needs
// storeauth.Config.Validate, which Build runs.
func (c *Config) Engine() (storeauth.Config, error) {
	cfg := storeauth.DefaultConfig()
	cfg.Env = strings.ToLower(c.Env)
	cfg.ServerURL = c.ServerURL
	cfg.ClientURL = c.ClientURL
	cfg.CipherKey = c.CipherKey
	cfg.ActionTokenSecret = c.SessionSecret

	if c.Session.Lifetime != "" {
		d, err := time.ParseDuration(c.Session.Lifetime)
		if err != nil || d <= 0 {
			return storeauth.Config{}, fmt.Errorf("session lifetime %q: invalid duration", c.Session.Lifetime)
		}
		cfg.Session.Lifetime = d
	}
	if c.Session.CookieName != "" {
		cfg.Session.CookieName = c.Session.CookieName
	}
	if c.MFA.Issuer != "" {
		cfg.MFA.Issuer = c.MFA.Issuer
	}
	if c.Audit.Enabled != nil {
		cfg.Audit.Enabled = *c.Audit.Enabled
	}
	return cfg, nil
}

// GoogleEnabled reports whether Google credentials are configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// GoogleConfig returns the provider configuration.
func (c *Config) GoogleConfig() google.Config {
	return google.Config{
		ClientID:     c.Google.ClientID,
		ClientSecret: c.Google.ClientSecret,
		RedirectURI:  c.Google.RedirectURI,
	}
}

// SMTPEnabled reports whether an SMTP host is configured.
func (c *Config) SMTPEnabled() bool { return c.SMTP.Host != "" }

// SMTPConfig returns the mailer configuration.
func (c *Config) SMTPConfig() mailer.SMTPConfig {
	return mailer.SMTPConfig{
		Host:               c.SMTP.Host,
		Port:               c.SMTP.Port,
		User:               c.SMTP.User,
		Pass:               c.SMTP.Pass,
		From:               c.SMTP.From,
		TLSMode:            c.SMTP.TLSMode,
		InsecureSkipVerify: c.SMTP.Insecure,
	}
}

// Logger returns the logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{Env: c.Env, Level: c.LogLevel, Service: "storeauth"}
}

// Validate checks the settings that the engine does not own.
func (c *Config) Validate() error {
	var errs []error
	if c.SMTPEnabled() && c.SMTP.From == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	switch c.Audit.Sink {
	case "zap", "json":
	default:
		errs = append(errs, fmt.Errorf("audit sink %q: want zap or json", c.Audit.Sink))
	}
	return errors.Join(errs...)
}

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func getEnvInt(key string) (int, bool) {
	if s := os.Getenv(key); s != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
