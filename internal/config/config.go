package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	DBMaxConns  int32
	LogLevel    string

	SessionSecret  string
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int

	ResendAPIKey   string
	SendGridAPIKey string
	EmailFrom      string
	AppURL         string

	TrialDays          int
	TrialWarningWindow time.Duration
	TrialCheckSchedule string

	WebhookTimeout           time.Duration
	WebhookWorkers           int
	WebhookRetryPollInterval time.Duration

	CacheTTL time.Duration

	MasterAdminEmail    string
	MasterAdminPassword string

	TelegramBotToken    string
	TelegramAdminChatID int64
}

func (c *Config) IsProduction() bool  { return c.Env == EnvProduction }
func (c *Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "")
	v.SetDefault("NODE_ENV", EnvDevelopment)
	v.SetDefault("PORT", "5000")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT", 10)
	v.SetDefault("RATE_BURST", 30)
	v.SetDefault("EMAIL_FROM", "Tracker Suite <noreply@trackersuite.app>")
	v.SetDefault("APP_URL", "http://localhost:5000")
	v.SetDefault("TRIAL_DAYS", 7)
	v.SetDefault("TRIAL_WARNING_WINDOW", "48h")
	v.SetDefault("TRIAL_CHECK_SCHEDULE", "")
	v.SetDefault("WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("WEBHOOK_WORKERS", 4)
	v.SetDefault("WEBHOOK_RETRY_POLL_INTERVAL", "10s")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("TELEGRAM_ADMIN_CHAT_ID", 0)
	return v
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	env := strings.ToLower(v.GetString("APP_ENV"))
	if env == "" {
		env = strings.ToLower(v.GetString("NODE_ENV"))
	}

	cfg := &Config{
		Env:                      env,
		Port:                     v.GetString("PORT"),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		DBMaxConns:               int32(v.GetInt("DB_MAX_CONNS")),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		SessionSecret:            v.GetString("SESSION_SECRET"),
		AllowedOrigins:           splitList(v.GetString("ALLOWED_ORIGINS")),
		RateLimit:                v.GetFloat64("RATE_LIMIT"),
		RateBurst:                v.GetInt("RATE_BURST"),
		ResendAPIKey:             v.GetString("RESEND_API_KEY"),
		SendGridAPIKey:           v.GetString("SENDGRID_API_KEY"),
		EmailFrom:                v.GetString("EMAIL_FROM"),
		AppURL:                   strings.TrimRight(v.GetString("APP_URL"), "/"),
		TrialDays:                v.GetInt("TRIAL_DAYS"),
		TrialWarningWindow:       v.GetDuration("TRIAL_WARNING_WINDOW"),
		TrialCheckSchedule:       v.GetString("TRIAL_CHECK_SCHEDULE"),
		WebhookTimeout:           v.GetDuration("WEBHOOK_TIMEOUT"),
		WebhookWorkers:           v.GetInt("WEBHOOK_WORKERS"),
		WebhookRetryPollInterval: v.GetDuration("WEBHOOK_RETRY_POLL_INTERVAL"),
		CacheTTL:                 v.GetDuration("CACHE_TTL"),
		MasterAdminEmail:         v.GetString("MASTER_ADMIN_EMAIL"),
		MasterAdminPassword:      v.GetString("MASTER_ADMIN_PASSWORD"),
		TelegramBotToken:         v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramAdminChatID:      v.GetInt64("TELEGRAM_ADMIN_CHAT_ID"),
	}

	if cfg.TrialCheckSchedule == "" {
		if cfg.IsProduction() {
			cfg.TrialCheckSchedule = "@every 6h"
		} else {
			cfg.TrialCheckSchedule = "@every 1m"
		}
	}
	if len(cfg.AllowedOrigins) == 0 && !cfg.IsProduction() {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:5000"}
	}

	return cfg, cfg.Validate()
}

// Validate reports configuration that would make the server unsafe or unusable.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.SessionSecret == "" {
		if c.IsProduction() {
			problems = append(problems, "SESSION_SECRET is required in production")
		} else {
			c.SessionSecret = "dev-session-secret-change-me"
		}
	} else if c.IsProduction() && len(c.SessionSecret) < 32 {
		problems = append(problems, "SESSION_SECRET must be at least 32 characters in production")
	}
	if c.TrialDays < 1 {
		problems = append(problems, "TRIAL_DAYS must be at least 1")
	}
	if c.WebhookWorkers < 1 {
		c.WebhookWorkers = 1
	}
	if c.DBMaxConns < 1 {
		c.DBMaxConns = 5
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
