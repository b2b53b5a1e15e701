package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// JobConfig declares one recurring job. Schedule is a standard 5-field cron
// expression evaluated in Config.Timezone.
type JobConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Schedule string `mapstructure:"schedule"`
	Priority string `mapstructure:"priority"`
	Enabled  bool   `mapstructure:"enabled"`
}

type Config struct {
	Port        string `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database_url"`
	LogLevel    string `mapstructure:"log_level"`
	Timezone    string `mapstructure:"timezone"`

	Scheduler struct {
		TickInterval   time.Duration `mapstructure:"tick_interval"`
		JobTimeout     time.Duration `mapstructure:"job_timeout"`
		SlowRunSeconds float64       `mapstructure:"slow_run_seconds"`
	} `mapstructure:"scheduler"`

	Sources struct {
		FiscalYear    string `mapstructure:"fiscal_year"`
		BudgetURL     string `mapstructure:"budget_url"`
		TreasuryURL   string `mapstructure:"treasury_url"`
		ParliamentURL string `mapstructure:"parliament_url"`
		QoNURL        string `mapstructure:"qon_url"`
	} `mapstructure:"sources"`

	Alerts struct {
		EmailEnabled    bool   `mapstructure:"email_enabled"`
		SendGridAPIKey  string `mapstructure:"sendgrid_api_key"`
		AlertEmail      string `mapstructure:"alert_email"`
		SlackWebhookURL string `mapstructure:"slack_webhook_url"`
	} `mapstructure:"alerts"`

	Jobs []JobConfig `mapstructure:"jobs"`
}

// Load reads config.yaml (optional) layered over built-in defaults, with env
// overrides (e.g. DATABASE_URL, SCHEDULER_JOB_TIMEOUT).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Missing config file is fine, defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set DATABASE_URL)")
	}
	if len(cfg.Jobs) == 0 {
		return nil, fmt.Errorf("no jobs configured")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "Australia/Brisbane")

	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.job_timeout", 30*time.Minute)
	v.SetDefault("scheduler.slow_run_seconds", 600.0)

	v.SetDefault("alerts.email_enabled", false)

	v.SetDefault("sources.fiscal_year", "2024-25")
	v.SetDefault("sources.budget_url", "https://budget.qld.gov.au/budget-papers/")
	v.SetDefault("sources.treasury_url", "https://www.treasury.qld.gov.au/budget-and-financial-management/")
	v.SetDefault("sources.parliament_url", "https://www.parliament.qld.gov.au/Work-of-Committees/")
	v.SetDefault("sources.qon_url", "https://www.parliament.qld.gov.au/Work-of-the-Assembly/Questions-on-Notice/")

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("alerts.sendgrid_api_key", "SENDGRID_API_KEY")
	_ = v.BindEnv("alerts.alert_email", "ALERT_EMAIL")
	_ = v.BindEnv("alerts.slack_webhook_url", "SLACK_WEBHOOK_URL")

	// The standing job set for the tracker. A config.yaml jobs block replaces
	// this wholesale.
	v.SetDefault("jobs", []map[string]any{
		{"id": "budget_scraper", "name": "Budget papers scraper", "schedule": "0 9 * * *", "priority": "high", "enabled": true},
		{"id": "treasury_scraper", "name": "Treasury PDF scraper", "schedule": "15 9 * * *", "priority": "medium", "enabled": true},
		{"id": "parliament_scraper", "name": "Parliament Hansard scraper", "schedule": "30 9 * * *", "priority": "medium", "enabled": true},
		{"id": "qon_scraper", "name": "Questions on Notice scraper", "schedule": "45 9 * * *", "priority": "medium", "enabled": true},
		{"id": "missing_data_check", "name": "Missing data check", "schedule": "0 10 * * *", "priority": "low", "enabled": true},
		{"id": "weekly_report", "name": "Weekly report snapshot", "schedule": "0 8 * * 1", "priority": "low", "enabled": true},
		{"id": "health_check", "name": "System health check", "schedule": "0 * * * *", "priority": "low", "enabled": true},
	})
}
