// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	MarketHours  MarketHoursConfig  `mapstructure:"market_hours"`
	Publisher    PublisherConfig    `mapstructure:"publisher"`
	Cooldowns    CooldownConfig     `mapstructure:"cooldowns"`
	Billing      BillingConfig      `mapstructure:"billing"`
	Integrations IntegrationConfig  `mapstructure:"integrations"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Market Session Config ---

// MarketHoursConfig defines the trading calendar used by the session oracle.
// Times are wall-clock "HH:MM" strings interpreted in Timezone.
type MarketHoursConfig struct {
	Open     string `mapstructure:"open"`      // e.g. "09:15"
	Close    string `mapstructure:"close"`     // e.g. "15:30"
	PreStart string `mapstructure:"pre_start"` // e.g. "08:00"
	PostEnd  string `mapstructure:"post_end"`  // e.g. "17:00"
	Timezone string `mapstructure:"timezone"`  // e.g. "Asia/Kolkata"
}

// --- Publisher Config ---

type PublisherConfig struct {
	TickSeconds     int                      `mapstructure:"tick_seconds"`
	MaxItemsPerTick int                      `mapstructure:"max_items_per_tick"`
	Channels        map[string]ChannelConfig `mapstructure:"channels"`
}

// ChannelConfig holds the per-platform delivery settings.
type ChannelConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	Token      string `mapstructure:"token"`
	ChatID     string `mapstructure:"chat_id"`     // telegram
	WebhookURL string `mapstructure:"webhook_url"` // slack
	TimeoutMS  int    `mapstructure:"timeout_ms"`
}

// CooldownConfig maps content types to debounce windows in minutes.
type CooldownConfig struct {
	PerType         map[string]int `mapstructure:"per_type"`
	FallbackMinutes int            `mapstructure:"fallback_minutes"`
}

// --- Billing Config ---

type BillingConfig struct {
	TrialDays       int                `mapstructure:"trial_days"`
	PlanCatalogPath string             `mapstructure:"plan_catalog"`
	Providers       ProvidersConfig    `mapstructure:"providers"`
	TaxRates        map[string]float64 `mapstructure:"tax_rates"` // jurisdiction -> flat rate
}

type ProvidersConfig struct {
	Stripe struct {
		WebhookSecret string `mapstructure:"webhook_secret"`
	} `mapstructure:"stripe"`
	Razorpay struct {
		WebhookSecret string `mapstructure:"webhook_secret"`
		KeyID         string `mapstructure:"key_id"`
	} `mapstructure:"razorpay"`
}

// IntegrationConfig holds settings for AWS-backed delivery and alerting.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
			ToEmail   string `mapstructure:"to_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
