// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like STRIPE_WEBHOOK_SECRET
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from multiple possible locations so the binary works
// whether launched from the repo root, cmd/, or a test directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig falls back to well-known env variables for secrets that
// are usually injected rather than committed to a config file.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Billing.Providers.Stripe.WebhookSecret == "" {
		if val := os.Getenv("STRIPE_WEBHOOK_SECRET"); val != "" {
			cfg.Billing.Providers.Stripe.WebhookSecret = val
		}
	}
	if cfg.Billing.Providers.Razorpay.WebhookSecret == "" {
		if val := os.Getenv("RAZORPAY_WEBHOOK_SECRET"); val != "" {
			cfg.Billing.Providers.Razorpay.WebhookSecret = val
		}
	}
	if cfg.Billing.Providers.Razorpay.KeyID == "" {
		if val := os.Getenv("RAZORPAY_KEY_ID"); val != "" {
			cfg.Billing.Providers.Razorpay.KeyID = val
		}
	}

	for name, ch := range cfg.Publisher.Channels {
		if ch.Token == "" {
			envKey := strings.ToUpper(name) + "_TOKEN"
			if val := os.Getenv(envKey); val != "" {
				ch.Token = val
				cfg.Publisher.Channels[name] = ch
			}
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Market hours defaults (NSE-style trading day)
	if cfg.MarketHours.Open == "" {
		cfg.MarketHours.Open = "09:15"
	}
	if cfg.MarketHours.Close == "" {
		cfg.MarketHours.Close = "15:30"
	}
	if cfg.MarketHours.PreStart == "" {
		cfg.MarketHours.PreStart = "08:00"
	}
	if cfg.MarketHours.PostEnd == "" {
		cfg.MarketHours.PostEnd = "17:00"
	}
	if cfg.MarketHours.Timezone == "" {
		cfg.MarketHours.Timezone = "Asia/Kolkata"
	}

	// Publisher defaults
	if cfg.Publisher.TickSeconds == 0 {
		cfg.Publisher.TickSeconds = 60
	}
	if cfg.Publisher.MaxItemsPerTick == 0 {
		cfg.Publisher.MaxItemsPerTick = 5
	}
	for name, ch := range cfg.Publisher.Channels {
		if ch.TimeoutMS == 0 {
			ch.TimeoutMS = 10000
			cfg.Publisher.Channels[name] = ch
		}
	}

	// Cooldown defaults
	if cfg.Cooldowns.FallbackMinutes == 0 {
		cfg.Cooldowns.FallbackMinutes = 60
	}
	if cfg.Cooldowns.PerType == nil {
		cfg.Cooldowns.PerType = map[string]int{
			"market_update":   30,
			"news_alert":      15,
			"opening_bell":    1440,
			"closing_summary": 1440,
		}
	}

	// Billing defaults
	if cfg.Billing.TrialDays == 0 {
		cfg.Billing.TrialDays = 7
	}
	if cfg.Billing.PlanCatalogPath == "" {
		cfg.Billing.PlanCatalogPath = "configs/plans.json"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if _, err := time.LoadLocation(cfg.MarketHours.Timezone); err != nil {
		return fmt.Errorf("market_hours.timezone is invalid: %w", err)
	}

	for _, field := range []struct{ name, val string }{
		{"market_hours.open", cfg.MarketHours.Open},
		{"market_hours.close", cfg.MarketHours.Close},
		{"market_hours.pre_start", cfg.MarketHours.PreStart},
		{"market_hours.post_end", cfg.MarketHours.PostEnd},
	} {
		if _, err := time.Parse("15:04", field.val); err != nil {
			return fmt.Errorf("%s must be HH:MM: %w", field.name, err)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// CooldownFor returns the configured debounce window for a content type,
// falling back to the default window for unknown keys.
func (c CooldownConfig) CooldownFor(contentType string) time.Duration {
	if minutes, ok := c.PerType[contentType]; ok {
		return time.Duration(minutes) * time.Minute
	}
	return time.Duration(c.FallbackMinutes) * time.Minute
}
