// internal/common/config/loader_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The shipped config file must survive the loader's validation pass; a key
// that does not match the mapstructure tags silently drops the value and
// fails the boot.
func TestLoadFromFile_ShippedConfig(t *testing.T) {
	t.Setenv("DB_USER", "finpost")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := LoadFromFile("../../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Database.Redis.Address)
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, "Asia/Kolkata", cfg.MarketHours.Timezone)
	assert.NotEmpty(t, cfg.Publisher.Channels)
	assert.Equal(t, 30, cfg.Cooldowns.PerType["market_update"])
}
