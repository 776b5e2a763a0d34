// pkg/plans/plans_test.go
package plans

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testCatalog = `{
	"version": "1",
	"plans": [
		{
			"id": "pro",
			"name": "Pro",
			"tier": "pro",
			"price_monthly": "499.00",
			"price_yearly": "4990.00",
			"currency": "INR",
			"limits": {"api_calls": 1000},
			"features": ["market_updates", "news_alerts"]
		},
		{
			"id": "free",
			"name": "Free",
			"price_monthly": "0",
			"price_yearly": "0",
			"currency": "INR",
			"limits": {"api_calls": 50},
			"features": ["market_updates"]
		}
	]
}`

// ==========================
// Parse Tests
// ==========================

func TestParse_ValidCatalog(t *testing.T) {
	catalog, err := Parse([]byte(testCatalog))
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	pro, ok := catalog.Plan("pro")
	require.True(t, ok)
	assert.Equal(t, "Pro", pro.Name)
	assert.True(t, pro.PriceMonthly.Equal(decimal.NewFromInt(499)))
	assert.Equal(t, "INR", pro.Currency)
	assert.Equal(t, []string{"market_updates", "news_alerts"}, pro.Features)
	assert.Equal(t, "pro", pro.Tier)
}

func TestParse_IsActiveDefaultsTrue(t *testing.T) {
	catalog, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	// Neither test plan carries is_active; catalogs written before the flag
	// existed must keep every plan sellable.
	pro, _ := catalog.Plan("pro")
	assert.True(t, pro.IsActive)
	free, _ := catalog.Plan("free")
	assert.True(t, free.IsActive)
}

func TestParse_RetiredPlanStaysInactive(t *testing.T) {
	catalog, err := Parse([]byte(`{
		"plans": [
			{"id": "legacy", "name": "Legacy", "tier": "pro", "is_active": false},
			{"id": "pro", "name": "Pro", "tier": "pro", "is_active": true}
		]
	}`))
	require.NoError(t, err)

	legacy, ok := catalog.Plan("legacy")
	require.True(t, ok, "retired plans stay loadable for existing subscribers")
	assert.False(t, legacy.IsActive)

	pro, _ := catalog.Plan("pro")
	assert.True(t, pro.IsActive)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "invalid json",
			data:    `{"plans": [`,
			wantErr: "parse plan catalog",
		},
		{
			name:    "empty catalog",
			data:    `{"version": "1", "plans": []}`,
			wantErr: "empty",
		},
		{
			name:    "empty plan id",
			data:    `{"plans": [{"id": "", "name": "Nameless"}]}`,
			wantErr: "empty id",
		},
		{
			name:    "duplicate plan id",
			data:    `{"plans": [{"id": "pro", "name": "A"}, {"id": "pro", "name": "B"}]}`,
			wantErr: `duplicate plan id "pro"`,
		},
		{
			name:    "yearly price without discount",
			data:    `{"plans": [{"id": "pro", "name": "Pro", "price_monthly": "499", "price_yearly": "5988"}]}`,
			wantErr: "not below 12x monthly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ==========================
// Load Tests
// ==========================

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read plan catalog")
}

// ==========================
// Lookup Tests
// ==========================

func TestCatalog_PlanMiss(t *testing.T) {
	catalog, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	_, ok := catalog.Plan("enterprise")
	assert.False(t, ok)
}

func TestCatalog_AllSortedByID(t *testing.T) {
	catalog, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	all := catalog.All()
	require.Len(t, all, 2)
	assert.Equal(t, "free", all[0].ID)
	assert.Equal(t, "pro", all[1].ID)
}

func TestPlan_LimitFor(t *testing.T) {
	catalog, err := Parse([]byte(testCatalog))
	require.NoError(t, err)

	pro, _ := catalog.Plan("pro")
	assert.Equal(t, int64(1000), pro.LimitFor("api_calls"))
	assert.Equal(t, int64(0), pro.LimitFor("unknown_kind"))
}
