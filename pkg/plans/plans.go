// Package plans loads the subscription plan catalog from a JSON file and
// serves lookups to the rest of the system. The catalog is read once at
// startup; plan changes ship as a new file plus a restart.
package plans

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
)

// Plan is a priced feature bundle. Prices are stored as exact decimals;
// float arithmetic on money drifts under refunds.
type Plan struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Tier         string            `json:"tier"`
	PriceMonthly decimal.Decimal   `json:"price_monthly"`
	PriceYearly  decimal.Decimal   `json:"price_yearly"`
	Currency     string            `json:"currency"`
	Limits       map[string]int64  `json:"limits"`
	Features     []string          `json:"features"`
	IsActive     bool              `json:"is_active"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// LimitFor returns the plan's cap for a usage kind. Missing keys mean the
// feature is not included, which callers treat as a zero limit.
func (p Plan) LimitFor(kind string) int64 {
	return p.Limits[kind]
}

// Catalog is an immutable, indexed view of the plan file.
type Catalog struct {
	plans map[string]Plan
}

type catalogFile struct {
	Version string      `json:"version"`
	Plans   []planEntry `json:"plans"`
}

// planEntry exists so that a catalog file which predates the is_active flag
// keeps all its plans sellable. The shadowed pointer distinguishes "absent"
// from an explicit false.
type planEntry struct {
	Plan
	IsActiveRaw *bool `json:"is_active"`
}

// Load reads and indexes a plan catalog. Duplicate plan ids are a file
// authoring error and fail the load.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}

	indexed := make(map[string]Plan, len(file.Plans))
	for _, entry := range file.Plans {
		p := entry.Plan
		p.IsActive = entry.IsActiveRaw == nil || *entry.IsActiveRaw
		if p.ID == "" {
			return nil, fmt.Errorf("plan with empty id in catalog")
		}
		if _, exists := indexed[p.ID]; exists {
			return nil, fmt.Errorf("duplicate plan id %q in catalog", p.ID)
		}
		// Yearly must carry a discount over twelve monthly payments.
		if p.PriceMonthly.IsPositive() && p.PriceYearly.GreaterThanOrEqual(p.PriceMonthly.Mul(decimal.NewFromInt(12))) {
			return nil, fmt.Errorf("plan %q yearly price %s is not below 12x monthly %s", p.ID, p.PriceYearly, p.PriceMonthly)
		}
		indexed[p.ID] = p
	}
	return &Catalog{plans: indexed}, nil
}

// Plan returns the plan with the given id.
func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// All returns every plan sorted by id for stable listings.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of plans in the catalog.
func (c *Catalog) Len() int {
	return len(c.plans)
}
