// cmd/tools/plan-seeder/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"finpost-workers/pkg/plans"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validatePath := validateCmd.String("path", "configs/plans.json", "Path to plan catalog file")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listPath := listCmd.String("path", "configs/plans.json", "Path to plan catalog file")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	initPath := initCmd.String("path", "configs/plans.json", "Path to write the starter catalog")
	force := initCmd.Bool("force", false, "Overwrite an existing file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		catalog, err := plans.Load(*validatePath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Catalog valid: %d plans\n", catalog.Len())

	case "list":
		listCmd.Parse(os.Args[2:])
		catalog, err := plans.Load(*listPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range catalog.All() {
			fmt.Printf("%-16s %-24s %s %s/mo, %s/yr, limits=%v\n",
				p.ID, p.Name, p.Currency, p.PriceMonthly, p.PriceYearly, p.Limits)
		}

	case "init":
		initCmd.Parse(os.Args[2:])
		if _, err := os.Stat(*initPath); err == nil && !*force {
			fmt.Printf("Error: %s already exists (use -force to overwrite)\n", *initPath)
			os.Exit(1)
		}
		if err := writeStarterCatalog(*initPath); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote starter catalog to %s\n", *initPath)

	default:
		help()
		os.Exit(1)
	}
}

func writeStarterCatalog(path string) error {
	catalog := struct {
		Version string       `json:"version"`
		Plans   []plans.Plan `json:"plans"`
	}{
		Version: "1.0.0",
		Plans: []plans.Plan{
			{
				ID:           "free",
				Tier:         "free",
				Name:         "Free",
				PriceMonthly: decimal.Zero,
				PriceYearly:  decimal.Zero,
				Currency:     "INR",
				Limits:       map[string]int64{"api_calls": 100, "alerts": 5},
				Features:     []string{"market_updates"},
				IsActive:     true,
			},
			{
				ID:           "pro",
				Tier:         "pro",
				Name:         "Pro",
				PriceMonthly: decimal.NewFromInt(499),
				PriceYearly:  decimal.NewFromInt(4990),
				Currency:     "INR",
				Limits:       map[string]int64{"api_calls": 10000, "alerts": 100},
				Features:     []string{"market_updates", "news_alerts", "priority_support"},
				IsActive:     true,
			},
			{
				ID:           "enterprise",
				Tier:         "enterprise",
				Name:         "Enterprise",
				PriceMonthly: decimal.NewFromInt(2999),
				PriceYearly:  decimal.NewFromInt(29990),
				Currency:     "INR",
				Limits:       map[string]int64{"api_calls": 1000000, "alerts": 10000},
				Features:     []string{"market_updates", "news_alerts", "priority_support", "dedicated_account"},
				IsActive:     true,
			},
		},
	}

	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func help() {
	fmt.Println("Usage: plan-seeder <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  validate  Check a plan catalog file for errors")
	fmt.Println("  list      Print the plans in a catalog file")
	fmt.Println("  init      Write a starter catalog")
}
