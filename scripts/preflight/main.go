package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/polyguard/internal/config"
)

func fail(msg string) { log.Fatalf("FAIL: %s", msg) }
func pass(msg string) { fmt.Println("PASS:", msg) }

func main() {
	// Load .env (do not overwrite existing env)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fail("cannot load .env")
		}
		pass(".env loaded")
	} else {
		fmt.Println("NOTE: no .env file, using process environment and defaults")
	}

	// Risk knobs present
	for _, k := range []string{"MAX_TRADE_USD", "MAX_DAILY_USD"} {
		if os.Getenv(k) == "" {
			fail(k + " missing")
		}
	}
	pass("Risk knobs present")

	cfg, err := config.LoadFromEnv("")
	if err != nil {
		fail(err.Error())
	}
	pass("Configuration parses and validates")

	if !cfg.Risk.Enabled {
		fmt.Println("NOTE: RISK_ENABLED=false, every admission will be allowed.")
	}
	if cfg.Risk.MaxPerTrade.GreaterThan(cfg.Risk.MaxDailyVolume) {
		fail("MAX_TRADE_USD exceeds MAX_DAILY_USD")
	}
	if cfg.Risk.MaxPerTrade.LessThan(cfg.Risk.MinOrderSize) {
		fail(fmt.Sprintf("MAX_TRADE_USD is below the $%s venue minimum", cfg.Risk.MinOrderSize.StringFixed(2)))
	}
	if cfg.Risk.MaxPositionPerMarket.IsPositive() && cfg.Risk.MaxPositionPerMarket.LessThan(cfg.Risk.MinOrderSize) {
		fail("MAX_POSITION_USD is below the venue minimum; no order could ever be admitted")
	}
	pass(fmt.Sprintf("Limits coherent: $%s per trade, $%s per day",
		cfg.Risk.MaxPerTrade.StringFixed(2), cfg.Risk.MaxDailyVolume.StringFixed(2)))

	// Data dir writable and not locked by a running instance
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fail("cannot create DATA_DIR: " + err.Error())
	}
	probe := filepath.Join(cfg.DataDir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		fail("DATA_DIR not writable: " + err.Error())
	}
	_ = os.Remove(probe)
	if _, err := os.Stat(cfg.LockPath()); err == nil {
		fmt.Println("NOTE: pid lock present at " + cfg.LockPath() + "; another instance may be running.")
	}
	pass("DATA_DIR usable: " + cfg.DataDir)

	if cfg.Market.HighSpread.GreaterThan(decimal.RequireFromString("0.1")) {
		fmt.Println("NOTE: LIQUIDITY_HIGH_SPREAD above 0.10 rates most books as highly liquid.")
	}

	pass("Preflight completed")
}
