// Package config loads server and policy settings from the environment.
//
// A .env file is honored when present (godotenv); real environment
// variables win. Every value has a documented default so a bare
// `go run ./cmd/server` works.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/warp/bank-ledger/bank"
	"github.com/warp/bank-ledger/ledger"
)

// Config is the full runtime configuration.
type Config struct {
	// Server
	Port     int    // PORT, default 8080
	LogLevel string // LOG_LEVEL: "debug" | "info", default "info"

	// Storage
	Driver      string // STORE_DRIVER: "sqlite" | "postgres" | "memory", default "sqlite"
	SQLitePath  string // SQLITE_PATH, default "bank.db"
	DatabaseURL string // DATABASE_URL, required when driver is "postgres"

	// Policy overrides
	MinTransferAmount  decimal.Decimal // MIN_TRANSFER_AMOUNT, default 1
	DepositAnnualRate  decimal.Decimal // FD_ANNUAL_RATE, default 7.10
	DepositTenureYears int             // FD_TENURE_YEARS, default 1
	OpeningBalance     decimal.Decimal // OPENING_BALANCE, default 10000
	Currency           string          // CURRENCY, default "USD"
}

// Load reads configuration from the environment (and .env if present).
func Load() (*Config, error) {
	_ = godotenv.Load() // missing .env is fine

	defaults := bank.DefaultPolicy()

	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	tenure, err := getEnvInt("FD_TENURE_YEARS", defaults.DepositTenureYears)
	if err != nil {
		return nil, err
	}
	minTransfer, err := getEnvDecimal("MIN_TRANSFER_AMOUNT", defaults.MinTransferAmount.Value)
	if err != nil {
		return nil, err
	}
	rate, err := getEnvDecimal("FD_ANNUAL_RATE", defaults.DepositAnnualRate)
	if err != nil {
		return nil, err
	}
	opening, err := getEnvDecimal("OPENING_BALANCE", defaults.OpeningBalance.Value)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               port,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Driver:             getEnv("STORE_DRIVER", "sqlite"),
		SQLitePath:         getEnv("SQLITE_PATH", "bank.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MinTransferAmount:  minTransfer,
		DepositAnnualRate:  rate,
		DepositTenureYears: tenure,
		OpeningBalance:     opening,
		Currency:           getEnv("CURRENCY", defaults.Currency),
	}

	if cfg.Driver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
	}
	return cfg, nil
}

// Policy converts the loaded values into the domain policy struct.
func (c *Config) Policy() bank.Policy {
	return bank.Policy{
		MinTransferAmount:  ledger.Amount{Value: c.MinTransferAmount},
		DepositAnnualRate:  c.DepositAnnualRate,
		DepositTenureYears: c.DepositTenureYears,
		OpeningBalance:     ledger.Amount{Value: c.OpeningBalance},
		Currency:           c.Currency,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getEnvDecimal(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
