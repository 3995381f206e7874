package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port            string
	DBDriver        string
	DBDSN           string
	LogFile         string
	LogLevel        string
	RedisAddr       string // empty disables the shared cache and sweep lock
	NATSURL         string // empty disables event publishing
	MonitorInterval time.Duration
	PlatformFeeRate decimal.Decimal
	MinBidIncrement decimal.Decimal
	LedgerSigner    string
	LedgerTimeout   time.Duration
	AdminTokenHash  string
}

// Load reads the environment, after applying a .env file when one is present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            env("PORT", "8080"),
		DBDriver:        env("DB_DRIVER", "sqlite"),
		DBDSN:           env("DB_DSN", "lotauction.db"),
		LogFile:         env("LOG_FILE", ""),
		LogLevel:        env("LOG_LEVEL", "info"),
		RedisAddr:       env("REDIS_ADDR", ""),
		NATSURL:         env("NATS_URL", ""),
		MonitorInterval: duration("MONITOR_INTERVAL", 60*time.Second),
		PlatformFeeRate: dec("PLATFORM_FEE_RATE", "0.02"),
		MinBidIncrement: dec("MIN_BID_INCREMENT", "0.05"),
		LedgerSigner:    env("LEDGER_SIGNER", "0x0000000000000000000000000000000000000001"),
		LedgerTimeout:   duration("LEDGER_TIMEOUT", 15*time.Second),
		AdminTokenHash:  env("ADMIN_TOKEN_HASH", ""),
	}
}

// Fields is the loggable view of the config; secrets are left out.
func (c Config) Fields() map[string]any {
	return map[string]any{
		"port":              c.Port,
		"db_driver":         c.DBDriver,
		"log_file":          c.LogFile,
		"log_level":         c.LogLevel,
		"redis":             c.RedisAddr != "",
		"nats":              c.NATSURL != "",
		"monitor_interval":  c.MonitorInterval.String(),
		"platform_fee_rate": c.PlatformFeeRate.String(),
		"min_bid_increment": c.MinBidIncrement.String(),
		"ledger_signer":     c.LedgerSigner,
		"ledger_timeout":    c.LedgerTimeout.String(),
		"admin_guard":       c.AdminTokenHash != "",
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

func dec(key, def string) decimal.Decimal {
	if d, err := decimal.NewFromString(os.Getenv(key)); err == nil && !d.IsNegative() {
		return d
	}
	return decimal.RequireFromString(def)
}
