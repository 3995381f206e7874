package config

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MONITOR_INTERVAL", "")
	t.Setenv("PLATFORM_FEE_RATE", "")

	cfg := Load()
	check.Equal(t, "8080", cfg.Port)
	check.Equal(t, 60*time.Second, cfg.MonitorInterval)
	check.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.02")))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MONITOR_INTERVAL", "5s")
	t.Setenv("PLATFORM_FEE_RATE", "0.03")
	t.Setenv("MIN_BID_INCREMENT", "not-a-number")

	cfg := Load()
	check.Equal(t, "9090", cfg.Port)
	check.Equal(t, 5*time.Second, cfg.MonitorInterval)
	check.True(t, cfg.PlatformFeeRate.Equal(decimal.RequireFromString("0.03")))
	check.True(t, cfg.MinBidIncrement.Equal(decimal.RequireFromString("0.05")))
}
