package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, 5, cfg.Scanner.MaxConcurrentScans)
	assert.Equal(t, 0.3, cfg.Detection.MinProfitPct)
	assert.Equal(t, "simulated", cfg.MarketData.Feed)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 0.1, cfg.Detection.VenueFeePct["binance"])
	assert.Equal(t, "0.3", cfg.Detection.MinProfitPctDecimal().String())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanner.yaml")
	yaml := `
scanner:
  interval: 2s
  batch_size: 7
  instruments: ["BTC/USDT"]
detection:
  min_profit_pct: 0.5
storage:
  driver: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("ARB_EXECUTION_ADAPTER", "rest")
	t.Setenv("ARB_GATEWAY_URL", "http://gateway.local")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, 7, cfg.Scanner.BatchSize)
	assert.Equal(t, []string{"BTC/USDT"}, cfg.Scanner.Instruments)
	assert.Equal(t, 0.5, cfg.Detection.MinProfitPct)
	assert.Equal(t, "rest", cfg.Execution.Adapter)
	assert.Equal(t, "http://gateway.local", cfg.Execution.GatewayURL)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"interval below one second", func(c *Config) { c.Scanner.Interval = 500 * time.Millisecond }, "scanner.interval"},
		{"zero concurrency", func(c *Config) { c.Scanner.MaxConcurrentScans = 0 }, "max_concurrent_scans"},
		{"non-positive min profit", func(c *Config) { c.Detection.MinProfitPct = 0 }, "min_profit_pct"},
		{"disabled emergency threshold", func(c *Config) { c.Risk.EmergencyDrawdownPct = 0 }, "emergency"},
		{"unknown feed", func(c *Config) { c.MarketData.Feed = "ftx" }, "marketdata.feed"},
		{"rest without gateway", func(c *Config) { c.Execution.Adapter = "rest" }, "gateway_url"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"kafka without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, "kafka"},
		{"telegram without chat", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.Token = "x" }, "telegram"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
