package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `environment:
  mode: paper
  log_level: info
  timezone: Asia/Kolkata

market:
  underlying: NIFTY
  strike_interval: 50
  lot_size: 65
  expiry_weekday: Thursday

cache:
  path: data/cache.json
  validity_hours: 12
  security_master_path: data/master.csv

ledger:
  dir: data

dashboard:
  port: 8080
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Environment.Mode)
	assert.True(t, cfg.IsPaperTrading())
	assert.Equal(t, "NIFTY", cfg.Market.Underlying)
	assert.Equal(t, 50, cfg.Market.StrikeInterval)
	assert.Equal(t, time.Thursday, cfg.ExpiryWeekday())
	assert.Equal(t, 12*time.Hour, cfg.CacheValidity())
	assert.Equal(t, filepath.Join("data", "trades_live.json"), cfg.Ledger.LivePath)
	assert.Equal(t, filepath.Join("data", "trades_paper.json"), cfg.Ledger.PaperPath)
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := `environment:
  mode: live
market:
  underlying: NIFTY
cache:
  path: data/cache.json
  security_master_path: data/master.csv
ledger:
  dir: data
`
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)

	assert.Equal(t, "OPTIDX", cfg.Market.InstrumentFamily)
	assert.Equal(t, 50, cfg.Market.StrikeInterval)
	assert.Equal(t, 65, cfg.Market.LotSize)
	assert.Equal(t, time.Thursday, cfg.ExpiryWeekday())
	assert.Equal(t, 16, cfg.Market.ExpiryCutoffHour)
	assert.Equal(t, 12*time.Hour, cfg.CacheValidity())
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Equal(t, "Asia/Kolkata", cfg.Environment.Timezone)
	assert.False(t, cfg.IsPaperTrading())
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("MASTER_PATH", "/srv/master.csv")
	content := `environment:
  mode: paper
market:
  underlying: NIFTY
cache:
  path: data/cache.json
  security_master_path: ${MASTER_PATH}
ledger:
  dir: data
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "/srv/master.csv", cfg.Cache.SecurityMasterPath)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, validYAML+"\nunknown_section:\n  key: value\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Environment: EnvironmentConfig{Mode: "paper"},
			Market:      MarketConfig{Underlying: "NIFTY"},
			Cache:       CacheConfig{Path: "c.json", SecurityMasterPath: "m.csv"},
			Ledger:      LedgerConfig{Dir: "data"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Environment.Mode = "demo" }, "environment.mode"},
		{"missing underlying", func(c *Config) { c.Market.Underlying = "" }, "market.underlying"},
		{"bad weekday", func(c *Config) { c.Market.ExpiryWeekday = "Someday" }, "market.expiry_weekday"},
		{"bad cutoff", func(c *Config) { c.Market.ExpiryCutoffHour = 25 }, "expiry_cutoff_hour"},
		{"missing cache path", func(c *Config) { c.Cache.Path = "" }, "cache.path"},
		{"missing master", func(c *Config) { c.Cache.SecurityMasterPath = "" }, "security_master_path"},
		{"missing ledger", func(c *Config) { c.Ledger = LedgerConfig{} }, "ledger.dir"},
		{"explicit ledger paths", func(c *Config) {
			c.Ledger = LedgerConfig{LivePath: "l.json", PaperPath: "p.json"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLocationFallsBack(t *testing.T) {
	cfg := Config{Environment: EnvironmentConfig{Timezone: "Not/AZone"}}
	loc := cfg.Location()
	require.NotNil(t, loc)

	_, offset := time.Date(2026, time.September, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, int(5*time.Hour+30*time.Minute)/int(time.Second), offset)
}
