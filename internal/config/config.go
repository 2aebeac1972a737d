// Package config provides configuration management for the service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultValidityHours is used when cache.validity_hours is unset.
	defaultValidityHours = 12
	// defaultStrikeInterval is used when market.strike_interval is unset.
	defaultStrikeInterval = 50
	// defaultLotSize is used when market.lot_size is unset.
	defaultLotSize = 65
	// defaultExpiryCutoffHour is used when market.expiry_cutoff_hour is unset.
	defaultExpiryCutoffHour = 16
	// defaultDashboardPort is used when dashboard.port is unset.
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Market      MarketConfig      `yaml:"market"`
	Cache       CacheConfig       `yaml:"cache"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	Timezone string `yaml:"timezone"`  // IANA name, e.g. Asia/Kolkata
}

// MarketConfig defines the traded instrument and its exchange calendar.
type MarketConfig struct {
	Underlying       string `yaml:"underlying"`
	InstrumentFamily string `yaml:"instrument_family"`
	StrikeInterval   int    `yaml:"strike_interval"`
	LotSize          int    `yaml:"lot_size"`
	ExpiryWeekday    string `yaml:"expiry_weekday"` // Monday..Sunday
	ExpiryCutoffHour int    `yaml:"expiry_cutoff_hour"`
}

// CacheConfig defines the securities cache inputs and persistence.
type CacheConfig struct {
	Path               string `yaml:"path"`
	ValidityHours      int    `yaml:"validity_hours"`
	SecurityMasterPath string `yaml:"security_master_path"`
	FallbackMasterPath string `yaml:"fallback_master_path"`
}

// LedgerConfig defines where trade records are persisted, one file per mode.
type LedgerConfig struct {
	Dir       string `yaml:"dir"`
	LivePath  string `yaml:"live_path"`
	PaperPath string `yaml:"paper_path"`
}

// DashboardConfig defines the HTTP API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Load reads, expands and validates the YAML configuration at configPath.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks required fields, applies defaults and normalizes paths.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	if c.Environment.Timezone == "" {
		c.Environment.Timezone = "Asia/Kolkata"
	}

	// Market validation
	if c.Market.Underlying == "" {
		return fmt.Errorf("market.underlying is required")
	}
	if c.Market.InstrumentFamily == "" {
		c.Market.InstrumentFamily = "OPTIDX"
	}
	if c.Market.StrikeInterval == 0 {
		c.Market.StrikeInterval = defaultStrikeInterval
	}
	if c.Market.StrikeInterval < 0 {
		return fmt.Errorf("market.strike_interval must be > 0")
	}
	if c.Market.LotSize == 0 {
		c.Market.LotSize = defaultLotSize
	}
	if c.Market.LotSize < 0 {
		return fmt.Errorf("market.lot_size must be > 0")
	}
	if c.Market.ExpiryWeekday == "" {
		c.Market.ExpiryWeekday = "Thursday"
	}
	if _, err := parseWeekday(c.Market.ExpiryWeekday); err != nil {
		return fmt.Errorf("market.expiry_weekday: %w", err)
	}
	if c.Market.ExpiryCutoffHour == 0 {
		c.Market.ExpiryCutoffHour = defaultExpiryCutoffHour
	}
	if c.Market.ExpiryCutoffHour < 0 || c.Market.ExpiryCutoffHour > 23 {
		return fmt.Errorf("market.expiry_cutoff_hour must be between 0 and 23")
	}

	// Cache validation
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	if c.Cache.ValidityHours == 0 {
		c.Cache.ValidityHours = defaultValidityHours
	}
	if c.Cache.ValidityHours < 0 {
		return fmt.Errorf("cache.validity_hours must be > 0")
	}
	if c.Cache.SecurityMasterPath == "" {
		return fmt.Errorf("cache.security_master_path is required")
	}

	// Ledger validation: either a directory or explicit per-mode paths.
	if c.Ledger.Dir == "" && (c.Ledger.LivePath == "" || c.Ledger.PaperPath == "") {
		return fmt.Errorf("ledger.dir or both ledger.live_path and ledger.paper_path are required")
	}
	if c.Ledger.LivePath == "" {
		c.Ledger.LivePath = filepath.Join(c.Ledger.Dir, "trades_live.json")
	}
	if c.Ledger.PaperPath == "" {
		c.Ledger.PaperPath = filepath.Join(c.Ledger.Dir, "trades_paper.json")
	}

	// Dashboard validation
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	return nil
}

// IsPaperTrading reports whether the configured mode simulates orders.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// CacheValidity returns the configured cache validity as a duration.
func (c *Config) CacheValidity() time.Duration {
	return time.Duration(c.Cache.ValidityHours) * time.Hour
}

// ExpiryWeekday returns the parsed weekly expiry weekday.
func (c *Config) ExpiryWeekday() time.Weekday {
	wd, err := parseWeekday(c.Market.ExpiryWeekday)
	if err != nil {
		// Validate() already rejected unknown names.
		return time.Thursday
	}
	return wd
}

// Location resolves the configured timezone, falling back to a fixed IST
// offset when the host has no tzdata.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Environment.Timezone)
	if err != nil {
		return time.FixedZone("IST", int(5*time.Hour+30*time.Minute)/int(time.Second))
	}
	return loc
}

func parseWeekday(name string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), name) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
