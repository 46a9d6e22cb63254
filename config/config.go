package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

// Config is the complete riskguard configuration.
type Config struct {
	Engine     EngineConfig      `json:"engine" yaml:"engine"`
	Limits     risk.Limits       `json:"limits" yaml:"limits"`
	Portfolios []PortfolioConfig `json:"portfolios,omitempty" yaml:"portfolios,omitempty"`
	Journal    JournalConfig     `json:"journal" yaml:"journal"`
	History    HistoryConfig     `json:"history" yaml:"history"`
	Scheduler  SchedulerConfig   `json:"scheduler" yaml:"scheduler"`
	Server     ServerConfig      `json:"server" yaml:"server"`
	Log        LogConfig         `json:"log" yaml:"log"`
}

// EngineConfig seeds new portfolios and selects the VaR model.
type EngineConfig struct {
	InitialEquity float64 `json:"initial_equity" yaml:"initial_equity"`
	Timezone      string  `json:"timezone" yaml:"timezone"` // trading-day boundary, e.g. "America/New_York"
	VaRMethod     string  `json:"var_method" yaml:"var_method"`
	VaRWindowDays int     `json:"var_window_days" yaml:"var_window_days"`
	// AutoTrack creates unknown portfolios on first use instead of failing.
	AutoTrack bool            `json:"auto_track" yaml:"auto_track"`
	HeatCheck HeatCheckConfig `json:"heat_check" yaml:"heat_check"`
}

type HeatCheckConfig struct {
	DrawdownWarnRatio  float64 `json:"drawdown_warn_ratio" yaml:"drawdown_warn_ratio"`
	DailyLossWarnRatio float64 `json:"daily_loss_warn_ratio" yaml:"daily_loss_warn_ratio"`
	MinOverlap         int     `json:"min_overlap" yaml:"min_overlap"`
}

// PortfolioConfig pre-registers a portfolio. Zero InitialEquity falls back
// to the engine default; Limits, when set, replace the global limits.
type PortfolioConfig struct {
	ID            string       `json:"id" yaml:"id"`
	InitialEquity float64      `json:"initial_equity,omitempty" yaml:"initial_equity,omitempty"`
	Limits        *risk.Limits `json:"limits,omitempty" yaml:"limits,omitempty"`
}

// JournalConfig contains audit persistence parameters.
type JournalConfig struct {
	DBPath        string `json:"db_path" yaml:"db_path"`
	SpillPath     string `json:"spill_path,omitempty" yaml:"spill_path,omitempty"`
	MaxPending    int    `json:"max_pending" yaml:"max_pending"`
	RetryInterval string `json:"retry_interval" yaml:"retry_interval"` // e.g. "500ms"
	MaxBackoff    string `json:"max_backoff" yaml:"max_backoff"`
	ExportDir     string `json:"export_dir,omitempty" yaml:"export_dir,omitempty"`
}

// HistoryConfig locates return series used by VaR and heat checks.
type HistoryConfig struct {
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"` // <SYMBOL>.csv and portfolio_<id>.csv files
	UseJournal bool   `json:"use_journal" yaml:"use_journal"`
}

type SchedulerConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	SnapshotInterval string `json:"snapshot_interval" yaml:"snapshot_interval"`
	JobTimeout       string `json:"job_timeout" yaml:"job_timeout"`
}

type ServerConfig struct {
	Addr            string `json:"addr" yaml:"addr"`
	Mode            string `json:"mode" yaml:"mode"` // gin mode: debug, release or test
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // json or console
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// LoadFromFile loads configuration from a YAML or JSON file on top of Default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := risk.ValidateEquity(c.Engine.InitialEquity); err != nil {
		return fmt.Errorf("engine.initial_equity: %w", err)
	}
	if c.Engine.InitialEquity == 0 {
		return fmt.Errorf("engine.initial_equity must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if _, err := riskmodel.ParseMethod(c.Engine.VaRMethod); err != nil {
		return fmt.Errorf("engine.var_method: %w", err)
	}
	if c.Engine.VaRWindowDays <= 0 {
		return fmt.Errorf("engine.var_window_days must be positive")
	}
	hc := c.Engine.HeatCheck
	if hc.DrawdownWarnRatio <= 0 || hc.DrawdownWarnRatio > 1 {
		return fmt.Errorf("engine.heat_check.drawdown_warn_ratio must be in (0, 1]")
	}
	if hc.DailyLossWarnRatio <= 0 || hc.DailyLossWarnRatio > 1 {
		return fmt.Errorf("engine.heat_check.daily_loss_warn_ratio must be in (0, 1]")
	}
	if hc.MinOverlap < 2 {
		return fmt.Errorf("engine.heat_check.min_overlap must be at least 2")
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	seen := map[string]bool{}
	for i, p := range c.Portfolios {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("portfolios[%d].id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("portfolios[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if err := risk.ValidateEquity(p.InitialEquity); err != nil {
			return fmt.Errorf("portfolios[%d].initial_equity: %w", i, err)
		}
		if p.Limits != nil {
			if err := p.Limits.Validate(); err != nil {
				return fmt.Errorf("portfolios[%d].limits: %w", i, err)
			}
		}
	}

	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	if c.Journal.MaxPending < 0 {
		return fmt.Errorf("journal.max_pending must not be negative")
	}
	durations := []struct{ name, v string }{
		{"journal.retry_interval", c.Journal.RetryInterval},
		{"journal.max_backoff", c.Journal.MaxBackoff},
		{"scheduler.snapshot_interval", c.Scheduler.SnapshotInterval},
		{"scheduler.job_timeout", c.Scheduler.JobTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDuration(d.v); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if iv, _ := ParseDuration(c.Scheduler.SnapshotInterval); c.Scheduler.Enabled && iv <= 0 {
		return fmt.Errorf("scheduler.snapshot_interval must be positive when the scheduler is enabled")
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	return nil
}

// Location resolves Engine.Timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Engine.Timezone)
}

// ParseDuration accepts Go duration strings; empty means zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			InitialEquity: 10000,
			Timezone:      "UTC",
			VaRMethod:     string(riskmodel.MethodHistorical),
			VaRWindowDays: 252,
			AutoTrack:     true,
			HeatCheck: HeatCheckConfig{
				DrawdownWarnRatio:  0.8,
				DailyLossWarnRatio: 0.8,
				MinOverlap:         10,
			},
		},
		Limits: risk.DefaultLimits(),
		Journal: JournalConfig{
			DBPath:        "./riskguard.db",
			SpillPath:     "./riskguard-outbox.jsonl",
			MaxPending:    10000,
			RetryInterval: "500ms",
			MaxBackoff:    "30s",
			ExportDir:     "./export",
		},
		History: HistoryConfig{
			UseJournal: true,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			SnapshotInterval: "1h",
			JobTimeout:       "30s",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ShutdownTimeout: "10s",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}
