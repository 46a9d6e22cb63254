package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rustyeddy/riskguard/config"
)

var rootCmd = &cobra.Command{
	Use:   "riskguard",
	Short: "Portfolio risk engine: pre-trade checks, drawdown halts and VaR",
	Long: `Riskguard gatekeeps trades against per-portfolio risk limits.

It provides tools for:
  - Pre-trade checks against drawdown, exposure and risk/reward limits
  - Authoritative equity, peak and daily P&L tracking with automatic halts
  - Historical and parametric VaR / CVaR estimation
  - Correlation and concentration heat checks
  - An append-only audit journal of every decision

Every setting can come from a config file, a RISKGUARD_* environment
variable or a flag, in increasing order of precedence.`,
	SilenceUsage: true,
}

var (
	cfgFile string
	envFile string
	v       = viper.New()
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return loadEnv()
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading RISKGUARD_* variables")
	pf.String("db", "", "path to the SQLite database")
	pf.String("log-level", "", "log level: debug, info, warn or error")

	_ = v.BindPFlag("journal.db_path", pf.Lookup("db"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	v.SetEnvPrefix("RISKGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadEnv reads envFile when present. A missing default .env is fine.
func loadEnv() error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !rootCmd.PersistentFlags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	return nil
}

// overrides are the keys that flags and RISKGUARD_* variables may set.
var overrides = []struct {
	key   string
	apply func(c *config.Config, v *viper.Viper, key string)
}{
	{"journal.db_path", func(c *config.Config, v *viper.Viper, k string) { c.Journal.DBPath = v.GetString(k) }},
	{"journal.spill_path", func(c *config.Config, v *viper.Viper, k string) { c.Journal.SpillPath = v.GetString(k) }},
	{"log.level", func(c *config.Config, v *viper.Viper, k string) { c.Log.Level = v.GetString(k) }},
	{"log.format", func(c *config.Config, v *viper.Viper, k string) { c.Log.Format = v.GetString(k) }},
	{"log.file", func(c *config.Config, v *viper.Viper, k string) { c.Log.File = v.GetString(k) }},
	{"server.addr", func(c *config.Config, v *viper.Viper, k string) { c.Server.Addr = v.GetString(k) }},
	{"server.mode", func(c *config.Config, v *viper.Viper, k string) { c.Server.Mode = v.GetString(k) }},
	{"engine.timezone", func(c *config.Config, v *viper.Viper, k string) { c.Engine.Timezone = v.GetString(k) }},
	{"engine.initial_equity", func(c *config.Config, v *viper.Viper, k string) { c.Engine.InitialEquity = v.GetFloat64(k) }},
	{"engine.var_method", func(c *config.Config, v *viper.Viper, k string) { c.Engine.VaRMethod = v.GetString(k) }},
	{"engine.auto_track", func(c *config.Config, v *viper.Viper, k string) { c.Engine.AutoTrack = v.GetBool(k) }},
	{"history.dir", func(c *config.Config, v *viper.Viper, k string) { c.History.Dir = v.GetString(k) }},
	{"scheduler.enabled", func(c *config.Config, v *viper.Viper, k string) { c.Scheduler.Enabled = v.GetBool(k) }},
}

// loadConfig layers the config file, environment and flags over the defaults.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(cfg, v, o.key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
