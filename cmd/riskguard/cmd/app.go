package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/config"
	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/internal/history"
	"github.com/rustyeddy/riskguard/internal/logging"
	"github.com/rustyeddy/riskguard/internal/telemetry"
	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/riskmodel"
)

// app is everything a command needs, wired from one Config.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *telemetry.Metrics
	db      *journal.SQLite
	outbox  *journal.Outbox
	engine  *engine.Engine
	loc     *time.Location

	syncLog func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, syncLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, syncLog: syncLog}

	if a.loc, err = cfg.Location(); err != nil {
		return nil, err
	}

	a.reg = prometheus.NewRegistry()
	a.metrics = telemetry.New(a.reg)

	a.db, err = journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	ocfg := journal.DefaultOutboxConfig()
	ocfg.SpillPath = cfg.Journal.SpillPath
	if cfg.Journal.MaxPending > 0 {
		ocfg.MaxPending = cfg.Journal.MaxPending
	}
	if d, _ := config.ParseDuration(cfg.Journal.RetryInterval); d > 0 {
		ocfg.RetryInterval = d
	}
	if d, _ := config.ParseDuration(cfg.Journal.MaxBackoff); d > 0 {
		ocfg.MaxBackoff = d
	}
	a.outbox, err = journal.NewOutbox(a.db, ocfg)
	if err != nil {
		_ = a.db.Close()
		return nil, fmt.Errorf("outbox: %w", err)
	}
	a.metrics.WatchOutbox(a.reg, a.outbox.Pending)

	var chain history.Chain
	if cfg.History.Dir != "" {
		chain = append(chain, history.CSVProvider{Dir: cfg.History.Dir})
	}
	if cfg.History.UseJournal {
		chain = append(chain, history.JournalProvider{Reader: a.db, Location: a.loc})
	}

	opts := engine.Options{
		Logger:        log,
		Metrics:       a.metrics,
		Journal:       a.outbox,
		Reader:        a.db,
		Store:         a.db,
		Location:      a.loc,
		InitialEquity: cfg.Engine.InitialEquity,
		Limits:        cfg.Limits,
		VaRMethod:     riskmodel.Method(cfg.Engine.VaRMethod),
		VaRWindowDays: cfg.Engine.VaRWindowDays,
		HeatChecker: riskmodel.HeatChecker{
			DrawdownWarnRatio:  cfg.Engine.HeatCheck.DrawdownWarnRatio,
			DailyLossWarnRatio: cfg.Engine.HeatCheck.DailyLossWarnRatio,
			MinOverlap:         cfg.Engine.HeatCheck.MinOverlap,
		},
		AutoTrack: cfg.Engine.AutoTrack,
	}
	if len(chain) > 0 {
		opts.Returns = chain
	}
	if a.engine, err = engine.New(opts); err != nil {
		_ = a.Close()
		return nil, err
	}

	for _, p := range cfg.Portfolios {
		if _, err := a.engine.Track(ctx, p.ID, engine.TrackOptions{InitialEquity: p.InitialEquity, Limits: p.Limits}); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("track %s: %w", p.ID, err)
		}
	}
	return a, nil
}

// Close drains the outbox, which also closes the database.
func (a *app) Close() error {
	var errs []error
	if a.outbox != nil {
		errs = append(errs, a.outbox.Close())
	} else if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.syncLog != nil {
		_ = a.syncLog()
	}
	return errors.Join(errs...)
}

// withApp loads config, builds the app and closes it after fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	return errors.Join(fn(ctx, a), a.Close())
}
