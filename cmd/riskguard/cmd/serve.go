package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/riskguard/config"
	"github.com/rustyeddy/riskguard/internal/api"
	"github.com/rustyeddy/riskguard/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduler",
	Long: `Serve the risk API and run scheduled jobs until interrupted.

The scheduler takes a metrics snapshot of every tracked portfolio on each
snapshot interval and resets daily baselines at local midnight. A reset
also runs at startup so a restart after midnight catches up.

Example:
  riskguard serve --config riskguard.yaml --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return withApp(cmd, func(ctx context.Context, a *app) error {
		n, err := a.engine.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore portfolios: %w", err)
		}
		a.log.Info("riskguard starting",
			zap.String("version", version),
			zap.Int("portfolios", n),
			zap.String("db", a.cfg.Journal.DBPath),
		)

		shutdown, _ := config.ParseDuration(a.cfg.Server.ShutdownTimeout)
		srv := api.New(a.engine, api.Options{
			Addr:            a.cfg.Server.Addr,
			Mode:            a.cfg.Server.Mode,
			ShutdownTimeout: shutdown,
			Logger:          a.log,
			Metrics:         a.metrics,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })

		if a.cfg.Scheduler.Enabled {
			sched := newScheduler(a)
			sched.RunDaily(gctx)
			g.Go(func() error { return sched.Run(gctx) })
		}

		err = g.Wait()
		a.log.Info("riskguard stopped", zap.Error(err))
		return err
	})
}

func newScheduler(a *app) *scheduler.Scheduler {
	interval, _ := config.ParseDuration(a.cfg.Scheduler.SnapshotInterval)
	timeout, _ := config.ParseDuration(a.cfg.Scheduler.JobTimeout)

	s := scheduler.New(scheduler.Options{
		Logger:   a.log,
		Metrics:  a.metrics,
		Location: a.loc,
		Interval: interval,
		Timeout:  timeout,
	})
	s.EveryEach("metrics_snapshot", a.engine.PortfolioIDs, func(ctx context.Context, id string) error {
		_, err := a.engine.RecordMetricsSnapshot(ctx, id)
		return err
	})
	s.DailyEach("reset_daily", a.engine.PortfolioIDs, func(ctx context.Context, id string) error {
		res, err := a.engine.ResetDaily(ctx, id)
		if err == nil && res.Halt.Changed {
			a.log.Info("daily-loss halt cleared", zap.String("portfolio", id))
		}
		return err
	})
	return s
}
