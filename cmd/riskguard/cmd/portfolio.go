package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/internal/report"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

var statusCmd = &cobra.Command{
	Use:   "status <portfolio>",
	Short: "Show equity, drawdown, halt state and limits",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var equityCmd = &cobra.Command{
	Use:   "equity <portfolio> <value>",
	Short: "Mark a portfolio to a new equity value",
	Long: `Record the latest equity. Peak equity and daily P&L are updated and
trading halts automatically when a drawdown or daily-loss limit is breached.

Example:
  riskguard equity main 9450.25`,
	Args: cobra.ExactArgs(2),
	RunE: runEquity,
}

var checkCmd = &cobra.Command{
	Use:   "check <portfolio>",
	Short: "Run a pre-trade risk check",
	Long: `Evaluate a prospective trade against the portfolio's limits. The
decision is written to the audit journal; it does not open a position.

Example:
  riskguard check main --symbol BTC/USD --side buy --size 0.01 --entry 50000 --stop 48000`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Size a position so a stop-out loses a fixed fraction of equity",
	Long: `Compute the position size for a given entry and stop.

With --portfolio the portfolio's current equity and max trade risk are used
unless --equity or --risk override them.

Examples:
  riskguard size --equity 10000 --entry 50000 --stop 48000 --risk 0.02
  riskguard size --portfolio main --entry 50000 --stop 48000`,
	Args: cobra.NoArgs,
	RunE: runSize,
}

var resetDailyCmd = &cobra.Command{
	Use:   "reset-daily <portfolio>",
	Short: "Start a new trading day",
	Long: `Move the daily baseline to current equity and clear a daily-loss halt.
Running it twice on the same trading day changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runResetDaily,
}

var haltCmd = &cobra.Command{
	Use:   "halt <portfolio> <reason>",
	Short: "Halt trading manually",
	Args:  cobra.ExactArgs(2),
	RunE:  runHalt,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <portfolio>",
	Short: "Resume trading after any halt",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var varCmd = &cobra.Command{
	Use:   "var <portfolio>",
	Short: "Estimate one-day VaR and CVaR",
	Args:  cobra.ExactArgs(1),
	RunE:  runVaR,
}

var heatCmd = &cobra.Command{
	Use:   "heat <portfolio>",
	Short: "Scan for drawdown, concentration and correlation risk",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeat,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <portfolio>",
	Short: "Record a metrics snapshot in the journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshot,
}

var limitsCmd = &cobra.Command{
	Use:   "limits <portfolio>",
	Short: "Show or change a portfolio's risk limits",
	Long: `Without flags the current limits are printed. Each flag given changes
that one limit and leaves the others as they are.

Example:
  riskguard limits main --max-open-positions 5 --min-risk-reward 2`,
	Args: cobra.ExactArgs(1),
	RunE: runLimits,
}

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Record opened and closed positions",
}

var positionOpenCmd = &cobra.Command{
	Use:   "open <portfolio> <symbol> <notional>",
	Short: "Record an opened position",
	Args:  cobra.ExactArgs(3),
	RunE:  runPositionOpen,
}

var positionCloseCmd = &cobra.Command{
	Use:   "close <portfolio> <symbol>",
	Short: "Record a closed position",
	Args:  cobra.ExactArgs(2),
	RunE:  runPositionClose,
}

var (
	checkSymbol string
	checkSide   string
	checkSize   float64
	checkEntry  float64
	checkStop   float64
	checkTarget float64

	sizePortfolio string
	sizeEquity    float64
	sizeEntry     float64
	sizeStop      float64
	sizeRisk      float64

	varMethod string
	varDays   int
)

func init() {
	rootCmd.AddCommand(statusCmd, equityCmd, checkCmd, sizeCmd, resetDailyCmd,
		haltCmd, resumeCmd, varCmd, heatCmd, snapshotCmd, limitsCmd, positionCmd)
	positionCmd.AddCommand(positionOpenCmd, positionCloseCmd)

	f := checkCmd.Flags()
	f.StringVar(&checkSymbol, "symbol", "", "instrument symbol (required)")
	f.StringVar(&checkSide, "side", "buy", "buy or sell")
	f.Float64Var(&checkSize, "size", 0, "position size in units (required)")
	f.Float64Var(&checkEntry, "entry", 0, "entry price (required)")
	f.Float64Var(&checkStop, "stop", 0, "stop-loss price")
	f.Float64Var(&checkTarget, "target", 0, "take-profit price")
	_ = checkCmd.MarkFlagRequired("symbol")
	_ = checkCmd.MarkFlagRequired("size")
	_ = checkCmd.MarkFlagRequired("entry")

	f = sizeCmd.Flags()
	f.StringVar(&sizePortfolio, "portfolio", "", "size off this portfolio's equity")
	f.Float64Var(&sizeEquity, "equity", 0, "account equity")
	f.Float64Var(&sizeEntry, "entry", 0, "entry price (required)")
	f.Float64Var(&sizeStop, "stop", 0, "stop-loss price (required)")
	f.Float64Var(&sizeRisk, "risk", 0.02, "fraction of equity to risk")
	_ = sizeCmd.MarkFlagRequired("entry")
	_ = sizeCmd.MarkFlagRequired("stop")

	varCmd.Flags().StringVar(&varMethod, "method", "", "historical or parametric (default from config)")
	varCmd.Flags().IntVar(&varDays, "days", 0, "lookback window in observations (default from config)")

	f = limitsCmd.Flags()
	f.Float64("max-drawdown", 0, "max portfolio drawdown fraction")
	f.Float64("max-trade-risk", 0, "max single trade risk fraction")
	f.Float64("max-daily-loss", 0, "max daily loss fraction")
	f.Int("max-open-positions", 0, "max open positions")
	f.Float64("max-position-size", 0, "max position size as a fraction of equity")
	f.Float64("max-correlation", 0, "max pairwise correlation")
	f.Float64("max-leverage", 0, "max gross leverage")
	f.Float64("min-risk-reward", 0, "min reward/risk ratio, 0 disables")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return printStatus(ctx, cmd, a, args[0])
	})
}

func printStatus(ctx context.Context, cmd *cobra.Command, a *app, id string) error {
	st, err := a.engine.Status(ctx, id)
	if err != nil {
		return err
	}
	l, err := a.engine.Limits(ctx, id)
	if err != nil {
		return err
	}
	h, err := a.engine.Holdings(ctx, id)
	if err != nil {
		return err
	}
	report.Status(cmd.OutOrStdout(), id, st, l, h)
	return nil
}

func runEquity(cmd *cobra.Command, args []string) error {
	equity, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("equity: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.engine.UpdateEquity(ctx, args[0], equity); err != nil {
			return err
		}
		return printStatus(ctx, cmd, a, args[0])
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	side, err := risk.ParseSide(checkSide)
	if err != nil {
		return err
	}
	req := risk.TradeRequest{Symbol: checkSymbol, Side: side, Size: checkSize, EntryPrice: checkEntry}
	if cmd.Flags().Changed("stop") {
		req.StopLossPrice = &checkStop
	}
	if cmd.Flags().Changed("target") {
		req.TakeProfitPrice = &checkTarget
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		d, err := a.engine.CheckTrade(ctx, args[0], req)
		if err != nil {
			return err
		}
		report.Decision(cmd.OutOrStdout(), req, d)
		return nil
	})
}

func runSize(cmd *cobra.Command, args []string) error {
	if sizePortfolio == "" {
		s, err := risk.SizePosition(risk.SizingInput{
			Equity:        sizeEquity,
			EntryPrice:    sizeEntry,
			StopLossPrice: sizeStop,
			RiskPerTrade:  sizeRisk,
		})
		if err != nil {
			return err
		}
		printSizing(cmd, s)
		return nil
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		var rpt *float64
		if cmd.Flags().Changed("risk") {
			rpt = &sizeRisk
		}
		var (
			s   risk.Sizing
			err error
		)
		if cmd.Flags().Changed("equity") {
			l, lerr := a.engine.Limits(ctx, sizePortfolio)
			if lerr != nil {
				return lerr
			}
			in := risk.SizingInput{Equity: sizeEquity, EntryPrice: sizeEntry, StopLossPrice: sizeStop, RiskPerTrade: l.MaxSingleTradeRisk}
			if rpt != nil {
				in.RiskPerTrade = *rpt
			}
			s, err = risk.SizePosition(in)
		} else {
			s, err = a.engine.PositionSize(ctx, sizePortfolio, sizeEntry, sizeStop, rpt)
		}
		if err != nil {
			return err
		}
		printSizing(cmd, s)
		return nil
	})
}

func printSizing(cmd *cobra.Command, s risk.Sizing) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Size:           %.8g\n", s.Size)
	fmt.Fprintf(out, "Risk amount:    %.2f\n", s.RiskAmount)
	fmt.Fprintf(out, "Position value: %.2f\n", s.PositionValue)
	fmt.Fprintf(out, "Per-unit risk:  %.8g\n", s.PerUnitRisk)
}

func runResetDaily(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.engine.ResetDaily(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Baseline.Message)
		if res.Halt.Changed {
			fmt.Fprintln(out, res.Halt.Message)
		}
		return nil
	})
}

func runHalt(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tr, err := a.engine.Halt(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tr.Message)
		return nil
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tr, err := a.engine.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tr.Message)
		return nil
	})
}

func runVaR(cmd *cobra.Command, args []string) error {
	var o engine.VaROptions
	if varMethod != "" {
		m, err := riskmodel.ParseMethod(varMethod)
		if err != nil {
			return err
		}
		o.Method = m
	}
	o.Days = varDays

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.engine.VaR(ctx, args[0], o)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Method:  %s over %d observations\n", res.Method, res.WindowDays)
		fmt.Fprintf(out, "VaR 95:  %.2f   CVaR 95: %.2f\n", res.VaR95, res.CVaR95)
		fmt.Fprintf(out, "VaR 99:  %.2f   CVaR 99: %.2f\n", res.VaR99, res.CVaR99)
		if res.LowConfidence {
			fmt.Fprintf(out, "warning: fewer than %d observations, estimate is low confidence\n", riskmodel.LowConfidenceObservations)
		}
		return nil
	})
}

func runHeat(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.engine.HeatCheck(ctx, args[0])
		if err != nil {
			return err
		}
		report.HeatCheck(cmd.OutOrStdout(), res)
		return nil
	})
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		m, err := a.engine.RecordMetricsSnapshot(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: equity %.2f, VaR95 %.2f, healthy %t\n", m.ID, m.Equity, m.VaR95, m.Healthy)
		return nil
	})
}

func runLimits(cmd *cobra.Command, args []string) error {
	upd, err := limitsUpdateFromFlags(cmd)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if !upd.IsEmpty() {
			if _, err := a.engine.UpdateLimits(ctx, args[0], upd); err != nil {
				return err
			}
		}
		return printStatus(ctx, cmd, a, args[0])
	})
}

func limitsUpdateFromFlags(cmd *cobra.Command) (risk.LimitsUpdate, error) {
	var upd risk.LimitsUpdate
	f := cmd.Flags()
	floats := []struct {
		name string
		dst  **float64
	}{
		{"max-drawdown", &upd.MaxPortfolioDrawdown},
		{"max-trade-risk", &upd.MaxSingleTradeRisk},
		{"max-daily-loss", &upd.MaxDailyLoss},
		{"max-position-size", &upd.MaxPositionSizePct},
		{"max-correlation", &upd.MaxCorrelation},
		{"max-leverage", &upd.MaxLeverage},
		{"min-risk-reward", &upd.MinRiskReward},
	}
	for _, fl := range floats {
		if !f.Changed(fl.name) {
			continue
		}
		val, err := f.GetFloat64(fl.name)
		if err != nil {
			return upd, err
		}
		*fl.dst = &val
	}
	if f.Changed("max-open-positions") {
		n, err := f.GetInt("max-open-positions")
		if err != nil {
			return upd, err
		}
		upd.MaxOpenPositions = &n
	}
	return upd, nil
}

func runPositionOpen(cmd *cobra.Command, args []string) error {
	notional, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("notional: %w", err)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.engine.RecordOpenPosition(ctx, args[0], args[1], notional); err != nil {
			return err
		}
		return printStatus(ctx, cmd, a, args[0])
	})
}

func runPositionClose(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.engine.RecordClosePosition(ctx, args[0], args[1]); err != nil {
			return err
		}
		return printStatus(ctx, cmd, a, args[0])
	})
}
