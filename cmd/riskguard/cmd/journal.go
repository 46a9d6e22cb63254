package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskguard/internal/report"
	"github.com/rustyeddy/riskguard/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query and export the audit journal",
	Long: `Query and export audit records from the SQLite journal.

Subcommands:
  trades  - List trade checks, newest first
  metrics - List metric snapshots, oldest first
  events  - List halts, resumes, resets and limit changes
  export  - Write a portfolio's journal to xlsx or CSV

Examples:
  riskguard journal trades main --limit 20
  riskguard journal trades main --day 2024-01-15 --org
  riskguard journal export main --xlsx main.xlsx`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <portfolio>",
	Short: "List trade checks",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalMetricsCmd = &cobra.Command{
	Use:   "metrics <portfolio>",
	Short: "List metric snapshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalMetrics,
}

var journalEventsCmd = &cobra.Command{
	Use:   "events <portfolio>",
	Short: "List risk events",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEvents,
}

var journalExportCmd = &cobra.Command{
	Use:   "export <portfolio>",
	Short: "Export a portfolio's journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalExport,
}

var (
	journalLimit int
	journalDay   string
	journalSince string
	journalOrg   bool

	exportXLSX string
	exportCSV  string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd, journalMetricsCmd, journalEventsCmd, journalExportCmd)

	pf := journalCmd.PersistentFlags()
	pf.IntVarP(&journalLimit, "limit", "n", 50, "max rows, 0 for all")
	pf.StringVar(&journalDay, "day", "", "only this trading day (YYYY-MM-DD)")
	pf.StringVar(&journalSince, "since", "", "only records at or after this RFC 3339 time")

	journalTradesCmd.Flags().BoolVar(&journalOrg, "org", false, "print as org-mode entries")

	journalExportCmd.Flags().StringVar(&exportXLSX, "xlsx", "", "write an xlsx workbook to this path")
	journalExportCmd.Flags().StringVar(&exportCSV, "csv", "", "write CSV files into this directory")
}

func journalQuery(loc *time.Location) (journal.Query, error) {
	q := journal.Query{Limit: journalLimit}
	if journalDay != "" {
		start, end, err := dayBounds(loc, journalDay)
		if err != nil {
			return q, fmt.Errorf("day: %w", err)
		}
		q.Since, q.Until = start, end
	}
	if journalSince != "" {
		t, err := time.Parse(time.RFC3339, journalSince)
		if err != nil {
			return q, fmt.Errorf("since: %w", err)
		}
		q.Since = t
	}
	return q, nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		q, err := journalQuery(a.loc)
		if err != nil {
			return err
		}
		recs, err := a.engine.TradeLog(ctx, args[0], q)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		if journalOrg {
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeChecksOrg(recs))
			return nil
		}
		report.TradeLog(cmd.OutOrStdout(), recs)
		return nil
	})
}

func runJournalMetrics(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		q, err := journalQuery(a.loc)
		if err != nil {
			return err
		}
		recs, err := a.engine.MetricHistory(ctx, args[0], q)
		if err != nil {
			return fmt.Errorf("query metrics: %w", err)
		}
		report.MetricHistory(cmd.OutOrStdout(), recs)
		return nil
	})
}

func runJournalEvents(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		q, err := journalQuery(a.loc)
		if err != nil {
			return err
		}
		recs, err := a.engine.Events(ctx, args[0], q)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		report.Events(cmd.OutOrStdout(), recs)
		return nil
	})
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	if exportXLSX == "" && exportCSV == "" {
		return errors.New("nothing to do: pass --xlsx and/or --csv")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		id := args[0]
		q, err := journalQuery(a.loc)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("limit") {
			q.Limit = 0
		}

		wb := report.Workbook{PortfolioID: id}
		if wb.Trades, err = a.engine.TradeLog(ctx, id, q); err != nil {
			return err
		}
		if wb.Metrics, err = a.engine.MetricHistory(ctx, id, q); err != nil {
			return err
		}
		if wb.Events, err = a.engine.Events(ctx, id, q); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportXLSX != "" {
			if err := report.WriteXLSX(exportXLSX, wb); err != nil {
				return fmt.Errorf("write xlsx: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote %s\n", exportXLSX)
		}
		if exportCSV != "" {
			if err := exportToCSV(ctx, filepath.Join(exportCSV, id), wb); err != nil {
				return fmt.Errorf("write csv: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote CSV files to %s\n", filepath.Join(exportCSV, id))
		}
		fmt.Fprintf(out, "  %d trade checks, %d snapshots, %d events\n", len(wb.Trades), len(wb.Metrics), len(wb.Events))
		return nil
	})
}

// exportToCSV writes oldest records first so the files read as a log.
func exportToCSV(ctx context.Context, dir string, wb report.Workbook) error {
	cj, err := journal.NewCSV(dir)
	if err != nil {
		return err
	}
	for i := len(wb.Trades) - 1; i >= 0; i-- {
		if err := cj.RecordTradeCheck(ctx, wb.Trades[i]); err != nil {
			return errors.Join(err, cj.Close())
		}
	}
	for _, m := range wb.Metrics {
		if err := cj.RecordMetric(ctx, m); err != nil {
			return errors.Join(err, cj.Close())
		}
	}
	for i := len(wb.Events) - 1; i >= 0; i-- {
		if err := cj.RecordEvent(ctx, wb.Events[i]); err != nil {
			return errors.Join(err, cj.Close())
		}
	}
	return cj.Close()
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
