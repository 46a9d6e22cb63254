// Package report renders risk state and journal history for people:
// terminal tables for the CLI and xlsx workbooks for export.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }

// Status renders a portfolio's state, limits and holdings.
func Status(w io.Writer, id string, st risk.Status, l risk.Limits, holdings map[string]float64) {
	t := newTable(w, "PORTFOLIO "+strings.ToUpper(id))

	mode := "active"
	if st.Halted {
		mode = "HALTED (" + st.HaltReason + ")"
	}
	t.AppendRows([]table.Row{
		{"Mode", mode},
		{"Equity", money(st.Equity)},
		{"Peak equity", money(st.PeakEquity)},
		{"Daily start", money(st.DailyStartEquity)},
		{"Daily P&L", money(st.DailyPnL)},
		{"Total P&L", money(st.TotalPnL)},
		{"Drawdown", risk.Percent(st.Drawdown)},
		{"Open positions", st.OpenPositions},
		{"Trading day", st.DailyResetDay},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Max drawdown", risk.Percent(l.MaxPortfolioDrawdown)},
		{"Max daily loss", risk.Percent(l.MaxDailyLoss)},
		{"Max trade risk", risk.Percent(l.MaxSingleTradeRisk)},
		{"Max position size", risk.Percent(l.MaxPositionSizePct)},
		{"Max open positions", l.MaxOpenPositions},
		{"Max correlation", fmt.Sprintf("%.2f", l.MaxCorrelation)},
		{"Max leverage", fmt.Sprintf("%.2fx", l.MaxLeverage)},
		{"Min risk/reward", fmt.Sprintf("%.2f", l.MinRiskReward)},
	})

	if len(holdings) > 0 {
		t.AppendSeparator()
		symbols := make([]string, 0, len(holdings))
		for s := range holdings {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			t.AppendRow(table.Row{"Holding " + s, money(holdings[s])})
		}
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

// Decision renders the outcome of a single trade check.
func Decision(w io.Writer, req risk.TradeRequest, d risk.Decision) {
	verdict := "APPROVED"
	if !d.Approved {
		verdict = "REJECTED"
	}
	t := newTable(w, fmt.Sprintf("%s %s %s", verdict, strings.ToUpper(string(req.Side)), req.Symbol))
	t.AppendRows([]table.Row{
		{"Reason", d.Reason},
		{"Rule", string(d.Rule)},
		{"Position value", money(d.PositionValue)},
		{"Risk amount", money(d.RiskAmount)},
	})
	if d.RiskReward > 0 {
		t.AppendRow(table.Row{"Risk/reward", fmt.Sprintf("%.2f", d.RiskReward)})
	}
	t.Render()
}

func TradeLog(w io.Writer, rows []journal.TradeCheckEntry) {
	t := newTable(w, "TRADE CHECKS")
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Size", "Entry", "Stop", "Target", "Result", "Reason", "Equity"})
	for _, r := range rows {
		result := "approved"
		if !r.Approved {
			result = "rejected"
		}
		t.AppendRow(table.Row{
			r.Time.UTC().Format(timeLayout),
			r.Symbol,
			r.Side,
			r.Size,
			r.EntryPrice,
			optional(r.StopLossPrice),
			optional(r.TakeProfitPrice),
			result,
			r.Reason,
			money(r.EquityAtCheck),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "Total", len(rows)})
	t.Render()
}

func MetricHistory(w io.Writer, rows []journal.MetricEntry) {
	t := newTable(w, "METRIC HISTORY")
	t.AppendHeader(table.Row{"Time", "Equity", "Drawdown", "Daily P&L", "Open", "VaR 95", "CVaR 95", "Method", "Max corr", "Healthy"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Time.UTC().Format(timeLayout),
			money(r.Equity),
			risk.Percent(r.Drawdown),
			money(r.DailyPnL),
			r.OpenPositions,
			money(r.VaR95),
			money(r.CVaR95),
			r.Method,
			fmt.Sprintf("%.2f", r.MaxCorrelation),
			r.Healthy,
		})
	}
	t.Render()
}

func Events(w io.Writer, rows []journal.Event) {
	t := newTable(w, "RISK EVENTS")
	t.AppendHeader(table.Row{"Time", "Kind", "From", "To", "Message"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Time.UTC().Format(timeLayout), r.Kind, r.From, r.To, r.Message})
	}
	t.Render()
}

// HeatCheck renders a heat check with its issues listed first.
func HeatCheck(w io.Writer, res riskmodel.HeatCheckResult) {
	title := "HEAT CHECK: HEALTHY"
	if !res.Healthy {
		title = fmt.Sprintf("HEAT CHECK: %d ISSUE(S)", len(res.Issues))
	}
	t := newTable(w, title)
	for _, msg := range riskmodel.Messages(res.Issues) {
		t.AppendRow(table.Row{"Issue", msg})
	}
	if len(res.Issues) > 0 {
		t.AppendSeparator()
	}
	t.AppendRows([]table.Row{
		{"Drawdown", risk.Percent(res.Drawdown)},
		{"Daily P&L", money(res.DailyPnL)},
		{"Max concentration", risk.Percent(res.MaxConcentration)},
		{"Max correlation", fmt.Sprintf("%.2f", res.MaxCorrelation)},
		{"VaR 95 / CVaR 95", money(res.VaR.VaR95) + " / " + money(res.VaR.CVaR95)},
		{"Checked at", res.CheckedAt.UTC().Format(time.RFC3339)},
	})
	t.Render()
}

func optional(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}
