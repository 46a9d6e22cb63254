package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/rustyeddy/riskguard/journal"
)

// Workbook is the journal history of one portfolio.
type Workbook struct {
	PortfolioID string
	Trades      []journal.TradeCheckEntry
	Metrics     []journal.MetricEntry
	Events      []journal.Event
}

const (
	tradesSheet  = "Trade Checks"
	metricsSheet = "Metric History"
	eventsSheet  = "Risk Events"
)

// WriteXLSX saves wb as a workbook with one sheet per journal table.
func WriteXLSX(path string, wb Workbook) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	if _, err := fx.NewSheet(metricsSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(eventsSheet); err != nil {
		return err
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1F4E79"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	pct, err := fx.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		return err
	}

	trades := make([][]any, 0, len(wb.Trades))
	for _, r := range wb.Trades {
		trades = append(trades, []any{
			r.Time.UTC(), r.ID, r.Symbol, r.Side, r.Size, r.EntryPrice,
			cellOptional(r.StopLossPrice), cellOptional(r.TakeProfitPrice),
			r.Approved, r.Reason, r.Rule, r.EquityAtCheck, r.DrawdownAtCheck, r.OpenPositionsAtCheck,
		})
	}
	if err := writeSheet(fx, tradesSheet, header, []string{
		"Time", "ID", "Symbol", "Side", "Size", "Entry", "Stop", "Target",
		"Approved", "Reason", "Rule", "Equity", "Drawdown", "Open Positions",
	}, trades); err != nil {
		return err
	}

	metrics := make([][]any, 0, len(wb.Metrics))
	for _, r := range wb.Metrics {
		metrics = append(metrics, []any{
			r.Time.UTC(), r.Equity, r.Drawdown, r.DailyPnL, r.OpenPositions,
			r.VaR95, r.VaR99, r.CVaR95, r.CVaR99, r.Method, r.WindowDays,
			r.MaxCorrelation, r.MaxConcentration, r.Healthy,
		})
	}
	if err := writeSheet(fx, metricsSheet, header, []string{
		"Time", "Equity", "Drawdown", "Daily P&L", "Open Positions",
		"VaR 95", "VaR 99", "CVaR 95", "CVaR 99", "Method", "Window",
		"Max Correlation", "Max Concentration", "Healthy",
	}, metrics); err != nil {
		return err
	}

	events := make([][]any, 0, len(wb.Events))
	for _, r := range wb.Events {
		events = append(events, []any{r.Time.UTC(), r.Kind, r.From, r.To, r.Message, r.Equity})
	}
	if err := writeSheet(fx, eventsSheet, header, []string{"Time", "Kind", "From", "To", "Message", "Equity"}, events); err != nil {
		return err
	}

	// drawdown columns
	if n := len(wb.Trades); n > 0 {
		_ = fx.SetCellStyle(tradesSheet, "M2", fmt.Sprintf("M%d", n+1), pct)
	}
	if n := len(wb.Metrics); n > 0 {
		_ = fx.SetCellStyle(metricsSheet, "C2", fmt.Sprintf("C%d", n+1), pct)
	}

	if wb.PortfolioID != "" {
		_ = fx.SetDocProps(&excelize.DocProperties{Title: "riskguard journal: " + wb.PortfolioID})
	}
	return fx.SaveAs(path)
}

func writeSheet(fx *excelize.File, sheet string, headerStyle int, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}
	_ = fx.SetColWidth(sheet, "A", "A", 20)

	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("report: %s row %d: %w", sheet, r+2, err)
		}
	}
	return fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func cellOptional(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}
