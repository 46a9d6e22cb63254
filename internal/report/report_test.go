package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

var at = time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func sampleTrades() []journal.TradeCheckEntry {
	return []journal.TradeCheckEntry{
		{ID: "01A", Time: at, Symbol: "BTC/USD", Side: "buy", Size: 0.01, EntryPrice: 50000, StopLossPrice: ptr(48000), Approved: true, Reason: "approved", EquityAtCheck: 10000},
		{ID: "01B", Time: at.Add(time.Minute), Symbol: "ETH/USD", Side: "sell", Size: 5, EntryPrice: 3000, Approved: false, Reason: "position too large: 150.00% > 20.00%", Rule: "max_position_size", EquityAtCheck: 10000, DrawdownAtCheck: 0.05},
	}
}

func TestStatusTable(t *testing.T) {
	t.Parallel()

	st := risk.Status{Equity: 9500, PeakEquity: 10000, Drawdown: 0.05, Halted: true, HaltReason: "manual", OpenPositions: 2}
	var buf bytes.Buffer
	Status(&buf, "main", st, risk.DefaultLimits(), map[string]float64{"ETH/USD": 1500, "BTC/USD": 500})

	out := buf.String()
	assert.Contains(t, out, "PORTFOLIO MAIN")
	assert.Contains(t, out, "HALTED (manual)")
	assert.Contains(t, out, "9500.00")
	assert.Contains(t, out, "5.00%")
	assert.Contains(t, out, "Holding BTC/USD")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("BTC/USD")), bytes.Index(buf.Bytes(), []byte("ETH/USD")))
}

func TestTradeLogTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	TradeLog(&buf, sampleTrades())

	out := buf.String()
	assert.Contains(t, out, "TRADE CHECKS")
	assert.Contains(t, out, "2024-03-04 14:00:00")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "48000")
}

func TestDecisionAndHeatCheck(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Decision(&buf, risk.TradeRequest{Symbol: "BTC/USD", Side: risk.Buy}, risk.Decision{Approved: false, Reason: "leverage exceeds limit", Rule: risk.RuleLeverage})
	assert.Contains(t, buf.String(), "REJECTED BUY BTC/USD")
	assert.Contains(t, buf.String(), "max_leverage")

	buf.Reset()
	HeatCheck(&buf, riskmodel.HeatCheckResult{
		Issues:    []riskmodel.Issue{{Kind: riskmodel.IssueConcentration, Subject: "BTC", Value: 0.35, Limit: 0.2}},
		CheckedAt: at,
	})
	assert.Contains(t, buf.String(), "1 ISSUE(S)")
	assert.Contains(t, buf.String(), "position BTC weight 35.00% exceeds limit 20.00%")
}

func TestWriteXLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "main.xlsx")
	err := WriteXLSX(path, Workbook{
		PortfolioID: "main",
		Trades:      sampleTrades(),
		Metrics:     []journal.MetricEntry{{Time: at, Equity: 10000, Drawdown: 0.01, Method: "historical", WindowDays: 30}},
		Events:      []journal.Event{{Time: at, Kind: "halt", From: "active", To: "halted", Message: "trading halted: manual", Equity: 10000}},
	})
	require.NoError(t, err)

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.Equal(t, []string{tradesSheet, metricsSheet, eventsSheet}, fx.GetSheetList())

	rows, err := fx.GetRows(tradesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Symbol", rows[0][2])
	assert.Equal(t, "ETH/USD", rows[2][2])
	assert.Equal(t, "max_position_size", rows[2][10])

	rows, err = fx.GetRows(eventsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "trading halted: manual", rows[1][4])
}
