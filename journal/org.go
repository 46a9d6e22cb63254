package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeCheckOrg renders an audit entry as an Org-mode block. Structured
// facts go in the PROPERTIES drawer so the journal stays searchable.
func FormatTradeCheckOrg(e TradeCheckEntry) string {
	verdict := "REJECTED"
	if e.Approved {
		verdict = "APPROVED"
	}
	heading := fmt.Sprintf("** %s %s %s (%s)", verdict, strings.ToUpper(e.Side), e.Symbol, shortID(e.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ID: %s\n", e.ID))
	b.WriteString(fmt.Sprintf(":PORTFOLIO: %s\n", e.PortfolioID))
	b.WriteString(fmt.Sprintf(":TIME: %s\n", e.Time.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", e.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", e.Side))
	b.WriteString(fmt.Sprintf(":SIZE: %g\n", e.Size))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", e.EntryPrice))
	if e.StopLossPrice != nil {
		b.WriteString(fmt.Sprintf(":STOP_LOSS: %.5f\n", *e.StopLossPrice))
	}
	if e.TakeProfitPrice != nil {
		b.WriteString(fmt.Sprintf(":TAKE_PROFIT: %.5f\n", *e.TakeProfitPrice))
	}
	b.WriteString(fmt.Sprintf(":REASON: %s\n", e.Reason))
	if e.Rule != "" {
		b.WriteString(fmt.Sprintf(":RULE: %s\n", e.Rule))
	}
	b.WriteString(fmt.Sprintf(":EQUITY: %.2f\n", e.EquityAtCheck))
	b.WriteString(fmt.Sprintf(":DRAWDOWN: %.4f\n", e.DrawdownAtCheck))
	b.WriteString(fmt.Sprintf(":OPEN_POSITIONS: %d\n", e.OpenPositionsAtCheck))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Notes\n- \n")

	return b.String()
}

// FormatTradeChecksOrg renders multiple entries separated by blank lines.
func FormatTradeChecksOrg(entries []TradeCheckEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeCheckOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
