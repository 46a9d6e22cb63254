package engine_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/risk"
)

func Example() {
	ctx := context.Background()
	eng, err := engine.New(engine.Options{
		InitialEquity: 10_000,
		AutoTrack:     true,
		Now:           func() time.Time { return time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		panic(err)
	}

	stop := 48_000.0
	req := risk.TradeRequest{Symbol: "BTC/USD", Side: risk.Buy, Size: 0.01, EntryPrice: 50_000, StopLossPrice: &stop}

	d, _ := eng.CheckTrade(ctx, "main", req)
	fmt.Println("before:", d.Reason)

	st, _ := eng.UpdateEquity(ctx, "main", 9_400)
	fmt.Println("halted:", st.Halted, st.HaltReason)

	d, _ = eng.CheckTrade(ctx, "main", req)
	fmt.Println("after:", d.Reason)
	// Output:
	// before: approved
	// halted: true daily_loss_exceeded
	// after: trading halted: daily_loss_exceeded
}
