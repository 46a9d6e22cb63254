package risk

import "math"

// Holding aggregates the open positions in one symbol.
type Holding struct {
	Positions int     `json:"positions"`
	Notional  float64 `json:"notional"`
}

// Holdings maps symbol to its open positions.
type Holdings map[string]Holding

func (h Holdings) Open(symbol string, notional float64) {
	x := h[symbol]
	x.Positions++
	x.Notional += notional
	h[symbol] = x
}

// Close removes one position in symbol together with its average share of
// the symbol's notional, and returns what was removed. Closing a symbol with
// nothing open is a validation error and changes nothing.
func (h Holdings) Close(symbol string) (Holding, error) {
	x, ok := h[symbol]
	if !ok || x.Positions <= 0 {
		return Holding{}, invalid("symbol", "has no open position: "+symbol)
	}
	share := x.Notional / float64(x.Positions)
	if x.Positions == 1 {
		delete(h, symbol)
	} else {
		x.Positions--
		x.Notional -= share
		h[symbol] = x
	}
	return Holding{Positions: 1, Notional: share}, nil
}

// Count is the number of open positions across all symbols.
func (h Holdings) Count() int {
	n := 0
	for _, x := range h {
		n += x.Positions
	}
	return n
}

// Gross is the summed absolute notional.
func (h Holdings) Gross() float64 {
	g := 0.0
	for _, x := range h {
		g += math.Abs(x.Notional)
	}
	return g
}

// Notionals flattens the holdings to symbol → notional.
func (h Holdings) Notionals() map[string]float64 {
	out := make(map[string]float64, len(h))
	for s, x := range h {
		out[s] = x.Notional
	}
	return out
}

func (h Holdings) Clone() Holdings {
	out := make(Holdings, len(h))
	for s, x := range h {
		out[s] = x
	}
	return out
}
