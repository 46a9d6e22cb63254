package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/internal/telemetry"
	"github.com/rustyeddy/riskguard/journal"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, autoTrack bool) *gin.Engine {
	t.Helper()

	db, err := journal.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	eng, err := engine.New(engine.Options{
		Journal:       db,
		Reader:        db,
		Store:         db,
		Now:           func() time.Time { return now },
		InitialEquity: 10000,
		AutoTrack:     autoTrack,
	})
	require.NoError(t, err)

	m := telemetry.New(prometheus.NewRegistry())
	return New(eng, Options{Metrics: m}).Router()
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const base = "/api/v1/portfolios/main/risk"

func TestHealthAndRequestID(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestEquityUpdateAndStatus(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/equity", map[string]any{"equity": 10500})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, base+"/equity", map[string]any{"equity": 10000})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, base+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode(t, w)
	assert.Equal(t, 10500.0, st["peak_equity"])
	assert.InDelta(t, 0.047619, st["drawdown"], 1e-6)
	assert.Equal(t, false, st["is_halted"])
	assert.Equal(t, map[string]any{}, st["holdings"])
}

func TestEquityRejectsNegative(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/equity", map[string]any{"equity": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "equity", decode(t, w)["field"])

	w = do(t, r, http.MethodPost, base+"/equity", `{"equity":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckTradeIsAudited(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/check-trade", map[string]any{
		"symbol":          "BTC/USD",
		"side":            "buy",
		"size":            0.01,
		"entry_price":     50000,
		"stop_loss_price": 48000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode(t, w)
	assert.Equal(t, true, d["approved"])
	assert.Equal(t, "approved", d["reason"])

	w = do(t, r, http.MethodPost, base+"/check-trade", map[string]any{
		"symbol":      "BTC/USD",
		"side":        "sell",
		"size":        0.3,
		"entry_price": 50000,
	})
	require.Equal(t, http.StatusOK, w.Code)
	d = decode(t, w)
	assert.Equal(t, false, d["approved"])
	assert.Equal(t, "max_position_size", d["rule"])

	w = do(t, r, http.MethodGet, base+"/trade-log?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	trades := decode(t, w)["trades"].([]any)
	require.Len(t, trades, 2)
	newest := trades[0].(map[string]any)
	assert.Equal(t, false, newest["approved"])
}

func TestCheckTradeValidation(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"bad side", map[string]any{"symbol": "X", "side": "hold", "size": 1, "entry_price": 10}, "side"},
		{"missing symbol", map[string]any{"side": "buy", "size": 1, "entry_price": 10}, "symbol"},
		{"zero size", map[string]any{"symbol": "X", "side": "buy", "size": 0, "entry_price": 10}, "size"},
		{"stop at entry", map[string]any{"symbol": "X", "side": "buy", "size": 1, "entry_price": 10, "stop_loss_price": 10}, "stop_loss_price"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := do(t, r, http.MethodPost, base+"/check-trade", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.field, decode(t, w)["field"])
		})
	}

	w := do(t, r, http.MethodGet, base+"/trade-log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["trades"])
}

func TestLimitsPartialUpdate(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPut, base+"/limits", map[string]any{"max_open_positions": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, base+"/limits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	l := decode(t, w)
	assert.Equal(t, 4.0, l["max_open_positions"])
	assert.Equal(t, 0.2, l["max_portfolio_drawdown"])
	assert.Equal(t, 0.0035, mustFloat(t, do(t, r, http.MethodPut, base+"/limits", map[string]any{"max_daily_loss": 0.0035}), "max_daily_loss"))

	w = do(t, r, http.MethodPut, base+"/limits", map[string]any{"max_position_size_pct": 2})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "max_position_size_pct", decode(t, w)["field"])
}

func mustFloat(t *testing.T, w *httptest.ResponseRecorder, key string) float64 {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v, ok := decode(t, w)[key].(float64)
	require.True(t, ok)
	return v
}

func TestVaRQueryParams(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodGet, base+"/var?method=parametric&days=30", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, "parametric", res["method"])
	assert.Equal(t, true, res["low_confidence"])
	assert.Equal(t, 0.0, res["var_95"])

	w = do(t, r, http.MethodGet, base+"/var?method=montecarlo", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "method", decode(t, w)["field"])

	w = do(t, r, http.MethodGet, base+"/var?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPositionSize(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/position-size", map[string]any{
		"entry_price": 50000, "stop_loss_price": 48000, "risk_per_trade": 0.02,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.InDelta(t, 0.1, res["size"], 1e-12)
	assert.InDelta(t, 200.0, res["risk_amount"], 1e-9)

	w = do(t, r, http.MethodPost, base+"/position-size", map[string]any{
		"entry_price": 50000, "stop_loss_price": 48000, "risk_per_trade": 1.5,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "risk_per_trade", decode(t, w)["field"])
}

func TestHaltResumeAndHeatCheck(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/halt", map[string]any{"reason": "news event"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["changed"])

	w = do(t, r, http.MethodGet, base+"/heat-check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hc := decode(t, w)
	assert.Equal(t, false, hc["healthy"])
	assert.Equal(t, []any{"trading halted: news event"}, hc["issues"])

	w = do(t, r, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["changed"])

	w = do(t, r, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tr := decode(t, w)
	assert.Equal(t, false, tr["changed"])
	assert.NotEmpty(t, tr["message"])

	w = do(t, r, http.MethodGet, base+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["events"], 3)
}

func TestPositionsAffectStatus(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/positions/open", map[string]any{"symbol": "ETH/USD", "notional": 1500})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, decode(t, w)["open_positions"])

	w = do(t, r, http.MethodGet, base+"/status", nil)
	assert.Equal(t, map[string]any{"ETH/USD": 1500.0}, decode(t, w)["holdings"])

	w = do(t, r, http.MethodPost, base+"/positions/close", map[string]any{"symbol": "ETH/USD"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["open_positions"])

	w = do(t, r, http.MethodPost, base+"/positions/close", map[string]any{"symbol": "ETH/USD"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "symbol", decode(t, w)["field"])
}

func TestResetDailyAndMetricHistory(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)

	w := do(t, r, http.MethodPost, base+"/reset-daily", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Contains(t, res, "baseline")
	assert.Contains(t, res, "status")

	w = do(t, r, http.MethodGet, base+"/metric-history?since=2024-01-01T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["history"])

	w = do(t, r, http.MethodGet, base+"/metric-history?since=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "since", decode(t, w)["field"])
}

func TestUnknownPortfolioWithoutAutoTrack(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, false)

	w := do(t, r, http.MethodGet, base+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/portfolios", map[string]any{"id": "main", "initial_equity": 25000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 25000.0, decode(t, w)["equity"])

	w = do(t, r, http.MethodGet, base+"/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/portfolios", nil)
	assert.Equal(t, []any{"main"}, decode(t, w)["portfolios"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	r := newTestServer(t, true)
	do(t, r, http.MethodGet, base+"/limits", nil)

	w := do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "riskguard_http_requests_total"), body)
	assert.Contains(t, body, `route="/api/v1/portfolios/:id/risk/limits"`)
}
