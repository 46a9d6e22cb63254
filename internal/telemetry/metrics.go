// Package telemetry exposes riskguard's Prometheus metrics. A nil *Metrics
// is valid and records nothing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg prometheus.Gatherer

	TradeChecks   *prometheus.CounterVec
	Halts         *prometheus.CounterVec
	AuditFailures *prometheus.CounterVec
	Equity        *prometheus.GaugeVec
	Drawdown      *prometheus.GaugeVec
	OpenPositions *prometheus.GaugeVec
	Halted        *prometheus.GaugeVec
	VaR95         *prometheus.GaugeVec
	CVaR95        *prometheus.GaugeVec
	SchedulerRuns *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates the metric set and registers it with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		TradeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskguard_trade_checks_total",
			Help: "Pre-trade checks by outcome and rejecting rule",
		}, []string{"portfolio", "outcome", "rule"}),
		Halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskguard_halts_total",
			Help: "Trading halts by reason",
		}, []string{"portfolio", "reason"}),
		AuditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskguard_audit_write_failures_total",
			Help: "Audit and state writes that did not reach the primary store",
		}, []string{"kind"}),
		Equity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskguard_equity",
			Help: "Current portfolio equity",
		}, []string{"portfolio"}),
		Drawdown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskguard_drawdown_ratio",
			Help: "Fractional decline from peak equity",
		}, []string{"portfolio"}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskguard_open_positions",
			Help: "Open position count",
		}, []string{"portfolio"}),
		Halted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskguard_halted",
			Help: "1 while trading is halted",
		}, []string{"portfolio"}),
		VaR95: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskguard_var95",
			Help: "Latest 95% one-day value at risk",
		}, []string{"portfolio"}),
		CVaR95: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskguard_cvar95",
			Help: "Latest 95% one-day conditional value at risk",
		}, []string{"portfolio"}),
		SchedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskguard_scheduler_runs_total",
			Help: "Scheduled job executions by result",
		}, []string{"job", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskguard_http_requests_total",
			Help: "API requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskguard_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.TradeChecks, m.Halts, m.AuditFailures,
		m.Equity, m.Drawdown, m.OpenPositions, m.Halted,
		m.VaR95, m.CVaR95, m.SchedulerRuns,
		m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WatchOutbox exposes the outbox backlog as a gauge.
func (m *Metrics) WatchOutbox(reg *prometheus.Registry, pending func() int) {
	if m == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "riskguard_outbox_pending",
		Help: "Audit writes waiting for retry",
	}, func() float64 { return float64(pending()) }))
}

func (m *Metrics) TradeCheck(portfolio string, approved bool, rule string) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if approved {
		outcome = "approved"
		rule = "none"
	}
	m.TradeChecks.WithLabelValues(portfolio, outcome, rule).Inc()
}

func (m *Metrics) Halt(portfolio, reason string) {
	if m == nil {
		return
	}
	m.Halts.WithLabelValues(portfolio, reason).Inc()
}

func (m *Metrics) AuditFailure(kind string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(kind).Inc()
}

// Portfolio publishes the gauges derived from a status snapshot.
func (m *Metrics) Portfolio(id string, equity, drawdown float64, open int, halted bool) {
	if m == nil {
		return
	}
	m.Equity.WithLabelValues(id).Set(equity)
	m.Drawdown.WithLabelValues(id).Set(drawdown)
	m.OpenPositions.WithLabelValues(id).Set(float64(open))
	h := 0.0
	if halted {
		h = 1
	}
	m.Halted.WithLabelValues(id).Set(h)
}

func (m *Metrics) VaR(id string, var95, cvar95 float64) {
	if m == nil {
		return
	}
	m.VaR95.WithLabelValues(id).Set(var95)
	m.CVaR95.WithLabelValues(id).Set(cvar95)
}

func (m *Metrics) SchedulerRun(job string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SchedulerRuns.WithLabelValues(job, result).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
