package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/riskmodel"
)

type trackRequest struct {
	ID            string       `json:"id" binding:"required"`
	InitialEquity float64      `json:"initial_equity" binding:"omitempty,gt=0"`
	Limits        *risk.Limits `json:"limits,omitempty"`
}

type equityRequest struct {
	Equity *float64 `json:"equity" binding:"required"`
}

type checkTradeRequest struct {
	Symbol          string   `json:"symbol" binding:"required"`
	Side            string   `json:"side" binding:"required,oneof=buy sell BUY SELL"`
	Size            float64  `json:"size" binding:"required,gt=0"`
	EntryPrice      float64  `json:"entry_price" binding:"required,gt=0"`
	StopLossPrice   *float64 `json:"stop_loss_price" binding:"omitempty,gt=0"`
	TakeProfitPrice *float64 `json:"take_profit_price" binding:"omitempty,gt=0"`
}

type positionSizeRequest struct {
	EntryPrice    float64  `json:"entry_price" binding:"required,gt=0"`
	StopLossPrice float64  `json:"stop_loss_price" binding:"required,gt=0"`
	RiskPerTrade  *float64 `json:"risk_per_trade" binding:"omitempty,fraction"`
}

type haltRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type openPositionRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Notional float64 `json:"notional"`
}

type closePositionRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

type heatCheckResponse struct {
	riskmodel.HeatCheckResult
	Issues       []string          `json:"issues"`
	IssueDetails []riskmodel.Issue `json:"issue_details"`
}

type statusResponse struct {
	risk.Status
	Holdings map[string]float64 `json:"holdings"`
}

func (s *Server) handleListPortfolios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"portfolios": s.engine.PortfolioIDs()})
}

func (s *Server) handleTrack(c *gin.Context) {
	var req trackRequest
	if !s.bind(c, &req) {
		return
	}
	st, err := s.engine.Track(c.Request.Context(), req.ID, engine.TrackOptions{
		InitialEquity: req.InitialEquity,
		Limits:        req.Limits,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := s.engine.Status(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	h, err := s.engine.Holdings(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: st, Holdings: h})
}

func (s *Server) handleGetLimits(c *gin.Context) {
	l, err := s.engine.Limits(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) handleUpdateLimits(c *gin.Context) {
	var upd risk.LimitsUpdate
	if !s.bind(c, &upd) {
		return
	}
	l, err := s.engine.UpdateLimits(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Server) handleVaR(c *gin.Context) {
	var o engine.VaROptions
	if m := c.Query("method"); m != "" {
		method, err := riskmodel.ParseMethod(m)
		if err != nil {
			s.fail(c, &risk.ValidationError{Field: "method", Msg: err.Error()})
			return
		}
		o.Method = method
	}
	if d := c.Query("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days <= 0 {
			s.fail(c, &risk.ValidationError{Field: "days", Msg: "must be a positive integer"})
			return
		}
		o.Days = days
	}

	res, err := s.engine.VaR(c.Request.Context(), c.Param("id"), o)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHeatCheck(c *gin.Context) {
	res, err := s.engine.HeatCheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, heatCheckResponse{
		HeatCheckResult: res,
		Issues:          riskmodel.Messages(res.Issues),
		IssueDetails:    res.Issues,
	})
}

func (s *Server) handleMetricHistory(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	rows, err := s.engine.MetricHistory(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": nonNil(rows)})
}

func (s *Server) handleTradeLog(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	rows, err := s.engine.TradeLog(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": nonNil(rows)})
}

func (s *Server) handleEvents(c *gin.Context) {
	q, ok := s.query(c)
	if !ok {
		return
	}
	rows, err := s.engine.Events(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": nonNil(rows)})
}

func (s *Server) handleEquity(c *gin.Context) {
	var req equityRequest
	if !s.bind(c, &req) {
		return
	}
	st, err := s.engine.UpdateEquity(c.Request.Context(), c.Param("id"), *req.Equity)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleCheckTrade(c *gin.Context) {
	var req checkTradeRequest
	if !s.bind(c, &req) {
		return
	}
	side, err := risk.ParseSide(req.Side)
	if err != nil {
		s.fail(c, err)
		return
	}
	d, err := s.engine.CheckTrade(c.Request.Context(), c.Param("id"), risk.TradeRequest{
		Symbol:          req.Symbol,
		Side:            side,
		Size:            req.Size,
		EntryPrice:      req.EntryPrice,
		StopLossPrice:   req.StopLossPrice,
		TakeProfitPrice: req.TakeProfitPrice,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handlePositionSize(c *gin.Context) {
	var req positionSizeRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.engine.PositionSize(c.Request.Context(), c.Param("id"), req.EntryPrice, req.StopLossPrice, req.RiskPerTrade)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleResetDaily(c *gin.Context) {
	res, err := s.engine.ResetDaily(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleHalt(c *gin.Context) {
	var req haltRequest
	if !s.bind(c, &req) {
		return
	}
	tr, err := s.engine.Halt(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) handleResume(c *gin.Context) {
	tr, err := s.engine.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (s *Server) handleOpenPosition(c *gin.Context) {
	var req openPositionRequest
	if !s.bind(c, &req) {
		return
	}
	st, err := s.engine.RecordOpenPosition(c.Request.Context(), c.Param("id"), req.Symbol, req.Notional)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req closePositionRequest
	if !s.bind(c, &req) {
		return
	}
	st, err := s.engine.RecordClosePosition(c.Request.Context(), c.Param("id"), req.Symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// query reads ?since=&until= (RFC 3339) and ?limit=.
func (s *Server) query(c *gin.Context) (journal.Query, bool) {
	var q journal.Query
	for _, f := range []struct {
		name string
		dst  *time.Time
	}{{"since", &q.Since}, {"until", &q.Until}} {
		v := c.Query(f.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.fail(c, &risk.ValidationError{Field: f.name, Msg: "must be an RFC 3339 timestamp"})
			return q, false
		}
		*f.dst = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(c, &risk.ValidationError{Field: "limit", Msg: "must be a non-negative integer"})
			return q, false
		}
		q.Limit = n
	}
	return q, true
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
