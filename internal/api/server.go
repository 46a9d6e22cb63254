// Package api exposes the risk engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/engine"
	"github.com/rustyeddy/riskguard/internal/logging"
	"github.com/rustyeddy/riskguard/internal/telemetry"
)

type Options struct {
	Addr            string
	Mode            string // gin mode: release, debug, test
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
	Metrics         *telemetry.Metrics
}

type Server struct {
	engine *engine.Engine
	opts   Options
	log    *zap.Logger
	http   *http.Server
}

func New(eng *engine.Engine, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		engine: eng,
		opts:   opts,
		log:    logging.OrNop(opts.Logger).Named("api"),
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	if s.opts.Mode != "" {
		gin.SetMode(s.opts.Mode)
	}
	registerValidators()

	router := gin.New()
	router.Use(requestID())
	router.Use(ginzap.Ginzap(s.log, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.log, true))
	router.Use(instrument(s.opts.Metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/portfolios", s.handleListPortfolios)
		v1.POST("/portfolios", s.handleTrack)

		r := v1.Group("/portfolios/:id/risk")
		{
			r.GET("/status", s.handleStatus)
			r.GET("/limits", s.handleGetLimits)
			r.PUT("/limits", s.handleUpdateLimits)
			r.GET("/var", s.handleVaR)
			r.GET("/heat-check", s.handleHeatCheck)
			r.GET("/metric-history", s.handleMetricHistory)
			r.GET("/trade-log", s.handleTradeLog)
			r.GET("/events", s.handleEvents)

			r.POST("/equity", s.handleEquity)
			r.POST("/check-trade", s.handleCheckTrade)
			r.POST("/position-size", s.handlePositionSize)
			r.POST("/reset-daily", s.handleResetDaily)
			r.POST("/halt", s.handleHalt)
			r.POST("/resume", s.handleResume)
			r.POST("/positions/open", s.handleOpenPosition)
			r.POST("/positions/close", s.handleClosePosition)
		}
	}
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.opts.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}
