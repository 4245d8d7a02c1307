// Package api is the backend transfer endpoint: it holds the treasury key and pays
// karma claims on behalf of clients.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

// ClaimPath is the route of the transfer endpoint.
const ClaimPath = "/api/karma/claim"

// Server serves the claim endpoint together with health and metrics.
type Server struct {
	addr     string
	engine   *gin.Engine
	treasury Treasury
	metrics  *Metrics
	l        *zap.Logger
}

// NewServer wires the routes. treasury may be nil when no key is configured;
// claims then fail with 500 while health and metrics keep working.
func NewServer(addr string, treasury Treasury, registry *prometheus.Registry, l *zap.Logger) *Server {
	metrics := NewMetrics(registry)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(l))

	s := &Server{
		addr:     addr,
		engine:   engine,
		treasury: treasury,
		metrics:  metrics,
		l:        l,
	}

	engine.POST(ClaimPath, NewClaimHandler(treasury, l, metrics).Handle)
	engine.GET("/healthz", s.handleHealth)
	if registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := s.httpServer(s.addr, s.engine)

	go func() {
		<-ctx.Done()
		s.shutdown(srv)
	}()

	s.l.Info("karma backend listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS serves HTTPS with ACME certificates and answers HTTP-01 challenges on :80.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := s.httpServer(":80", manager.HTTPHandler(nil))

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	httpsSrv := s.httpServer(s.addr, s.engine)
	httpsSrv.TLSConfig = tlsConfig

	go func() {
		<-ctx.Done()
		s.shutdown(httpSrv)
		s.shutdown(httpsSrv)
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("acme http server failed", zap.Error(err))
		}
	}()

	s.l.Info("karma backend listening with TLS", zap.String("addr", s.addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// MonitorTreasury refreshes the treasury balance gauge every interval until ctx ends.
func (s *Server) MonitorTreasury(ctx context.Context, interval time.Duration) error {
	if s.treasury == nil {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		balance, err := s.treasury.Balance(ctx)
		if err != nil {
			s.l.Warn("treasury balance check failed", zap.Error(err))
		} else {
			s.metrics.SetTreasuryBalance(balance)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"treasuryConfigured": s.treasury != nil,
	})
}

func (s *Server) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.l.Warn("server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
	}
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
