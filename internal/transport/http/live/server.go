package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newstrader/internal/audit"
	"newstrader/internal/logger"
	"newstrader/internal/state"
)

// Server is the read-only admin API next to the trading loop.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr   string
	Store  *state.Store
	Latest *audit.Latest
	// History is optional; /api/decisions falls back to Latest without it.
	History *audit.SQLiteSink
	Mode    string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("admin http server requires the state store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": cfg.Mode})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	NewRouter(cfg.Store, cfg.Latest, cfg.History).Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("admin http listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
