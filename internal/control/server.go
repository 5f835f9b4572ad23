// Package control implements the dialer's HTTP control surface (§4.6):
// a single GET /start endpoint, served by gin, that starts the first
// run, restarts a depleted one, or reports an already-running run as
// a no-op.
package control

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asterisk-tools/outbound-dialer/internal/config"
	"github.com/asterisk-tools/outbound-dialer/internal/dialer"
	"github.com/asterisk-tools/outbound-dialer/internal/summary"
)

// Server binds the control surface to addr.
type Server struct {
	addr    string
	orch    *dialer.Orchestrator
	persist *summary.Store
	logger  *slog.Logger
	runCtx  context.Context
}

// New creates a Server. runCtx is the process's long-lived root
// context: it governs the dialer run that /start may launch, and must
// outlive any single HTTP request.
func New(addr string, orch *dialer.Orchestrator, persist *summary.Store, logger *slog.Logger, runCtx context.Context) *Server {
	return &Server{addr: addr, orch: orch, persist: persist, logger: logger, runCtx: runCtx}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/start", s.handleStart)
	return r
}

// Run serves the control surface until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// handleStart implements the five steps in §4.6.
func (s *Server) handleStart(c *gin.Context) {
	cfg, err := config.Load()
	if err != nil {
		s.logger.Error("control surface: reloading config failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		s.logger.Error("control surface: recreating recordings dir failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	s.persist.Reset()

	status, message, err := s.orch.HandleControlStart(s.runCtx, cfg)
	if err != nil {
		s.logger.Error("control surface: starting dialer run failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(status, gin.H{"status": "ok", "message": message})
}
