// Package rpc implements the RPC Service (C10): the external HTTP+JSON
// request surface plus a websocket log stream, per spec.md §4.10 and
// §6. It is the only package that talks to a client outside the
// process — every other component is reached only through it.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegis-agent/aegis/internal/approval"
	"github.com/aegis-agent/aegis/internal/autonomy"
	"github.com/aegis-agent/aegis/internal/config"
	"github.com/aegis-agent/aegis/internal/corectx"
	"github.com/aegis-agent/aegis/internal/dispatch"
	"github.com/aegis-agent/aegis/internal/events"
	"github.com/aegis-agent/aegis/internal/experiment"
	"github.com/aegis-agent/aegis/internal/metricsticker"
	"github.com/aegis-agent/aegis/internal/notification"
)

// Closer is the narrow slice of the Sync Bridge the server needs to
// shut down on StopAgent, without importing internal/sync directly
// (that package already imports internal/experiment/notification/
// approval — importing it back here would cycle).
type Closer interface {
	Close()
}

// Server is the RPC Service (C10).
type Server struct {
	httpServer *http.Server
	router     chi.Router

	ctx        *corectx.Context
	registry   *experiment.Registry
	gate       autonomy.Gate
	approvals  *approval.Workflow
	notifies   *notification.Store
	dispatcher *dispatch.Pool
	bridge     Closer
	sampler    metricsticker.ResourceSampler

	startedAt time.Time
}

// New builds the router and wraps it in an http.Server, but does not
// start listening — call Start for that.
func New(
	ctx *corectx.Context,
	cfg config.RPCConfig,
	registry *experiment.Registry,
	gate autonomy.Gate,
	approvals *approval.Workflow,
	notifies *notification.Store,
	dispatcher *dispatch.Pool,
	bridge Closer,
) *Server {
	s := &Server{
		ctx:        ctx,
		registry:   registry,
		gate:       gate,
		approvals:  approvals,
		notifies:   notifies,
		dispatcher: dispatcher,
		bridge:     bridge,
		sampler:    metricsticker.NewResourceSampler(),
		startedAt:  ctx.Clock.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/experiments", func(r chi.Router) {
		r.Post("/", s.handleCreateExperiment)
		r.Get("/{id}", s.handleGetExperimentStatus)
		r.Post("/{id}/start", s.handleStartExperiment)
		r.Post("/{id}/stop", s.handleStopExperiment)
	})

	r.Get("/api/agent/status", s.handleGetAgentStatus)
	r.Post("/api/agent/stop", s.handleStopAgent)

	r.Get("/api/logs", s.handleGetLogsWS)

	r.Post("/api/approvals/{id}/decision", s.handleApproveDecision)

	s.router = r
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.ctx.Logger.Info("rpc service listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logger() *slog.Logger {
	if s.ctx != nil && s.ctx.Logger != nil {
		return s.ctx.Logger
	}
	return slog.Default()
}

func (s *Server) bus() *events.Bus {
	if s.ctx == nil {
		return nil
	}
	return s.ctx.Bus
}
