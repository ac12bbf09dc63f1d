// Package server exposes an engine over an HTTP command API.
//
// # Routes
//
//	GET    /healthz                   liveness
//	GET    /version                   build information
//	GET    /metrics                   Prometheus metrics, when configured
//	GET    /graph                     current flow and interaction state
//	PUT    /graph                     replace the flow with a document
//	GET    /graph/render?format=dot   DOT or SVG picture of the flow
//	GET    /kinds                     node kind catalog
//	POST   /nodes                     create a node
//	PATCH  /nodes/{id}                move or resize a node
//	PATCH  /nodes/{id}/payload        edit a node's payload
//	DELETE /nodes                     delete nodes and their edges
//	POST   /edges                     connect two handles
//	POST   /edges/check               validate a connection without adding it
//	DELETE /edges/{id}                remove an edge
//	PUT    /panel/{id}                open the property panel
//	DELETE /panel                     close the property panel
//	GET    /spawner                   spawner state and candidates
//	POST   /spawner/{drag,drop,choose,cancel}
//	GET    /flows                     stored flow names
//	GET    /flows/{name}              stored flow document
//	POST   /flows/{name}              save the current flow
//	POST   /flows/{name}/load         replace the current flow with a stored one
//	DELETE /flows/{name}              delete a stored flow
//
// Errors are JSON objects {code, reason, message} with a status derived from
// the error code.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/blockflow/pkg/engine"
	"github.com/matzehuels/blockflow/pkg/storage"
)

// Options configures a Server.
type Options struct {
	// Flows stores named documents. Nil disables the /flows routes.
	Flows *storage.Flows
	// Metrics serves /metrics. Nil disables the route.
	Metrics http.Handler
	// Logger defaults to log.Default().
	Logger *log.Logger

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end of one engine.
type Server struct {
	eng    *engine.Engine
	flows  *storage.Flows
	opts   Options
	log    *log.Logger
	router chi.Router
}

// New creates a server for eng.
func New(eng *engine.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{eng: eng, flows: opts.Flows, opts: opts, log: opts.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/graph", func(r chi.Router) {
		r.Get("/", s.handleGetGraph)
		r.Put("/", s.handlePutGraph)
		r.Get("/render", s.handleRender)
	})
	r.Get("/kinds", s.handleKinds)

	r.Route("/nodes", func(r chi.Router) {
		r.Post("/", s.handleCreateNode)
		r.Delete("/", s.handleDeleteNodes)
		r.Patch("/{id}", s.handlePatchNode)
		r.Patch("/{id}/payload", s.handlePatchPayload)
	})
	r.Route("/edges", func(r chi.Router) {
		r.Post("/", s.handleConnect)
		r.Post("/check", s.handleCheckConnection)
		r.Delete("/{id}", s.handleDisconnect)
	})
	r.Route("/panel", func(r chi.Router) {
		r.Put("/{id}", s.handleOpenPanel)
		r.Delete("/", s.handleClosePanel)
	})
	r.Route("/spawner", func(r chi.Router) {
		r.Get("/", s.handleSpawnerStatus)
		r.Post("/drag", s.handleSpawnerDrag)
		r.Post("/drop", s.handleSpawnerDrop)
		r.Post("/choose", s.handleSpawnerChoose)
		r.Post("/cancel", s.handleSpawnerCancel)
	})
	if s.flows != nil {
		r.Route("/flows", func(r chi.Router) {
			r.Get("/", s.handleListFlows)
			r.Get("/{name}", s.handleGetFlow)
			r.Post("/{name}", s.handleSaveFlow)
			r.Post("/{name}/load", s.handleLoadFlow)
			r.Delete("/{name}", s.handleDeleteFlow)
		})
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
