// Package httpserver exposes the authentication API as JSON:API over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter registers routes and the middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(recoverer(h.log))
	r.Use(accessLog(h.log))
	r.Use(middleware.NoCache)
	r.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(middleware.SetHeader("X-Frame-Options", "DENY"))
	r.Use(middleware.SetHeader("Referrer-Policy", "no-referrer"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusNotFound, notFound())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, methodStatus, methodNotAllowed())
	})

	r.Get("/", h.root)
	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireAppKey(h.opts.AppKey))

		r.With(requireMediaType).Post("/register", h.register)
		r.With(requireMediaType).Post("/login", h.login)
		r.With(requireMediaType).Post("/refresh_token", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(h.requireBearer)
			r.Post("/logout", h.logout)
			r.Post("/logout_all", h.logoutAll)
			r.Get("/sessions", h.sessions)
		})
	})
	return r
}

// Server runs the HTTP API.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// NewServer binds handler to addr.
func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("http listening", zap.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
