package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sessionhandler "3tcapital/otrs_connector/internal/adapters/http/session"
	tickethandler "3tcapital/otrs_connector/internal/adapters/http/ticket"
	"3tcapital/otrs_connector/internal/infrastructure/config"
	httperrors "3tcapital/otrs_connector/internal/infrastructure/http"
	"3tcapital/otrs_connector/internal/infrastructure/http/middleware"
)

// Server wires the gateway routes onto an http.Server.
type Server struct {
	cfg        config.AppConfig
	log        *slog.Logger
	httpServer *http.Server
	auth       *middleware.JWTAuthenticator
}

// Options groups the dependencies of New. Ticket and session handlers are optional;
// their routes answer 503 when absent.
type Options struct {
	Config         config.AppConfig
	Logger         *slog.Logger
	HealthHandler  http.Handler
	TicketHandler  *tickethandler.Handler
	SessionHandler *sessionhandler.Handler
}

func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.HealthHandler == nil {
		return nil, errors.New("health handler is required")
	}

	auth, err := middleware.NewJWTAuthenticator(opts.Config.Auth, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(auth.Middleware)

	r.Method(http.MethodGet, "/health", opts.HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequestTimeout(opts.Config.HTTP))

		r.Route("/tickets", func(r chi.Router) {
			if h := opts.TicketHandler; h != nil {
				r.Post("/", h.Create)
				r.Post("/search", h.Search)
				r.Get("/{id}", h.Get)
				r.Patch("/{id}", h.Update)
				r.Post("/{id}/close", h.Close)
				return
			}
			r.HandleFunc("/*", unavailable(opts.Logger))
		})

		if h := opts.SessionHandler; h != nil {
			r.Get("/session", h.Status)
			r.Delete("/session", h.Invalidate)
		} else {
			r.HandleFunc("/session", unavailable(opts.Logger))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, http.StatusNotFound, "Recurso no encontrado", []string{"La ruta solicitada no existe"}, opts.Logger)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, http.StatusMethodNotAllowed, "Método no permitido", []string{"Método no soportado para esta ruta"}, opts.Logger)
	})

	srv := &http.Server{
		Addr:         opts.Config.HTTP.Address(),
		Handler:      r,
		ReadTimeout:  opts.Config.HTTP.ReadTimeout,
		WriteTimeout: opts.Config.HTTP.WriteTimeout,
		IdleTimeout:  opts.Config.HTTP.IdleTimeout,
	}
	// API routes may wait on OTRS for up to WriteTimeoutAPI.
	if opts.Config.HTTP.WriteTimeoutAPI > srv.WriteTimeout {
		srv.WriteTimeout = opts.Config.HTTP.WriteTimeoutAPI
	}

	return &Server{cfg: opts.Config, log: opts.Logger, httpServer: srv, auth: auth}, nil
}

func unavailable(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Servicio no disponible", []string{"OTRS no está configurado"}, log)
	}
}

// Run serves until ctx is canceled, then shuts down within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server started", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down HTTP server", "timeout", s.cfg.HTTP.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the JWKS refresher.
func (s *Server) Close() {
	if s.auth != nil {
		s.auth.Close()
	}
}
