package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Config for the dashboard HTTP listener.
type Config struct {
	Address         string
	GracefulTimeout time.Duration
}

// Server exposes the incident dashboard over REST.
type Server struct {
	cfg     Config
	httpSrv *http.Server
	logger  *slog.Logger
}

func NewServer(cfg Config, handler *Handler, logger *slog.Logger) *Server {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/incidents", handler.ListIncidents).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{id}", handler.GetIncident).Methods(http.MethodGet)
	api.HandleFunc("/services", handler.ListServices).Methods(http.MethodGet)
	api.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	return &Server{
		cfg: cfg,
		httpSrv: &http.Server{
			Addr:         cfg.Address,
			Handler:      corsHandler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("dashboard API listening", "address", s.cfg.Address)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.GracefulTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
