package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/de-tools/storage-guard/pkg/handlers/controls"
	"github.com/de-tools/storage-guard/pkg/handlers/events"
	"github.com/de-tools/storage-guard/pkg/handlers/findings"
	"github.com/de-tools/storage-guard/pkg/handlers/scans"
	guardmiddleware "github.com/de-tools/storage-guard/pkg/server/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 10 * time.Second

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

type Dependencies struct {
	Findings findings.Service
	Controls controls.Catalog
	Scanner  scans.Scanner
	ScanRuns scans.RunHistory
	// Trigger is optional; without it POST /scans runs inline.
	Trigger scans.Trigger
	Events  events.Processor
	// Metrics is optional and served at /metrics.
	Metrics http.Handler
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	findingsHandler := findings.NewHandler(config.Dependencies.Findings)
	controlsHandler := controls.NewHandler(config.Dependencies.Controls)
	scansHandler := scans.NewHandler(config.Dependencies.Scanner, config.Dependencies.Trigger, config.Dependencies.ScanRuns)
	eventsHandler := events.NewHandler(config.Dependencies.Events)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(guardmiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if config.Dependencies.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", config.Dependencies.Metrics)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/findings", func(r chi.Router) {
			r.Get("/", findingsHandler.ListFindings)
			r.Post("/", findingsHandler.CreateFinding)
			r.Get("/stats", findingsHandler.GetStatistics)
			r.Get("/{id}", findingsHandler.GetFinding)
			r.Patch("/{id}", findingsHandler.UpdateFinding)
			r.Post("/{id}/suppress", findingsHandler.SuppressFinding)
			r.Post("/{id}/resolve", findingsHandler.ResolveFinding)
		})
		r.Get("/controls", controlsHandler.ListControls)
		r.Get("/controls/{id}", controlsHandler.GetControl)
		r.Get("/scans", scansHandler.ListRuns)
		r.Get("/scans/{id}", scansHandler.GetRun)
		r.Post("/scans", scansHandler.ScanAll)
		r.Post("/accounts/{id}/scan", scansHandler.ScanAccount)
		r.Post("/events", eventsHandler.Ingest)
	})

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

func (w *WebAPI) Handler() http.Handler {
	return w.router
}

// Start serves until the listener fails, ctx is canceled, or the process
// receives SIGINT/SIGTERM.
func (w *WebAPI) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("context canceled, shutting down")
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")
	}

	// Give outstanding requests a deadline for completion.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	err := w.server.Shutdown(shutdownCtx)
	if err != nil {
		w.logger.Error().Err(err).Msg("graceful shutdown failed")
		err = w.server.Close()
	}
	return err
}
