package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kishore276/Water-Quality-Analysis-System/internal/ingest"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/store"
	"github.com/Kishore276/Water-Quality-Analysis-System/internal/wqi"
)

// Options configures the HTTP surface. Zero values pick sensible defaults.
type Options struct {
	Port            int
	CORSOrigins     []string
	UploadRate      float64
	MaxUploadBytes  int64
	BatchSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = 8080
	}
	if len(o.CORSOrigins) == 0 {
		o.CORSOrigins = []string{"*"}
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = ingest.MaxFetchBytes
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
}

type Server struct {
	store     store.Store
	scorer    *wqi.Scorer
	validator *ingest.Validator
	importer  *ingest.Importer
	limiter   *rate.Limiter
	opts      Options
}

func NewServer(st store.Store, scorer *wqi.Scorer, opts Options) *Server {
	opts.setDefaults()
	s := &Server{
		store:     st,
		scorer:    scorer,
		validator: ingest.NewValidator(scorer.Schema()),
		importer: ingest.NewImporter(st, scorer, ingest.CommitOptions{
			BatchSize: opts.BatchSize,
			Workers:   opts.Workers,
		}),
		opts: opts,
	}
	if opts.UploadRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.UploadRate), max(1, int(opts.UploadRate)))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/predict", s.handle(s.handlePredict))

		r.Route("/uploads", func(r chi.Router) {
			r.Get("/", s.handle(s.handleListUploads))
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimit)
				r.Post("/parse", s.handle(s.handleParseUpload))
				r.Post("/process", s.handle(s.handleProcessUpload))
			})
		})

		r.Post("/records", s.handle(s.handleCreateRecord))
		r.Get("/records", s.handle(s.handleListRecords))
		r.Get("/areas", s.handle(s.handleListAreas))
		r.Get("/areas/{id}", s.handle(s.handleGetArea))
		r.Get("/areas/{id}/records", s.handle(s.handleAreaRecords))
		r.Get("/dashboard", s.handle(s.handleDashboard))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", s.opts.Port))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// HealthStatus reports whether the store is reachable.
type HealthStatus struct {
	Status     string     `json:"status"`
	Database   string     `json:"database"`
	LastUpload *time.Time `json:"lastUpload,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", Database: "ok"}

	if err := s.store.Ping(r.Context()); err != nil {
		health.Status = "error"
		health.Database = "unreachable"
		health.Errors = append(health.Errors, "database ping failed")
		zap.L().Error("health: ping", zap.Error(err))
	} else if uploads, err := s.store.ListUploads(r.Context(), 1); err != nil {
		health.Status = "degraded"
		health.Errors = append(health.Errors, "upload history unavailable")
		zap.L().Warn("health: list uploads", zap.Error(err))
	} else if len(uploads) > 0 {
		health.LastUpload = &uploads[0].StartedAt
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
