package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logsieve/logsieve/internal/accesslog"
	"github.com/logsieve/logsieve/internal/detect"
	"github.com/logsieve/logsieve/internal/observability"
	"github.com/logsieve/logsieve/internal/store"
	"github.com/logsieve/logsieve/internal/stream"
)

// maxBatchSize caps one prediction request.
const maxBatchSize = 10000

// API glues the detection pipeline to HTTP. Store is optional; a nil store
// disables audit persistence and the verdict history endpoints.
type API struct {
	pipeline *detect.Pipeline
	store    *store.Store
	hub      *stream.Hub
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewAPI builds the handler set.
func NewAPI(pipeline *detect.Pipeline, st *store.Store, hub *stream.Hub, metrics *observability.Metrics, logger *slog.Logger) *API {
	return &API{pipeline: pipeline, store: st, hub: hub, metrics: metrics, logger: logger}
}

// Router assembles the chi router.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/healthz", a.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
	r.Get("/ws", a.hub.HandleWS)

	r.Route("/api", func(api chi.Router) {
		api.Post("/predict", a.Predict)
		if a.store != nil {
			api.Get("/verdicts", a.ListVerdicts)
			api.Get("/verdicts/{id}", a.GetVerdict)
		}
	})
	return r
}

type predictRequest struct {
	Logs []accesslog.Record `json:"logs"`
}

type predictResponse struct {
	Predictions []accesslog.Verdict `json:"predictions"`
}

// Predict handles POST /api/predict: classify a batch of access-log records
// and answer one verdict per record, in order.
func (a *API) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Logs) > maxBatchSize {
		jsonError(w, "batch too large", http.StatusRequestEntityTooLarge)
		return
	}

	verdicts, err := a.pipeline.Predict(r.Context(), req.Logs)
	if err != nil {
		a.logger.Error("prediction failed", "err", err, "records", len(req.Logs))
		jsonError(w, "prediction failed", http.StatusInternalServerError)
		return
	}

	a.hub.PublishBatch(req.Logs, verdicts)
	if a.store != nil {
		if err := a.store.InsertBatch(r.Context(), req.Logs, verdicts); err != nil {
			// Audit persistence is best effort; the caller still gets verdicts.
			a.logger.Error("audit insert failed", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, predictResponse{Predictions: verdicts})
}

// Healthz handles GET /healthz.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":   "ok",
		"watchers": a.hub.SubscriberCount(),
	}
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}

// ListVerdicts handles GET /api/verdicts?limit=&attacks_only=.
func (a *API) ListVerdicts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attacksOnly, _ := strconv.ParseBool(r.URL.Query().Get("attacks_only"))

	entries, err := a.store.Recent(r.Context(), limit, attacksOnly)
	if err != nil {
		a.logger.Error("verdict query failed", "err", err)
		jsonError(w, "query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"verdicts": entries})
}

// GetVerdict handles GET /api/verdicts/{id}.
func (a *API) GetVerdict(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	entry, err := a.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("verdict lookup failed", "err", err, "id", id)
		jsonError(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves the API with graceful shutdown. It blocks until ctx is
// cancelled or the listener fails.
func Run(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket needs unlimited write time
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "err", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
