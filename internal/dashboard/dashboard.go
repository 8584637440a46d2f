package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/angeloszaimis/status-dashboard/internal/engine"
	"github.com/angeloszaimis/status-dashboard/internal/metrics"
	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/internal/sections"
	"github.com/angeloszaimis/status-dashboard/internal/status"
)

// Engine is the part of engine.Engine the dashboard forwards to.
type Engine interface {
	Services() []registry.Descriptor
	Status(id string) (status.ServiceStatus, error)
	Statuses() []status.ServiceStatus
	Summary() status.Summary
	LastCycle() time.Time
	Subscribe(buffer int) (<-chan status.Event, func())
	RefreshNow() <-chan struct{}
	Load(ctx context.Context, id string, kind sections.Kind) (sections.Dataset, error)
	LoadAll(ctx context.Context, id string) ([]sections.Dataset, error)
	Dataset(id string, kind sections.Kind) (sections.Dataset, error)
	Metrics() metrics.Snapshot
	MetricsHandler() http.HandlerFunc
	PrometheusHandler() http.Handler
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(eng Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Handler{
		engine: eng,
		logger: logger,
	}
}

// Routes registers every dashboard endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/services", h.services)
	mux.HandleFunc("GET /api/status", h.statuses)
	mux.HandleFunc("GET /api/status/{id}", h.status)
	mux.HandleFunc("POST /api/refresh", h.refresh)
	mux.HandleFunc("GET /api/sections/{id}", h.loadAll)
	mux.HandleFunc("GET /api/sections/{id}/{kind}", h.load)
	mux.HandleFunc("GET /api/stream", h.stream)
	mux.HandleFunc("GET /metrics", h.engine.MetricsHandler())
	mux.Handle("GET /metrics/prometheus", h.engine.PrometheusHandler())
	mux.HandleFunc("GET /health", h.health)
}

type snapshot struct {
	Type      string                 `json:"type,omitempty"`
	LastCycle time.Time              `json:"last_cycle,omitzero"`
	Summary   status.Summary         `json:"summary"`
	Services  []status.ServiceStatus `json:"services"`
}

func (h *Handler) snapshot() snapshot {
	return snapshot{
		LastCycle: h.engine.LastCycle(),
		Summary:   h.engine.Summary(),
		Services:  h.engine.Statuses(),
	}
}

func (h *Handler) services(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Services())
}

func (h *Handler) statuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	done := h.engine.RefreshNow()

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
		return
	}

	select {
	case <-done:
		writeJSON(w, http.StatusOK, h.snapshot())
	case <-r.Context().Done():
		// Client went away; the cycle keeps running.
	}
}

func (h *Handler) loadAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.engine.LoadAll(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kind := sections.Kind(r.PathValue("kind"))

	var (
		ds  sections.Dataset
		err error
	)
	if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached {
		ds, err = h.engine.Dataset(id, kind)
	} else {
		ds, err = h.engine.Load(r.Context(), id, kind)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownService),
		errors.Is(err, sections.ErrUnknownService),
		errors.Is(err, sections.ErrUnknownKind),
		errors.Is(err, sections.ErrKindNotOffered):
		code = http.StatusNotFound
	default:
		h.logger.Error("Request failed", slog.Any("err", err))
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
