package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/source"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	orchestrator *scoring.Orchestrator
	engine       *rules.Engine
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	rulesPath    string
	version      string
	validate     *validator.Validate
}

// NewHandler creates a new API handler.
func NewHandler(orchestrator *scoring.Orchestrator, engine *rules.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, rulesPath, version string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		engine:       engine,
		repo:         repo,
		cache:        cache,
		bus:          bus,
		rulesPath:    rulesPath,
		version:      version,
		validate:     validator.New(),
	}
}

// AssessRequest is the request body for POST /assess.
type AssessRequest struct {
	MerchantID   string `json:"merchantId" validate:"required,min=1,max=128"`
	WindowMonths int    `json:"windowMonths" validate:"gte=0,lte=36"`
}

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	assessment, err := h.orchestrator.Assess(ctx, req.MerchantID, req.WindowMonths)
	if err != nil {
		h.writeAssessError(w, req.MerchantID, err)
		return
	}

	slog.Info("assess request served",
		"merchant_id", req.MerchantID,
		"score", assessment.Score,
		"total_ms", time.Since(start).Milliseconds(),
		"trace_id", GetTraceID(ctx),
	)
	writeJSON(w, http.StatusOK, assessment)
}

// Simulate handles POST /simulate requests. The run touches neither
// storage nor the bus.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req scoring.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	result, err := h.orchestrator.Simulate(ctx, req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "simulation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	assessment, err := h.orchestrator.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "assessment not found",
			})
			return
		}
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetLatestAssessment retrieves the latest assessment for a merchant.
func (h *Handler) GetLatestAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := chi.URLParam(r, "merchantID")

	if merchantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "merchant id is required",
		})
		return
	}

	assessment, err := h.orchestrator.Latest(ctx, merchantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "merchant has no assessment",
			})
			return
		}
		slog.Error("failed to get latest assessment", "merchant_id", merchantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve assessment",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetRules returns the active scoring rule set.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Rules())
}

// ReloadRules re-reads the rules document from disk and hot-swaps the
// engine. The previous rule set stays active on any failure.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	loaded, err := rules.LoadFile(h.rulesPath)
	if err != nil {
		slog.Error("failed to load rules document", "path", h.rulesPath, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": fmt.Sprintf("failed to load rules: %v", err),
		})
		return
	}

	warnings, err := h.engine.Reload(loaded)
	if err != nil {
		slog.Error("failed to reload rules", "version", loaded.Version, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": fmt.Sprintf("failed to compile rules: %v", err),
		})
		return
	}

	slog.Info("rules reloaded", "version", loaded.Version, "warnings", len(warnings))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "rules reloaded successfully",
		"version":  loaded.Version,
		"warnings": warnings,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":        status,
		"version":       h.version,
		"rules_version": h.engine.Version(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) writeAssessError(w http.ResponseWriter, merchantID string, err error) {
	switch {
	case errors.Is(err, scoring.ErrInvalidMerchant):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, source.ErrSourceUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "transaction source unavailable",
		})
	default:
		slog.Error("assessment failed", "merchant_id", merchantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
