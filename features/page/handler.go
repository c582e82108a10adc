package page

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"opensim-assistant/internal/middleware"
)

type Lister interface {
	List(ctx context.Context, statuses ...string) ([]Page, error)
}

type Handler struct {
	repo Lister
}

func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List serves GET /pages, optionally filtered by ?status=failed,completed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var statuses []string
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s != StatusCompleted && s != StatusFailed {
				h.writeError(ctx, w, "VALIDATION_ERROR", "status must be completed or failed", http.StatusBadRequest)
				return
			}
			statuses = append(statuses, s)
		}
	}

	pages, err := h.repo.List(ctx, statuses...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list pages", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list pages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": pages}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
