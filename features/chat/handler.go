// Package chat serves the browser chat page and its JSON endpoints.
package chat

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"opensim-assistant/internal/answer"
	"opensim-assistant/internal/middleware"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// Suggestions are the example questions offered on the chat page.
var Suggestions = []string{
	"How do I add markers to my model?",
	"What is the difference between inverse and forward dynamics?",
	"How can I visualize muscle activations?",
	"How do I import motion capture data?",
}

const maxQueryBytes = 64 << 10

type Asker interface {
	Ask(ctx context.Context, question string) (answer.Response, error)
}

type Handler struct {
	asker   Asker
	history *History
	timeout time.Duration
}

func NewHandler(asker Asker, history *History, timeout time.Duration) *Handler {
	if history == nil {
		history = NewHistory(0)
	}
	return &Handler{asker: asker, history: history, timeout: timeout}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Suggestions []string
	}{Suggestions: Suggestions}
	if err := indexTmpl.Execute(w, data); err != nil {
		slog.ErrorContext(r.Context(), "failed to render chat page", "error", err)
	}
}

// Query answers a question sent as form field "query" or as a JSON body.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	question, err := readQuery(w, r)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.asker.Ask(ctx, question)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.WarnContext(ctx, "query timed out", "error", err)
			h.writeError(ctx, w, "TIMEOUT", "query timed out", http.StatusGatewayTimeout)
			return
		}
		slog.ErrorContext(ctx, "query failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to answer query", http.StatusInternalServerError)
		return
	}

	h.history.Append(Exchange{Question: question, Answer: resp.Answer, Status: resp.Status, At: time.Now()})

	status := http.StatusOK
	if resp.Status == answer.StatusNotReady {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(ctx, w, status, map[string]any{
		"answer":  resp.Answer,
		"sources": resp.Sources,
		"status":  resp.Status,
	})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.history.Clear()
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Chat history cleared",
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"data": h.history.Entries()})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readQuery(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(req.Query), nil
	}
	return strings.TrimSpace(r.FormValue("query")), nil
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
