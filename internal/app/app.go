package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"opensim-assistant/features/chat"
	"opensim-assistant/features/mcp"
	"opensim-assistant/features/page"
	"opensim-assistant/features/stats"
	"opensim-assistant/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Handler http.Handler
	History *chat.History
}

func New(deps *Dependencies) (*App, error) {
	if deps == nil || deps.Retriever == nil || deps.Index == nil {
		return nil, errors.New("app: dependencies not bootstrapped")
	}

	// Feature: Chat
	history := chat.NewHistory(0)
	chatHandler := chat.NewHandler(deps.Answerer(), history, deps.Config.RequestTimeout)

	// Feature: Stats
	statsHandler := stats.NewHandler(deps.Stats())

	// Feature: MCP
	mcpHandler := mcp.NewHandler(deps.Retriever, deps.Docs, deps.Config.TopK)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", middleware.CorrelationID(http.HandlerFunc(chatHandler.Index)))
	mux.Handle("POST /query", middleware.CorrelationID(enableCORS(chatHandler.Query)))
	mux.Handle("POST /clear", middleware.CorrelationID(enableCORS(chatHandler.Clear)))
	mux.Handle("GET /history", middleware.CorrelationID(enableCORS(chatHandler.History)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	if deps.Pages != nil {
		pageHandler := page.NewHandler(deps.Pages)
		mux.Handle("GET /pages", middleware.CorrelationID(enableCORS(pageHandler.List)))
	}

	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", middleware.CorrelationID(enableCORS(mcpHandler.HandleSSE)))
	mux.Handle("POST /mcp/messages", middleware.CorrelationID(enableCORS(mcpHandler.HandleMessage)))

	mux.HandleFunc("GET /health", chat.Health)

	// Preflight for the browser-facing POST routes.
	for _, path := range []string{"/query", "/clear", "/mcp/messages"} {
		mux.Handle("OPTIONS "+path, enableCORS(func(http.ResponseWriter, *http.Request) {}))
	}

	return &App{Handler: mux, History: history}, nil
}

// Run serves on port until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
