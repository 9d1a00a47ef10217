package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"combolock/internal/lock"
)

// ============================================================================
// HTTP API
// ============================================================================
// Routes:
//   GET  /ws          state WebSocket (see state_ws.go)
//   GET  /api/state   current lock.StateSnapshot
//   POST /api/events  one input envelope, same format as IPC
//   GET  /healthz     liveness
// ============================================================================

const maxEventBody = 4096

// newRouter mounts the HTTP API. Snapshot and input requests go through the
// daemon loop via events.
func newRouter(srv *Server, events chan<- lock.Event, corsOrigins []string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           900,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	if srv != nil {
		r.Get("/ws", srv.HandleStateWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			snap, err := requestSnapshot(r.Context(), events)
			if err != nil {
				logger.Warn("state snapshot failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, IPCResponse{Status: "error", Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Post("/events", func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, IPCResponse{Status: "error", Error: err.Error()})
				return
			}

			resp := enqueueEnvelope(body, events)
			switch {
			case resp.Status == "ok":
				writeJSON(w, http.StatusAccepted, resp)
			case resp.Error == errQueueFull.Error():
				writeJSON(w, http.StatusServiceUnavailable, resp)
			default:
				writeJSON(w, http.StatusBadRequest, resp)
			}
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	logger.Info("HTTP server listening", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
