// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package status serves the monitor's health, last-cycle status and manual
// cycle trigger over HTTP.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bcem/orderwatch/internal/scan"
)

// Cycles is the scheduler surface the server needs.
type Cycles interface {
	Trigger(ctx context.Context) bool
	Last() *scan.Result
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the status endpoints.
type Handler struct {
	cycles Cycles
	pinger Pinger
}

// NewHandler creates a status handler. pinger may be nil.
func NewHandler(cycles Cycles, pinger Pinger) *Handler {
	return &Handler{cycles: cycles, pinger: pinger}
}

// Routes returns the endpoint mux. Cycles started through POST /cycle run
// under ctx, not the request's context.
func (h *Handler) Routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.ServeHealth)
	mux.HandleFunc("GET /status", h.ServeStatus)
	mux.HandleFunc("POST /cycle", func(w http.ResponseWriter, r *http.Request) {
		h.serveCycle(ctx, w)
	})
	return mux
}

// ServeHealth reports 200 when the ledger store answers.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			slog.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ServeStatus returns the last completed cycle, or null before the first.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*scan.Result{"last_cycle": h.cycles.Last()})
}

func (h *Handler) serveCycle(ctx context.Context, w http.ResponseWriter) {
	if !h.cycles.Trigger(ctx) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "cycle already running"})
		return
	}
	slog.Info("manual cycle triggered")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// Serve starts the status server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler.Routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind status port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("status server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("status server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("status server error", "error", err)
		}
	}()

	return ready, nil
}
