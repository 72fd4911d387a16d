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

// Package api exposes the job triggers over HTTP, along with health and
// Prometheus endpoints. Every trigger runs synchronously and returns the
// sweep summary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/lexdesk/procmon/internal/jobs"
	"github.com/lexdesk/procmon/internal/metrics"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Jobs runs the operational flows.
type Jobs interface {
	AutoAssign(ctx context.Context, req jobs.AssignRequest) (jobs.Summary, error)
	GenerateAlerts(ctx context.Context, req jobs.AlertRequest) (jobs.Summary, error)
	Sync(ctx context.Context, req jobs.SyncRequest) (jobs.SyncSummary, error)
}

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the job-trigger API.
type Handler struct {
	jobs     Jobs
	checks   map[string]Pinger
	validate *validator.Validate
}

// NewHandler creates an API handler. checks names the dependencies
// reported by /health.
func NewHandler(j Jobs, checks map[string]Pinger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Handler{jobs: j, checks: checks, validate: v}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.ServeHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/auto-assign", h.ServeAutoAssign)
		r.Post("/alerts", h.ServeAlerts)
		r.Post("/sync", h.ServeSync)
	})
	return r
}

// ServeAutoAssign runs the auto-assignment sweep. The body is optional.
func (h *Handler) ServeAutoAssign(w http.ResponseWriter, r *http.Request) {
	var req jobs.AssignRequest
	if err := h.bind(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sum, err := h.jobs.AutoAssign(r.Context(), req)
	h.respond(w, sum, err)
}

// ServeAlerts runs the alert sweep. The body is optional.
func (h *Handler) ServeAlerts(w http.ResponseWriter, r *http.Request) {
	var req jobs.AlertRequest
	if err := h.bind(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sum, err := h.jobs.GenerateAlerts(r.Context(), req)
	h.respond(w, sum, err)
}

// ServeSync refreshes case records on demand.
func (h *Handler) ServeSync(w http.ResponseWriter, r *http.Request) {
	var req jobs.SyncRequest
	if err := h.bind(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sum, err := h.jobs.Sync(r.Context(), req)
	h.respond(w, sum, err)
}

// ServeHealth pings every dependency. Any failure makes the response 503.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

// bind decodes and validates a JSON body.
func (h *Handler) bind(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, body any, err error) {
	var cfgErr *jobs.ConfigError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, body)
	case errors.As(err, &cfgErr):
		slog.Error("job not configured", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	case errors.Is(err, jobs.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	default:
		slog.Error("job failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Serve starts the HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
