// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dvrdlog "github.com/ManuGH/dvrd/internal/log"
	"github.com/ManuGH/dvrd/internal/store"
	"github.com/ManuGH/dvrd/internal/tasks"
)

// newRouter serves the operational surface: health, metrics and read-only
// task progress. Domain records are not exposed over HTTP. Triggered task
// runs outlive their request, so they are driven by the daemon context.
func newRouter(daemonCtx context.Context, db *store.Store, registry *tasks.Registry, runner *tasks.Runner, runnable ...tasks.Task) http.Handler {
	byName := make(map[string]tasks.Task, len(runnable))
	for _, t := range runnable {
		byName[t.Name()] = t
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, registry.List())
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			h := registry.Get(chi.URLParam(req, "id"))
			if h == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
				return
			}
			writeJSON(w, http.StatusOK, h.Snapshot())
		})
		r.Post("/{name}/run", func(w http.ResponseWriter, req *http.Request) {
			task, ok := byName[chi.URLParam(req, "name")]
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task"})
				return
			}
			h := runner.RunNow(daemonCtx, task)
			if h == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "task already running"})
				return
			}
			writeJSON(w, http.StatusAccepted, h.Snapshot())
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := dvrdlog.WithComponent("api")
		l.Error().Err(err).Msg("response encode failed")
	}
}
