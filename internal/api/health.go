package api

import (
	"context"
	"net/http"
	"time"

	"github.com/docassist/docassist/internal/log"
	"github.com/docassist/docassist/internal/store"
)

const healthTimeout = 3 * time.Second

// healthHandler reports liveness plus database reachability.
func healthHandler(st *store.Store, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			}, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "ok",
		}, logger)
	}
}

// infoHandler exposes build and model information.
func infoHandler(version, model string, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "docassist",
			"version": version,
			"model":   model,
			"time":    time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}
