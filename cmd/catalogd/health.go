package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/metabridge/catalogd/internal/clusterinfo"
	"github.com/metabridge/catalogd/internal/metrics"
)

// opsRouter builds the ops-only HTTP surface: /healthz and /metrics. It
// never exposes the five dispatcher operations, matching the non-goal
// that REST/CLI façades for those operations live outside this module.
func opsRouter(instance *clusterinfo.Instance, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		health := instance.Health()
		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			clusterinfo.HealthStatus
			Instance clusterinfo.Metadata `json:"instance"`
		}{health, instance.Metadata()})
	})

	r.Handle("/metrics", m.Handler())

	return r
}
