package api

import (
	"encoding/json"
	"net/http"

	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterMetricsRoutes exposes the JSON snapshot on GET /metrics, clears it
// on POST /metrics/reset and serves the Prometheus exposition format on
// GET /metrics/prometheus.
func RegisterMetricsRoutes(mux *http.ServeMux, instrumentedStore *store.InstrumentedStore, gatherer prometheus.Gatherer) {
	mux.Handle("GET /metrics", MetricsHandler(instrumentedStore))
	mux.Handle("POST /metrics/reset", ResetMetricsHandler(instrumentedStore))
	if gatherer != nil {
		mux.Handle("GET /metrics/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// MetricsHandler returns current store metrics as JSON.
func MetricsHandler(instrumentedStore *store.InstrumentedStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := instrumentedStore.GetMetrics()

		response := map[string]interface{}{
			"keys": metrics.Keys,
			"operations": map[string]uint64{
				"get":    metrics.GetCount,
				"set":    metrics.SetCount,
				"delete": metrics.DeleteCount,
				"list":   metrics.ListCount,
			},
			"avg_latency": map[string]string{
				"get":    metrics.GetAvgLatency.String(),
				"set":    metrics.SetAvgLatency.String(),
				"delete": metrics.DeleteAvgLatency.String(),
				"list":   metrics.ListAvgLatency.String(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// ResetMetricsHandler zeroes the JSON snapshot counters. Prometheus series
// are left alone.
func ResetMetricsHandler(instrumentedStore *store.InstrumentedStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instrumentedStore.ResetMetrics()
		w.WriteHeader(http.StatusNoContent)
	}
}
