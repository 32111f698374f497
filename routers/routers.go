package routers

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrdag/handlers"
)

// RegisterRoutes sets up all the HTTP routes for the consensus API
func RegisterRoutes(r *mux.Router, h *handlers.Handler, reg *prometheus.Registry) {

	// Wraps a payload in a new vertex with auto-selected parents
	r.HandleFunc("/messages", h.AddMessage).Methods("POST")

	// Inserts a fully-formed vertex with explicit parents
	r.HandleFunc("/vertices", h.AddVertex).Methods("POST")

	// Consensus state of a single vertex
	r.HandleFunc("/vertices/{id}/status", h.GetStatus).Methods("GET")

	// Current tip set (vertices without children)
	r.HandleFunc("/tips", h.GetTips).Methods("GET")

	// Deterministic linearization of the finalized subgraph
	r.HandleFunc("/order", h.GetTotalOrder).Methods("GET")

	// Engine counters as JSON
	r.HandleFunc("/metrics", h.GetMetrics).Methods("GET")

	// Prometheus exposition
	if reg != nil {
		r.Handle("/metrics/prometheus", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}
}
