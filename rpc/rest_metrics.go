package rpc

import (
	"net/http"

	"github.com/gorilla/mux"
)

// MetricsEndpoints serves Prometheus metrics, nothing is registered when
// the handler is nil (Prometheus exporter is not in use).
func MetricsEndpoints(h http.Handler) RegistrarFunc {
	return func(r *mux.Router) {
		if h == nil {
			return
		}
		r.Handle("/metrics", h).Methods(http.MethodGet, http.MethodOptions)
	}
}
