// Package health serves liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Status answers the public health endpoint.
func Status() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "UP"})
	}
}

// IndexReporter exposes the state readiness depends on.
type IndexReporter interface {
	Len() int
	Depth() int
}

// Readiness is 200 once an index is attached; the body carries its size.
func Readiness(ix IndexReporter, backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status  string `json:"status"`
			Tiles   int    `json:"tiles"`
			Depth   int    `json:"depth,omitempty"`
			Backend string `json:"backend,omitempty"`
		}
		w.Header().Set("Content-Type", "application/json")
		if ix == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(resp{Status: "not_ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(resp{
			Status:  "ready",
			Tiles:   ix.Len(),
			Depth:   ix.Depth(),
			Backend: backend,
		})
	}
}
