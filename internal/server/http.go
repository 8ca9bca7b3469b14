package server

import (
	"encoding/json"
	"net/http"

	"github.com/sensoroic/sensoroic/internal/discovery"
	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/version"
)

// Health is the /healthz response body.
type Health struct {
	Status      string       `json:"status"`
	Version     string       `json:"version"`
	Build       version.Info `json:"build"`
	Connections int          `json:"connections"`
	Resources   int          `json:"resources"`
}

// Catalog is the /resources response body.
type Catalog struct {
	Sensors      []*discovery.Resource `json:"sensors"`
	SmartDevices []*discovery.Resource `json:"smart_devices"`
	Others       []*discovery.Resource `json:"others"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{
		Status:      "ok",
		Version:     version.Full(),
		Build:       version.Get(),
		Connections: s.GetActiveConnections(),
		Resources:   s.catalog.Len(),
	})
}

// handleResources serves the catalog, or one entry with ?id=<host><path>.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body any
	if id := r.URL.Query().Get("id"); id != "" {
		res, ok := s.catalog.Get(id)
		if !ok {
			http.Error(w, "resource not found", http.StatusNotFound)
			return
		}
		body = res
	} else {
		body = Catalog{
			Sensors:      s.catalog.Sensors(),
			SmartDevices: s.catalog.SmartDevices(),
			Others:       s.catalog.Others(),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// logRequests logs every request. The ResponseWriter is passed through
// untouched so WebSocket upgrades can still hijack it.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.UserAgent())
		next.ServeHTTP(w, r)
	})
}
