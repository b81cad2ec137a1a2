package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aetherflow/collabedit/internal/gateway/svc"
)

// HealthResponse is the health probe payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HealthCheckHandler answers liveness probes.
func HealthCheckHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "UP",
			Timestamp: time.Now(),
			Service:   "collabedit-gateway",
			Version:   "0.2.0",
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}

// PingHandler answers plain-text pings.
func PingHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}
}

// StatsHandler reports live manager and hub statistics.
func StatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"sessions":  svcCtx.Manager.GetStats(),
			"websocket": svcCtx.WSServer.GetStats(),
		}
		SuccessResponse(w, data, requestID(r))
	}
}
