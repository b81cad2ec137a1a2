package handler

import (
	"net/http"

	"github.com/aetherflow/collabedit/internal/gateway/svc"
)

// WebSocketHandler upgrades the request into a collaboration
// connection.
func WebSocketHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return svcCtx.WSServer.HandleWebSocket()
}

// WebSocketStatsHandler reports connection hub statistics.
func WebSocketStatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SuccessResponse(w, svcCtx.WSServer.GetStats(), requestID(r))
	}
}
