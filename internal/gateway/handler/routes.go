package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"github.com/aetherflow/collabedit/internal/gateway/middleware"
	"github.com/aetherflow/collabedit/internal/gateway/svc"
)

// RegisterHandlers wires every route. Global middleware (request id,
// logging, metrics, rate limiting) is registered on the server by
// main; only JWT verification is applied per-route here.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	// Probes and realtime entry points; no auth so health checks and
	// the websocket handshake (which authenticates in-band) work.
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/health",
				Handler: HealthCheckHandler(svcCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/ping",
				Handler: PingHandler(svcCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/ws",
				Handler: WebSocketHandler(svcCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/ws/stats",
				Handler: WebSocketStatsHandler(svcCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/stats",
				Handler: StatsHandler(svcCtx),
			},
		},
	)

	if svcCtx.Metrics != nil {
		server.AddRoutes(
			[]rest.Route{
				{
					Method:  http.MethodGet,
					Path:    "/metrics",
					Handler: svcCtx.Metrics.Handler().ServeHTTP,
				},
			},
		)
	}

	if svcCtx.JWTManager != nil {
		server.AddRoutes(
			[]rest.Route{
				{
					Method:  http.MethodPost,
					Path:    "/auth/token",
					Handler: TokenHandler(svcCtx),
				},
				{
					Method:  http.MethodPost,
					Path:    "/auth/refresh",
					Handler: RefreshTokenHandler(svcCtx),
				},
			},
			rest.WithPrefix("/api/v1"),
		)
	}

	// Collaboration API: the HTTP fallback mirroring the realtime
	// websocket path.
	authed := authedWrapper(svcCtx)
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodPost,
				Path:    "/sessions/join",
				Handler: authed(JoinSessionHandler(svcCtx)),
			},
			{
				Method:  http.MethodPost,
				Path:    "/sessions/leave",
				Handler: authed(LeaveSessionHandler(svcCtx)),
			},
			{
				Method:  http.MethodGet,
				Path:    "/sessions",
				Handler: authed(GetSessionHandler(svcCtx)),
			},
			{
				Method:  http.MethodPost,
				Path:    "/operations",
				Handler: authed(SubmitOperationHandler(svcCtx)),
			},
			{
				Method:  http.MethodPost,
				Path:    "/locks",
				Handler: authed(LockSectionHandler(svcCtx)),
			},
			{
				Method:  http.MethodDelete,
				Path:    "/locks",
				Handler: authed(UnlockSectionHandler(svcCtx)),
			},
			{
				Method:  http.MethodPost,
				Path:    "/cursors",
				Handler: authed(UpdateCursorHandler(svcCtx)),
			},
			{
				Method:  http.MethodPost,
				Path:    "/versions",
				Handler: authed(SaveVersionHandler(svcCtx)),
			},
			{
				Method:  http.MethodGet,
				Path:    "/versions",
				Handler: authed(VersionHistoryHandler(svcCtx)),
			},
			{
				Method:  http.MethodPost,
				Path:    "/versions/restore",
				Handler: authed(RestoreVersionHandler(svcCtx)),
			},
		},
		rest.WithPrefix("/api/v1"),
	)
}

// authedWrapper applies JWT verification when auth is configured;
// otherwise routes pass through untouched.
func authedWrapper(svcCtx *svc.ServiceContext) func(http.HandlerFunc) http.HandlerFunc {
	return func(h http.HandlerFunc) http.HandlerFunc {
		if svcCtx.JWTManager != nil {
			return middleware.JWTMiddleware(svcCtx.JWTManager)(h)
		}
		return h
	}
}
