package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aetherflow/collabedit/internal/gateway/middleware"
	"github.com/aetherflow/collabedit/internal/gateway/svc"
	"github.com/aetherflow/collabedit/internal/session"
)

func requestID(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}

// callerID resolves the acting user: the authenticated identity when
// present, otherwise the one named in the request body. The fallback
// only functions with auth disabled.
func callerID(r *http.Request, bodyUserID string) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return bodyUserID
}

// JoinSessionRequest registers a participant over HTTP, mirroring the
// websocket authenticate flow for clients that poll.
type JoinSessionRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id,omitempty"`
}

// JoinSessionHandler joins a document session.
func JoinSessionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		if req.DocumentID == "" {
			BadRequestResponse(w, "document_id is required", requestID(r))
			return
		}
		userID := callerID(r, req.UserID)
		if userID == "" {
			BadRequestResponse(w, "user_id is required", requestID(r))
			return
		}

		sess, err := svcCtx.Manager.Join(r.Context(), req.DocumentID, userID)
		if err != nil {
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}

		SuccessResponse(w, sess, requestID(r))
	}
}

// LeaveSessionHandler removes a participant.
func LeaveSessionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		userID := callerID(r, req.UserID)
		if req.DocumentID == "" || userID == "" {
			BadRequestResponse(w, "document_id and user_id are required", requestID(r))
			return
		}

		if err := svcCtx.Manager.Leave(r.Context(), req.DocumentID, userID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				NotFoundResponse(w, err.Error(), requestID(r))
				return
			}
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}

		// The session broadcast tells everyone else; the departing
		// user's own open tabs hear it through the hub.
		svcCtx.WSServer.NotifyUserLeft(req.DocumentID, userID)

		SuccessResponse(w, nil, requestID(r))
	}
}

// GetSessionHandler returns session metadata plus the live document
// state. Without a document_id it lists every session recorded in the
// registry, which with a shared registry spans all gateway instances.
func GetSessionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			sessions, err := svcCtx.Manager.ListSessions(r.Context())
			if err != nil {
				InternalServerErrorResponse(w, err.Error(), requestID(r))
				return
			}
			SuccessResponse(w, map[string]interface{}{
				"sessions": sessions,
				"count":    len(sessions),
			}, requestID(r))
			return
		}

		sess, err := svcCtx.Manager.GetSession(documentID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				NotFoundResponse(w, err.Error(), requestID(r))
				return
			}
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}

		content, docVersion, err := svcCtx.Manager.Content(documentID)
		if err != nil {
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}
		locks, err := svcCtx.Manager.Locks(documentID)
		if err != nil {
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}

		SuccessResponse(w, map[string]interface{}{
			"session": sess,
			"content": content,
			"version": docVersion,
			"locks":   locks,
		}, requestID(r))
	}
}
