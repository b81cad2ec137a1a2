package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aetherflow/collabedit/internal/gateway/svc"
	"github.com/aetherflow/collabedit/internal/session"
	"github.com/aetherflow/collabedit/internal/version"
)

// SaveVersionRequest checkpoints the current document state.
type SaveVersionRequest struct {
	DocumentID string `json:"document_id"`
	Author     string `json:"author,omitempty"`
	Message    string `json:"message,omitempty"`
}

// SaveVersionHandler creates an explicit version snapshot.
func SaveVersionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveVersionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		author := callerID(r, req.Author)
		if req.DocumentID == "" || author == "" {
			BadRequestResponse(w, "document_id and author are required", requestID(r))
			return
		}

		v, err := svcCtx.Manager.SaveVersion(r.Context(), req.DocumentID, author, req.Message)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				NotFoundResponse(w, err.Error(), requestID(r))
				return
			}
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}

		if svcCtx.Metrics != nil {
			svcCtx.Metrics.VersionsSavedTotal.Inc()
		}
		SuccessResponse(w, v, requestID(r))
	}
}

// VersionHistoryHandler lists versions newest-first.
func VersionHistoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			BadRequestResponse(w, "document_id is required", requestID(r))
			return
		}

		history, err := svcCtx.Manager.VersionHistory(r.Context(), documentID)
		if err != nil {
			InternalServerErrorResponse(w, err.Error(), requestID(r))
			return
		}

		SuccessResponse(w, history, requestID(r))
	}
}

// RestoreVersionRequest replaces the live buffer with a stored
// version.
type RestoreVersionRequest struct {
	DocumentID string `json:"document_id"`
	VersionID  string `json:"version_id"`
	UserID     string `json:"user_id,omitempty"`
}

// RestoreVersionHandler restores a stored version into the live
// session.
func RestoreVersionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RestoreVersionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		userID := callerID(r, req.UserID)
		if req.DocumentID == "" || req.VersionID == "" || userID == "" {
			BadRequestResponse(w, "document_id, version_id and user_id are required", requestID(r))
			return
		}

		v, err := svcCtx.Manager.RestoreVersion(r.Context(), req.DocumentID, userID, req.VersionID)
		if err != nil {
			switch {
			case errors.Is(err, version.ErrVersionNotFound),
				errors.Is(err, session.ErrSessionNotFound):
				NotFoundResponse(w, err.Error(), requestID(r))
			default:
				InternalServerErrorResponse(w, err.Error(), requestID(r))
			}
			return
		}

		// Every connected client's buffer just went stale; push them
		// the authoritative state.
		svcCtx.WSServer.SyncDocument(req.DocumentID)

		SuccessResponse(w, v, requestID(r))
	}
}
