package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aetherflow/collabedit/internal/gateway/svc"
	"github.com/aetherflow/collabedit/internal/session"
	"github.com/aetherflow/collabedit/internal/transform"
)

// SubmitOperationRequest is the HTTP fallback for submitting edits.
// It mirrors the realtime path: clients without a live websocket can
// still push operations and poll for the result.
type SubmitOperationRequest struct {
	DocumentID  string              `json:"document_id"`
	Operation   transform.Operation `json:"operation"`
	BaseVersion uint64              `json:"base_version"`
}

// SubmitOperationResponse reports the outcome of an operation.
type SubmitOperationResponse struct {
	Applied   bool                 `json:"applied"`
	Operation *transform.Operation `json:"operation,omitempty"`
	Version   uint64               `json:"version"`
}

// SubmitOperationHandler runs one edit through the session manager.
func SubmitOperationHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitOperationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		if req.DocumentID == "" {
			BadRequestResponse(w, "document_id is required", requestID(r))
			return
		}
		req.Operation.UserID = callerID(r, req.Operation.UserID)

		applied, err := svcCtx.Manager.SubmitOperation(r.Context(), req.DocumentID, req.Operation, req.BaseVersion)
		if err != nil {
			recordOperation(svcCtx, "rejected")
			writeOperationError(w, err, requestID(r))
			return
		}

		if applied == nil {
			recordOperation(svcCtx, "dropped")
		} else {
			recordOperation(svcCtx, "applied")
		}

		_, docVersion, _ := svcCtx.Manager.Content(req.DocumentID)
		SuccessResponse(w, SubmitOperationResponse{
			Applied:   applied != nil,
			Operation: applied,
			Version:   docVersion,
		}, requestID(r))
	}
}

// LockRequest claims or releases a section.
type LockRequest struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id,omitempty"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// LockSectionHandler claims [start, end) for the caller.
func LockSectionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		userID := callerID(r, req.UserID)
		if req.DocumentID == "" || userID == "" {
			BadRequestResponse(w, "document_id and user_id are required", requestID(r))
			return
		}

		if err := svcCtx.Manager.LockSection(r.Context(), req.DocumentID, userID, req.Start, req.End); err != nil {
			writeOperationError(w, err, requestID(r))
			return
		}

		SuccessResponse(w, nil, requestID(r))
	}
}

// UnlockSectionHandler releases a lock.
func UnlockSectionHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		userID := callerID(r, req.UserID)
		if req.DocumentID == "" || userID == "" {
			BadRequestResponse(w, "document_id and user_id are required", requestID(r))
			return
		}

		if err := svcCtx.Manager.UnlockSection(r.Context(), req.DocumentID, userID, req.Start, req.End); err != nil {
			writeOperationError(w, err, requestID(r))
			return
		}

		SuccessResponse(w, nil, requestID(r))
	}
}

// CursorRequest updates the caller's presence.
type CursorRequest struct {
	DocumentID string                   `json:"document_id"`
	UserID     string                   `json:"user_id,omitempty"`
	Cursor     transform.CursorPosition `json:"cursor"`
}

// UpdateCursorHandler overwrites the caller's last-known cursor.
func UpdateCursorHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CursorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		userID := callerID(r, req.UserID)
		if req.DocumentID == "" || userID == "" {
			BadRequestResponse(w, "document_id and user_id are required", requestID(r))
			return
		}

		if err := svcCtx.Manager.UpdateCursor(r.Context(), req.DocumentID, userID, req.Cursor); err != nil {
			writeOperationError(w, err, requestID(r))
			return
		}

		SuccessResponse(w, nil, requestID(r))
	}
}

// writeOperationError maps session errors onto HTTP statuses.
func writeOperationError(w http.ResponseWriter, err error, reqID string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		NotFoundResponse(w, err.Error(), reqID)
	case errors.Is(err, session.ErrNotParticipant):
		ForbiddenResponse(w, err.Error(), reqID)
	case errors.Is(err, session.ErrLockOverlap),
		errors.Is(err, session.ErrRangeLocked),
		errors.Is(err, session.ErrStaleBase):
		ConflictResponse(w, err.Error(), reqID)
	case errors.Is(err, session.ErrInvalidRange),
		errors.Is(err, transform.ErrInvalidOperation),
		errors.Is(err, transform.ErrOutOfBounds):
		BadRequestResponse(w, err.Error(), reqID)
	default:
		InternalServerErrorResponse(w, err.Error(), reqID)
	}
}

func recordOperation(svcCtx *svc.ServiceContext, outcome string) {
	if svcCtx.Metrics != nil {
		svcCtx.Metrics.RecordOperation(outcome)
	}
}
