package handler

import (
	"encoding/json"
	"net/http"
)

// Response is the uniform API envelope.
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SuccessResponse writes a 200 with data.
func SuccessResponse(w http.ResponseWriter, data interface{}, requestID string) {
	response := Response{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ErrorResponse writes an error with the given status.
func ErrorResponse(w http.ResponseWriter, statusCode int, message string, requestID string) {
	response := Response{
		Code:      statusCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

func BadRequestResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusBadRequest, message, requestID)
}

func UnauthorizedResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusUnauthorized, message, requestID)
}

func ForbiddenResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusForbidden, message, requestID)
}

func NotFoundResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusNotFound, message, requestID)
}

func ConflictResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusConflict, message, requestID)
}

func InternalServerErrorResponse(w http.ResponseWriter, message string, requestID string) {
	ErrorResponse(w, http.StatusInternalServerError, message, requestID)
}
