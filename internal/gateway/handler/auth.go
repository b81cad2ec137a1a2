package handler

import (
	"encoding/json"
	"net/http"

	"github.com/aetherflow/collabedit/internal/gateway/svc"
)

// TokenRequest asks for an access token. Real deployments put a
// proper identity provider in front of this; the gateway only signs
// tokens for identities it is told about.
type TokenRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// TokenResponse carries a signed token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenHandler issues a token pair.
func TokenHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcCtx.JWTManager == nil {
			NotFoundResponse(w, "authentication is disabled", requestID(r))
			return
		}

		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		if req.UserID == "" {
			BadRequestResponse(w, "user_id is required", requestID(r))
			return
		}

		accessToken, err := svcCtx.JWTManager.GenerateToken(req.UserID, req.UserName)
		if err != nil {
			InternalServerErrorResponse(w, "failed to generate token", requestID(r))
			return
		}
		refreshToken, err := svcCtx.JWTManager.GenerateRefreshToken(req.UserID)
		if err != nil {
			InternalServerErrorResponse(w, "failed to generate refresh token", requestID(r))
			return
		}

		SuccessResponse(w, TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(svcCtx.JWTManager.GetExpire().Seconds()),
		}, requestID(r))
	}
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokenHandler refreshes an access token.
func RefreshTokenHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcCtx.JWTManager == nil {
			NotFoundResponse(w, "authentication is disabled", requestID(r))
			return
		}

		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequestResponse(w, "invalid request body", requestID(r))
			return
		}
		if req.RefreshToken == "" {
			BadRequestResponse(w, "refresh_token is required", requestID(r))
			return
		}

		accessToken, err := svcCtx.JWTManager.RefreshToken(req.RefreshToken)
		if err != nil {
			UnauthorizedResponse(w, err.Error(), requestID(r))
			return
		}

		SuccessResponse(w, TokenResponse{
			AccessToken: accessToken,
			ExpiresIn:   int64(svcCtx.JWTManager.GetExpire().Seconds()),
		}, requestID(r))
	}
}
