package middleware

import (
	"net/http"
	"strings"

	"github.com/aetherflow/collabedit/internal/gateway/jwt"
)

// JWTMiddleware requires a valid Bearer token and stores the verified
// identity on the request context.
func JWTMiddleware(jwtManager *jwt.Manager) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractTokenFromHeader(r)
			if tokenString == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.VerifyToken(tokenString)
			if err != nil {
				switch err {
				case jwt.ErrExpiredToken:
					http.Error(w, "Token has expired", http.StatusUnauthorized)
				case jwt.ErrInvalidSignature:
					http.Error(w, "Invalid token signature", http.StatusUnauthorized)
				case jwt.ErrMissingClaims:
					http.Error(w, "Missing required claims", http.StatusUnauthorized)
				default:
					http.Error(w, "Invalid token", http.StatusUnauthorized)
				}
				return
			}

			ctx := r.Context()
			ctx = UserIDToContext(ctx, claims.UserID)
			ctx = UserNameToContext(ctx, claims.UserName)

			next(w, r.WithContext(ctx))
		}
	}
}

// OptionalJWTMiddleware verifies a token when one is present but never
// blocks the request.
func OptionalJWTMiddleware(jwtManager *jwt.Manager) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractTokenFromHeader(r)
			if tokenString == "" {
				next(w, r)
				return
			}

			claims, err := jwtManager.VerifyToken(tokenString)
			if err != nil {
				next(w, r)
				return
			}

			ctx := r.Context()
			ctx = UserIDToContext(ctx, claims.UserID)
			ctx = UserNameToContext(ctx, claims.UserName)

			next(w, r.WithContext(ctx))
		}
	}
}

// ExtractTokenFromHeader pulls the Bearer token off a request, or "".
func ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}
