package jwt

import (
	"errors"
	"testing"
	"time"
)

func createTestManager() *Manager {
	return NewManager("test-secret-key", 3600, 86400, "test-issuer")
}

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := createTestManager()

	token, err := manager.GenerateToken("user123", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Token should not be empty")
	}

	claims, err := manager.VerifyToken(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if claims.UserID != "user123" {
		t.Errorf("Expected UserID user123, got %s", claims.UserID)
	}
	if claims.UserName != "alice" {
		t.Errorf("Expected UserName alice, got %s", claims.UserName)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("Expected Issuer test-issuer, got %s", claims.Issuer)
	}
}

func TestVerifyToken_Invalid(t *testing.T) {
	manager := createTestManager()

	if _, err := manager.VerifyToken("invalid-token"); err == nil {
		t.Error("Expected error for invalid token")
	}
	if _, err := manager.VerifyToken(""); err == nil {
		t.Error("Expected error for empty token")
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	manager1 := NewManager("secret1", 3600, 86400, "issuer")
	manager2 := NewManager("secret2", 3600, 86400, "issuer")

	token, err := manager1.GenerateToken("user123", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := manager2.VerifyToken(token); err == nil {
		t.Error("Expected error when verifying with wrong secret")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	manager := NewManager("test-secret", 1, 86400, "test-issuer")

	token, err := manager.GenerateToken("user123", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	time.Sleep(2 * time.Second)

	if _, err := manager.VerifyToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyToken_MissingUserID(t *testing.T) {
	manager := createTestManager()

	token, err := manager.GenerateToken("", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := manager.VerifyToken(token); !errors.Is(err, ErrMissingClaims) {
		t.Errorf("Expected ErrMissingClaims, got %v", err)
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	manager := createTestManager()

	refreshToken, err := manager.GenerateRefreshToken("user123")
	if err != nil {
		t.Fatalf("Failed to generate refresh token: %v", err)
	}
	if refreshToken == "" {
		t.Fatal("Refresh token should not be empty")
	}

	claims, err := manager.VerifyToken(refreshToken)
	if err != nil {
		t.Fatalf("Failed to verify refresh token: %v", err)
	}
	if claims.UserID != "user123" {
		t.Errorf("Expected UserID user123, got %s", claims.UserID)
	}
}

func TestRefreshToken(t *testing.T) {
	manager := createTestManager()

	accessToken, _ := manager.GenerateToken("user123", "alice")
	refreshToken, _ := manager.GenerateRefreshToken("user123")

	// The issued-at second must tick over so the tokens differ.
	time.Sleep(1100 * time.Millisecond)

	newAccessToken, err := manager.RefreshToken(refreshToken)
	if err != nil {
		t.Fatalf("Failed to refresh token: %v", err)
	}
	if newAccessToken == accessToken {
		t.Error("New access token should be different from old one")
	}

	claims, err := manager.VerifyToken(newAccessToken)
	if err != nil {
		t.Fatalf("Failed to verify new token: %v", err)
	}
	if claims.UserID != "user123" {
		t.Errorf("Expected UserID user123, got %s", claims.UserID)
	}
}

func TestRefreshToken_Invalid(t *testing.T) {
	manager := createTestManager()

	if _, err := manager.RefreshToken("not-a-token"); err == nil {
		t.Error("Expected error refreshing from an invalid token")
	}
}

func TestGetExpire(t *testing.T) {
	manager := createTestManager()

	if got := manager.GetExpire(); got != 3600*time.Second {
		t.Errorf("Expected expire %v, got %v", 3600*time.Second, got)
	}
}
