package supabase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: "a@example.com",
		Role:  "authenticated",
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestParseAccessToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := ParseAccessToken(signTestToken(t, "user-1", exp))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if !claims.ExpiresAt.Time.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, exp)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
}

func TestParseAccessToken_Malformed(t *testing.T) {
	if _, err := ParseAccessToken("not-a-token"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestSession_ExpiryFromClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	s := &Session{AccessToken: signTestToken(t, "user-1", exp)}
	if !s.Expiry().Equal(exp) {
		t.Errorf("Expiry() = %v, want %v", s.Expiry(), exp)
	}

	s = &Session{AccessToken: "opaque", ExpiresAt: exp.Unix()}
	if !s.Expiry().Equal(exp) {
		t.Errorf("Expiry() with expires_at = %v, want %v", s.Expiry(), exp)
	}
}
