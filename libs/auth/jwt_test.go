package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(sub, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Name:  "Ana",
		Email: "ana@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	claims := testClaims("user-1", RoleClient, time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := NewVerifier(secret, nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.Role != RoleClient || parsed.Email != "ana@example.com" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestHS256RejectsExpiredAndUnknownRole(t *testing.T) {
	secret := "test-secret"

	expired, err := SignHS256(testClaims("user-1", RoleClient, -time.Minute), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier(secret, nil).Verify(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	owner, err := SignHS256(testClaims("user-1", "owner", time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier(secret, nil).Verify(owner); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestVerifierUsesJWKSForRS256(t *testing.T) {
	key := mustRSAKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := NewVerifier("shared", NewJWKSClient(srv.URL, time.Minute))

	rsToken := signRS256(t, testClaims("user-3", RoleAdmin, time.Hour), key, "kid-1")
	if c, err := v.Verify(rsToken); err != nil || c.Subject != "user-3" {
		t.Fatalf("expected rs256 token to verify, got %v %v", c, err)
	}

	unknownKid := signRS256(t, testClaims("user-3", RoleAdmin, time.Hour), key, "kid-2")
	if _, err := v.Verify(unknownKid); err == nil {
		t.Fatal("expected unknown kid to fail")
	}

	hsToken, err := SignHS256(testClaims("user-4", RoleClient, time.Hour), "shared")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if c, err := v.Verify(hsToken); err != nil || c.Subject != "user-4" {
		t.Fatalf("expected hs256 token to verify, got %v %v", c, err)
	}
}

func TestVerifierWithoutSecretRejectsHS256(t *testing.T) {
	token, err := SignHS256(testClaims("user-6", RoleClient, time.Hour), "shared")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("", nil).Verify(token); err == nil {
		t.Fatal("expected hs256 to be refused without a secret")
	}
}

func TestVerifierWithoutJWKSRejectsRS256(t *testing.T) {
	key := mustRSAKey(t)
	token := signRS256(t, testClaims("user-5", RoleClient, time.Hour), key, "kid-1")
	if _, err := NewVerifier("shared", nil).Verify(token); err == nil {
		t.Fatal("expected rs256 to be refused without jwks")
	}
}

func mustRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	return key
}

func signRS256(t *testing.T, claims Claims, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("rs256 sign failed: %v", err)
	}
	return s
}
