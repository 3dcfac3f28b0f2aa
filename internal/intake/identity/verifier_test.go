package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

func TestLoadVerifierConfigFromEnv(t *testing.T) {
	t.Setenv("INTAKE_IDENTITY_ISSUER", "")
	t.Setenv("INTAKE_IDENTITY_AUDIENCE", "")
	t.Setenv("INTAKE_IDENTITY_PUBLIC_KEY", "")

	if _, err := LoadVerifierConfigFromEnv(nil); err == nil {
		t.Fatal("expected error when env vars are missing")
	}

	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	t.Setenv("INTAKE_IDENTITY_ISSUER", "issuer")
	t.Setenv("INTAKE_IDENTITY_AUDIENCE", "intake-service")
	t.Setenv("INTAKE_IDENTITY_PUBLIC_KEY", base64.RawStdEncoding.EncodeToString(pubKey))

	cfg, err := LoadVerifierConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load verifier config: %v", err)
	}
	if cfg.Issuer != "issuer" || cfg.Audience != "intake-service" {
		t.Fatal("expected issuer and audience to be loaded")
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		t.Fatalf("expected public key size %d", ed25519.PublicKeySize)
	}
}

func TestVerifySuccess(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assertion := signAssertion(t, priv, map[string]any{
		"alg": "EdDSA",
		"typ": "JWT",
	}, map[string]any{
		"iss":   "issuer",
		"aud":   []string{"intake-service", "secondary"},
		"sub":   "user-1",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Add(-time.Minute).Unix(),
		"email": "dana@example.com",
	})

	cfg := VerifierConfig{Issuer: "issuer", Audience: "intake-service", Key: pub, Now: func() time.Time { return now }}
	claims, err := Verify(assertion, cfg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("user id = %q, want user-1", claims.UserID)
	}
	if claims.Email != "dana@example.com" {
		t.Fatalf("email = %q, want dana@example.com", claims.Email)
	}
}

func TestVerifyRejections(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate second key: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	header := map[string]any{"alg": "EdDSA", "typ": "JWT"}
	base := func() map[string]any {
		return map[string]any{
			"iss": "issuer",
			"aud": "intake-service",
			"sub": "user-1",
			"exp": now.Add(time.Hour).Unix(),
		}
	}

	cases := []struct {
		name      string
		assertion string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong key", signAssertion(t, otherPriv, header, base())},
		{"wrong issuer", signAssertion(t, priv, header, withClaim(base(), "iss", "someone-else"))},
		{"wrong audience", signAssertion(t, priv, header, withClaim(base(), "aud", "other-service"))},
		{"missing sub", signAssertion(t, priv, header, withClaim(base(), "sub", ""))},
		{"expired", signAssertion(t, priv, header, withClaim(base(), "exp", now.Add(-time.Hour).Unix()))},
		{"not yet valid", signAssertion(t, priv, header, withClaim(base(), "nbf", now.Add(time.Hour).Unix()))},
	}

	cfg := VerifierConfig{Issuer: "issuer", Audience: "intake-service", Key: pub, Now: func() time.Time { return now }}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Verify(tc.assertion, cfg)
			if apperrors.CodeOf(err) != apperrors.CodeIntakeAccessDenied {
				t.Fatalf("expected access denied, got %v", err)
			}
		})
	}
}

func withClaim(claims map[string]any, key string, value any) map[string]any {
	claims[key] = value
	return claims
}

func signAssertion(t *testing.T, privateKey ed25519.PrivateKey, header, payload map[string]any) string {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := encodedHeader + "." + encodedPayload
	signature := ed25519.Sign(privateKey, []byte(signingInput))
	encodedSig := base64.RawURLEncoding.EncodeToString(signature)
	return signingInput + "." + encodedSig
}
