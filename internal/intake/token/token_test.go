package token

import (
	"strings"
	"testing"

	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

func TestIssueProducesVerifiableToken(t *testing.T) {
	raw, hash, err := Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if raw == "" || hash == "" {
		t.Fatal("expected non-empty token and hash")
	}
	if strings.Contains(hash, raw) {
		t.Fatal("expected hash to not embed the raw token")
	}
	if err := Verify(raw, hash); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestIssueTokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		raw, _, err := Issue()
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[raw]; dup {
			t.Fatal("expected unique tokens")
		}
		seen[raw] = struct{}{}
	}
}

func TestVerifyRejectsMismatch(t *testing.T) {
	raw, hash, err := Issue()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name   string
		raw    string
		stored string
	}{
		{"wrong token", raw + "x", hash},
		{"wrong hash", raw, Hash("something-else")},
		{"empty token", "", hash},
		{"empty hash", raw, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(tc.raw, tc.stored)
			if apperrors.CodeOf(err) != apperrors.CodeIntakeResumeTokenInvalid {
				t.Fatalf("expected resume-token-invalid, got %v", err)
			}
		})
	}
}
