// Package token issues and verifies the opaque resume tokens that let an
// anonymous visitor reattach to an unsecured conversation.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/harborlaw/intake/internal/platform/errors"
)

// tokenBytes is the entropy per token. 32 bytes keeps tokens unguessable
// without making the header value unwieldy.
const tokenBytes = 32

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Issue mints a new resume token and the hash stored at rest. The raw token
// is returned to the caller exactly once; only the hash is ever persisted.
func Issue() (raw string, hash string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate resume token: %w", err)
	}
	raw = strings.ToLower(encoding.EncodeToString(buf))
	return raw, Hash(raw), nil
}

// Hash derives the at-rest digest for a raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify checks a presented token against the stored hash in constant time.
func Verify(raw string, storedHash string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || storedHash == "" {
		return apperrors.New(apperrors.CodeIntakeResumeTokenInvalid, "resume token is invalid")
	}
	if subtle.ConstantTimeCompare([]byte(Hash(raw)), []byte(storedHash)) != 1 {
		return apperrors.New(apperrors.CodeIntakeResumeTokenInvalid, "resume token is invalid")
	}
	return nil
}
