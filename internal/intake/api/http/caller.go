package httpapi

import (
	"net/http"
	"strings"

	"github.com/harborlaw/intake/internal/intake/access"
	"github.com/harborlaw/intake/internal/intake/identity"
)

// Request headers carrying caller context.
const (
	headerFirmID      = "X-Firm-ID"
	headerResumeToken = "X-Resume-Token"
)

// caller assembles the caller context from request headers. A bearer token,
// when present, must verify; a bad token fails the request rather than
// silently downgrading the caller to anonymous.
func (h *Handler) caller(r *http.Request) (access.Caller, error) {
	caller := access.Caller{
		FirmID:      strings.TrimSpace(r.Header.Get(headerFirmID)),
		ResumeToken: strings.TrimSpace(r.Header.Get(headerResumeToken)),
	}

	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return caller, nil
	}
	assertion, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return caller, nil
	}

	claims, err := identity.Verify(strings.TrimSpace(assertion), h.identity)
	if err != nil {
		return access.Caller{}, err
	}
	caller.UserID = claims.UserID
	return caller, nil
}
