package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	apperrors "github.com/harborlaw/intake/internal/platform/errors"
	"github.com/harborlaw/intake/internal/platform/i18n"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// writeError renders a domain error as {code, message} with the message
// localized to the request's Accept-Language preference.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}

	tag := i18n.ResolveRequestTag(r)
	writeJSON(w, status, errorJSON{
		Code:    string(code),
		Message: i18n.Message(tag, string(code), errorMetadata(err)),
	})
}

// errorMetadata extracts templating metadata from the nearest domain error in
// the chain.
func errorMetadata(err error) map[string]string {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Metadata
	}
	return nil
}

// decodeJSON parses a request body into dst. An empty body leaves dst at its
// zero value.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeIntakeValidation, "request body is not valid JSON", err)
	}
	return nil
}
