// Package i18n resolves request locales and renders user-facing messages
// for stable error codes.
package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

var supportedTags = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var matcher = language.NewMatcher(supportedTags)

// SupportedTags returns the list of supported language tags.
func SupportedTags() []language.Tag {
	tags := make([]language.Tag, len(supportedTags))
	copy(tags, supportedTags)
	return tags
}

// DefaultTag returns the default language tag.
func DefaultTag() language.Tag {
	return supportedTags[0]
}

// ParseTag parses a single language tag, reporting whether it is supported.
func ParseTag(value string) (language.Tag, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultTag(), false
	}
	tag, err := language.Parse(value)
	if err != nil {
		return DefaultTag(), false
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return DefaultTag(), false
	}
	return supportedTags[index], true
}

// MatchTags returns the best supported tag for the caller's preferences.
func MatchTags(preferred []language.Tag) language.Tag {
	if len(preferred) == 0 {
		return DefaultTag()
	}
	_, index, _ := matcher.Match(preferred...)
	return supportedTags[index]
}

// ResolveRequestTag determines the best language tag for an HTTP request
// from its Accept-Language header.
func ResolveRequestTag(r *http.Request) language.Tag {
	if r == nil {
		return DefaultTag()
	}
	accept := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if accept == "" {
		return DefaultTag()
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil {
		return DefaultTag()
	}
	return MatchTags(tags)
}
