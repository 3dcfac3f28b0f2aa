package i18n

import (
	"net/http/httptest"
	"testing"

	"golang.org/x/text/language"
)

func TestParseTag(t *testing.T) {
	tag, ok := ParseTag("pt-BR")
	if !ok {
		t.Fatal("expected pt-BR to be supported")
	}
	if tag != language.BrazilianPortuguese {
		t.Fatalf("tag = %v, want pt-BR", tag)
	}

	if _, ok := ParseTag("not-a-tag!!"); ok {
		t.Fatal("expected invalid tag to be rejected")
	}
	if tag, _ := ParseTag(""); tag != DefaultTag() {
		t.Fatalf("empty tag resolved to %v, want default", tag)
	}
}

func TestResolveRequestTagFromAcceptLanguage(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.5")

	if tag := ResolveRequestTag(r); tag != language.BrazilianPortuguese {
		t.Fatalf("tag = %v, want pt-BR", tag)
	}

	r.Header.Set("Accept-Language", "fr-FR")
	if tag := ResolveRequestTag(r); tag != DefaultTag() {
		t.Fatalf("tag = %v, want default", tag)
	}

	r.Header.Del("Accept-Language")
	if tag := ResolveRequestTag(r); tag != DefaultTag() {
		t.Fatalf("tag = %v, want default", tag)
	}
}

func TestMessageFallsBackToUnknown(t *testing.T) {
	got := Message(DefaultTag(), "NO_SUCH_CODE", nil)
	if got != Message(DefaultTag(), CodeUnknown, nil) {
		t.Fatalf("message = %q, want unknown fallback", got)
	}
	if got == "" {
		t.Fatal("expected a non-empty fallback message")
	}
}

func TestMessageLocalized(t *testing.T) {
	en := Message(language.AmericanEnglish, CodeIntakeConversationClosed, nil)
	pt := Message(language.BrazilianPortuguese, CodeIntakeConversationClosed, nil)
	if en == pt {
		t.Fatal("expected distinct localized messages")
	}
}
