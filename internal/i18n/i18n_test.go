package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLanguage(context.Background(), lang)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NoAnswer"); got != "No answer provided." {
		t.Errorf("T(NoAnswer) = %q, want 'No answer provided.'", got)
	}
	if got := T(ctx, "NoContext"); got != "No context provided." {
		t.Errorf("T(NoContext) = %q, want 'No context provided.'", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "NoAnswer"); got != "No se proporciono respuesta." {
		t.Errorf("T(NoAnswer) = %q, want spanish text", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "PartHeader", map[string]any{"Number": 2, "Part": 3, "Key": "ans"})
	if got != "Question 2.3: ans" {
		t.Errorf("Td(PartHeader) = %q, want 'Question 2.3: ans'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestFallsBackToEnglishWithoutLocalizer(t *testing.T) {
	initLang(t, "en")

	if got := T(context.Background(), "NoExpected"); got != "No expected answer provided." {
		t.Errorf("T(NoExpected) = %q", got)
	}
}
