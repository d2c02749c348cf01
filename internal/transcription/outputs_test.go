package transcription

import (
	"encoding/json"
	"testing"
)

func TestNormalizeOutputs_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		shape OutputShape
		lang  string
	}{
		{"language map", `{"en":{"url":"https://x/en"}}`, ShapeLanguageMap, "en"},
		{"subtitles key", `{"subtitles":{"en":{"url":"https://x/en"}},"metadata":{"title":"T"}}`, ShapeLanguageMap, "en"},
		{"array wrapped", `[{"type":"str","data":"ignored"},{"type":"dict","data":{"en":{"url":"https://x/en"}}}]`, ShapeArrayWrapped, "en"},
		{"nested output", `{"output":{"en":{"url":"https://x/en"}}}`, ShapeNested, "en"},
		{"nested array", `{"outputs":[{"type":"dict","data":{"de":{"url":"https://x/de"}}}]}`, ShapeNested, "de"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NormalizeOutputs(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("NormalizeOutputs() error = %v", err)
			}
			if out.Shape != tt.shape {
				t.Errorf("shape = %q, want %q", out.Shape, tt.shape)
			}
			if _, ok := out.Subtitles[tt.lang]; !ok {
				t.Errorf("subtitles = %+v, want %q", out.Subtitles, tt.lang)
			}
		})
	}
}

func TestNormalizeOutputs_Invalid(t *testing.T) {
	for _, raw := range []string{``, `null`, `"text"`, `[{"type":"str","data":"x"}]`} {
		if _, err := NormalizeOutputs(json.RawMessage(raw)); err == nil {
			t.Errorf("NormalizeOutputs(%q) expected error", raw)
		}
	}
}

func TestOutputs_Pick(t *testing.T) {
	out := Outputs{Subtitles: map[string]SubtitleRef{
		"fr": {URL: "fr"},
		"de": {URL: "de"},
		"en": {URL: "en"},
	}}

	if lang, _, _ := out.Pick([]string{"es", "en"}); lang != "en" {
		t.Errorf("Pick(es,en) = %q, want en", lang)
	}
	if lang, _, _ := out.Pick([]string{"es"}); lang != "de" {
		t.Errorf("Pick(es) = %q, want alphabetical fallback de", lang)
	}
	if _, _, ok := (Outputs{}).Pick([]string{"en"}); ok {
		t.Error("Pick on empty outputs should report false")
	}
}

func TestNormalizeOutputs_Metadata(t *testing.T) {
	out, err := NormalizeOutputs(json.RawMessage(`{"en":{"url":"u"},"metadata":{"title":"Lecture 1","duration":3600,"channel_id":"UC1","view_count":42}}`))
	if err != nil {
		t.Fatalf("NormalizeOutputs() error = %v", err)
	}
	want := Metadata{Title: "Lecture 1", Duration: "3600", Author: "UC1", Views: "42"}
	if out.Metadata == nil || *out.Metadata != want {
		t.Errorf("metadata = %+v, want %+v", out.Metadata, want)
	}
	if _, ok := out.Subtitles["metadata"]; ok {
		t.Error("metadata must not be treated as a language")
	}
}
