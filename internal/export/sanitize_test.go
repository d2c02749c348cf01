package export

import (
	"strings"
	"testing"
)

func TestSanitizeName_ControlChars(t *testing.T) {
	got := SanitizeName(" A\nB\rC\tD\x00 ", 100)
	if strings.ContainsAny(got, "\n\r\t\x00") {
		t.Fatalf("sanitize output contains control chars: %q", got)
	}
	if got != "ABCD" {
		t.Fatalf("SanitizeName control char behavior mismatch, got %q", got)
	}
}

func TestSanitizeName_MaxLength(t *testing.T) {
	got := SanitizeName("abcdefghijklmnopqrstuvwxyz", 10)
	if len([]rune(got)) != 10 {
		t.Fatalf("expected length 10, got %d (%q)", len([]rune(got)), got)
	}
}

func TestSanitizeName_AllowedChars(t *testing.T) {
	input := "Az09 -_.,()"
	got := SanitizeName(input, 100)
	if got != input {
		t.Fatalf("SanitizeName changed allowed chars: got %q want %q", got, input)
	}
}

func TestSanitizeName_ReplacesDisallowed(t *testing.T) {
	got := SanitizeName("bad<>|\"name", 100)
	if got != "bad____name" {
		t.Fatalf("SanitizeName disallowed replacement mismatch: got %q", got)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		title  string
		format Format
		want   string
	}{
		{"Intro to Rust: Ownership?", FormatMarkdown, "Intro to Rust_ Ownership_.md"},
		{"Lecture 3", FormatSRT, "Lecture 3.srt"},
		{"  ", FormatMarkdown, "notes.md"},
	}
	for _, tt := range tests {
		if got := Filename(tt.title, tt.format); got != tt.want {
			t.Errorf("Filename(%q, %s) = %q, want %q", tt.title, tt.format, got, tt.want)
		}
	}
}
