package transcription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// OutputShape tags which of the observed job output layouts was received.
type OutputShape string

const (
	// ShapeLanguageMap is {"en": {"url": ...}, ...}, optionally wrapped as
	// {"subtitles": {...}, "metadata": {...}}.
	ShapeLanguageMap OutputShape = "language_map"
	// ShapeArrayWrapped is [{"type": "dict", "data": {...}}].
	ShapeArrayWrapped OutputShape = "array_wrapped"
	// ShapeNested is {"output": ...} or {"outputs": ...}.
	ShapeNested OutputShape = "nested"
)

// SubtitleRef points at a downloadable subtitle payload.
type SubtitleRef struct {
	URL string `json:"url"`
}

// Outputs is the normalized result of a finished job.
type Outputs struct {
	Shape     OutputShape
	Subtitles map[string]SubtitleRef
	Metadata  *Metadata
}

// Metadata is optional video information some jobs return alongside subtitles.
type Metadata struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Author   string `json:"author"`
	Views    string `json:"views"`
}

const maxNestingDepth = 4

// NormalizeOutputs converts any supported output layout into Outputs.
func NormalizeOutputs(raw json.RawMessage) (Outputs, error) {
	return normalize(raw, 0)
}

func normalize(raw json.RawMessage, depth int) (Outputs, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Outputs{}, fmt.Errorf("job outputs are empty")
	}
	if depth > maxNestingDepth {
		return Outputs{}, fmt.Errorf("job outputs nested too deeply")
	}

	switch raw[0] {
	case '[':
		var items []struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return Outputs{}, fmt.Errorf("decode array outputs: %w", err)
		}
		for _, item := range items {
			if item.Type != "dict" || len(item.Data) == 0 {
				continue
			}
			out, err := normalize(item.Data, depth+1)
			if err != nil {
				continue
			}
			out.Shape = ShapeArrayWrapped
			return out, nil
		}
		return Outputs{}, fmt.Errorf("array outputs contain no dict item with subtitles")

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Outputs{}, fmt.Errorf("decode object outputs: %w", err)
		}
		for _, key := range []string{"output", "outputs"} {
			if inner, ok := obj[key]; ok {
				out, err := normalize(inner, depth+1)
				if err != nil {
					return Outputs{}, err
				}
				out.Shape = ShapeNested
				return out, nil
			}
		}
		return languageMap(obj)

	default:
		return Outputs{}, fmt.Errorf("unsupported outputs layout")
	}
}

func languageMap(obj map[string]json.RawMessage) (Outputs, error) {
	out := Outputs{Shape: ShapeLanguageMap, Subtitles: map[string]SubtitleRef{}}

	if meta, ok := obj["metadata"]; ok {
		out.Metadata = decodeMetadata(meta)
	}

	source := obj
	if subs, ok := obj["subtitles"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(subs, &inner); err != nil {
			return Outputs{}, fmt.Errorf("decode subtitles: %w", err)
		}
		source = inner
	}

	for lang, v := range source {
		if lang == "metadata" {
			continue
		}
		var ref SubtitleRef
		if err := json.Unmarshal(v, &ref); err != nil || ref.URL == "" {
			continue
		}
		out.Subtitles[lang] = ref
	}
	return out, nil
}

// Pick returns the first preferred language that has a subtitle URL, falling
// back to the alphabetically first available language.
func (o Outputs) Pick(preferred []string) (string, SubtitleRef, bool) {
	for _, lang := range preferred {
		if ref, ok := o.Subtitles[lang]; ok {
			return lang, ref, true
		}
	}
	if len(o.Subtitles) == 0 {
		return "", SubtitleRef{}, false
	}
	langs := make([]string, 0, len(o.Subtitles))
	for lang := range o.Subtitles {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs[0], o.Subtitles[langs[0]], true
}

func decodeMetadata(raw json.RawMessage) *Metadata {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	md := &Metadata{
		Title:    stringField(m, "title"),
		Duration: stringField(m, "duration"),
		Author:   stringField(m, "channel", "uploader", "channel_id"),
		Views:    stringField(m, "view_count"),
	}
	if *md == (Metadata{}) {
		return nil
	}
	return md
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", t)
		default:
			return fmt.Sprint(t)
		}
	}
	return ""
}
