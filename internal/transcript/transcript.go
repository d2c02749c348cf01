// Package transcript holds the timed-caption model shared by the acquisition
// paths and the chunker, plus decoding of the json3 caption wire format.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultEventDurationMs is used when an event carries no duration.
const DefaultEventDurationMs = 1000

// Segment is one caption fragment inside an event.
type Segment struct {
	Text                string `json:"text"`
	OffsetWithinEventMs int64  `json:"offset_within_event_ms"`
}

// Event is a timed caption event. Events are ordered by StartOffsetMs.
type Event struct {
	StartOffsetMs int64     `json:"start_offset_ms"`
	DurationMs    int64     `json:"duration_ms"`
	Segments      []Segment `json:"segments"`
}

// RawTranscript is the ordered event stream of a single video.
type RawTranscript struct {
	Events []Event `json:"events"`
}

// IsEmpty reports whether the transcript has no events at all.
func (t RawTranscript) IsEmpty() bool {
	return len(t.Events) == 0
}

// SegmentCount returns the number of segments across all events.
func (t RawTranscript) SegmentCount() int {
	n := 0
	for _, ev := range t.Events {
		n += len(ev.Segments)
	}
	return n
}

// ErrNoCaptions marks a video for which no captions could be found.
var ErrNoCaptions = errors.New("no captions available")

// NotFoundError is returned when a source has no captions for the content.
type NotFoundError struct {
	VideoID string
	Reason  string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("no captions available for %s", e.VideoID)
	}
	return fmt.Sprintf("no captions available for %s: %s", e.VideoID, e.Reason)
}

func (e *NotFoundError) Unwrap() error { return ErrNoCaptions }

// json3 wire types. Pointer fields distinguish "absent" from zero.
type rawJSON3 struct {
	WireMagic string     `json:"wireMagic,omitempty"`
	Events    []rawEvent `json:"events"`
}

type rawEvent struct {
	TStartMs    *int64   `json:"tStartMs,omitempty"`
	DDurationMs *int64   `json:"dDurationMs,omitempty"`
	Segs        []rawSeg `json:"segs,omitempty"`
}

type rawSeg struct {
	Utf8      string `json:"utf8"`
	TOffsetMs *int64 `json:"tOffsetMs,omitempty"`
}

// ParseJSON3 decodes a json3 caption document. Unknown fields are ignored.
func ParseJSON3(b []byte) (RawTranscript, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return RawTranscript{}, fmt.Errorf("parse json3: empty input")
	}
	return DecodeJSON3(bytes.NewReader(b))
}

// DecodeJSON3 decodes a json3 caption document from a stream.
func DecodeJSON3(r io.Reader) (RawTranscript, error) {
	var raw rawJSON3
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return RawTranscript{}, fmt.Errorf("parse json3: %w", err)
	}
	return fromRaw(raw), nil
}

func fromRaw(raw rawJSON3) RawTranscript {
	out := RawTranscript{Events: make([]Event, 0, len(raw.Events))}
	for _, re := range raw.Events {
		// Window/style events carry no segments and no text.
		if len(re.Segs) == 0 {
			continue
		}
		ev := Event{
			StartOffsetMs: deref(re.TStartMs),
			DurationMs:    deref(re.DDurationMs),
			Segments:      make([]Segment, 0, len(re.Segs)),
		}
		for _, rs := range re.Segs {
			ev.Segments = append(ev.Segments, Segment{
				Text:                rs.Utf8,
				OffsetWithinEventMs: deref(rs.TOffsetMs),
			})
		}
		out.Events = append(out.Events, ev)
	}
	return out
}

// MarshalJSON3 encodes the transcript back into the json3 wire shape, used
// when persisting transcripts.
func MarshalJSON3(t RawTranscript) ([]byte, error) {
	raw := rawJSON3{Events: make([]rawEvent, 0, len(t.Events))}
	for _, ev := range t.Events {
		start, dur := ev.StartOffsetMs, ev.DurationMs
		re := rawEvent{TStartMs: &start, DDurationMs: &dur}
		for _, seg := range ev.Segments {
			off := seg.OffsetWithinEventMs
			re.Segs = append(re.Segs, rawSeg{Utf8: seg.Text, TOffsetMs: &off})
		}
		raw.Events = append(raw.Events, re)
	}
	return json.Marshal(raw)
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
