package realtime

import (
	"encoding/json"
	"strings"
)

// EventKind identifies the session events this system consumes. The wire
// schema is externally defined and carries many more event types; everything
// unrecognized is ignored.
type EventKind string

const (
	// EventPersonaUtterance: the prospect finished speaking an utterance.
	EventPersonaUtterance EventKind = "persona_utterance"
	// EventCallerUtterance: the caller's speech was transcribed.
	EventCallerUtterance EventKind = "caller_utterance"
)

// Event is a decoded transcript-bearing session event.
type Event struct {
	Kind EventKind
	Text string
}

const (
	typeOutputTranscriptDone = "response.audio_transcript.done"
	typeInputTranscriptDone  = "conversation.item.input_audio_transcription.completed"
)

type wireEvent struct {
	Type string `json:"type"`
	Item struct {
		Content []struct {
			Text       string `json:"text"`
			Transcript string `json:"transcript"`
		} `json:"content"`
	} `json:"item"`
}

// DecodeEvent parses one raw event frame. It returns false for malformed
// frames, unknown event types, and known types with no usable text; callers
// drop those silently.
func DecodeEvent(data []byte) (Event, bool) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false
	}

	switch ev.Type {
	case typeOutputTranscriptDone:
		var parts []string
		for _, c := range ev.Item.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
		if text := strings.Join(parts, ""); text != "" {
			return Event{Kind: EventPersonaUtterance, Text: text}, true
		}
	case typeInputTranscriptDone:
		var parts []string
		for _, c := range ev.Item.Content {
			if c.Transcript != "" {
				parts = append(parts, c.Transcript)
			}
		}
		if text := strings.Join(parts, ""); text != "" {
			return Event{Kind: EventCallerUtterance, Text: text}, true
		}
	}
	return Event{}, false
}
