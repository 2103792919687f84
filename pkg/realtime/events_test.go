package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePersonaUtterance(t *testing.T) {
	frame := []byte(`{
		"type": "response.audio_transcript.done",
		"item": {"content": [{"type": "audio", "text": "Who's calling, please?"}]}
	}`)

	ev, ok := DecodeEvent(frame)
	require.True(t, ok)
	assert.Equal(t, EventPersonaUtterance, ev.Kind)
	assert.Equal(t, "Who's calling, please?", ev.Text)
}

func TestDecodeCallerUtterance(t *testing.T) {
	frame := []byte(`{
		"type": "conversation.item.input_audio_transcription.completed",
		"item": {"content": [{"type": "input_audio", "transcript": "Hi, this is Alex."}]}
	}`)

	ev, ok := DecodeEvent(frame)
	require.True(t, ok)
	assert.Equal(t, EventCallerUtterance, ev.Kind)
	assert.Equal(t, "Hi, this is Alex.", ev.Text)
}

func TestDecodeJoinsContentParts(t *testing.T) {
	frame := []byte(`{
		"type": "response.audio_transcript.done",
		"item": {"content": [{"text": "Look, "}, {"text": "I'm in a meeting."}]}
	}`)

	ev, ok := DecodeEvent(frame)
	require.True(t, ok)
	assert.Equal(t, "Look, I'm in a meeting.", ev.Text)
}

func TestDecodeIgnoresUnknownTypes(t *testing.T) {
	for _, frame := range []string{
		`{"type":"session.created"}`,
		`{"type":"response.created","item":{}}`,
		`{"type":"input_audio_buffer.speech_started"}`,
	} {
		_, ok := DecodeEvent([]byte(frame))
		assert.False(t, ok, frame)
	}
}

func TestDecodeIgnoresEmptyAndMalformed(t *testing.T) {
	_, ok := DecodeEvent([]byte(`{"type":"response.audio_transcript.done","item":{"content":[]}}`))
	assert.False(t, ok)

	_, ok = DecodeEvent([]byte(`{broken`))
	assert.False(t, ok)
}
