package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

func TestDialEventsStreamsDecodedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime", r.URL.Path)
		assert.Equal(t, "gpt-realtime", r.URL.Query().Get("model"))
		assert.Equal(t, "Bearer ek_12345", r.Header.Get("Authorization"))

		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		frames := []string{
			`{"type":"session.created"}`,
			`{"type":"response.audio_transcript.done","item":{"content":[{"text":"Make it quick."}]}}`,
			`{"type":"conversation.item.input_audio_transcription.completed","item":{"content":[{"transcript":"Thirty seconds, I promise."}]}}`,
		}
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
	}))
	defer server.Close()

	stream, err := DialEvents(context.Background(), server.URL, "ek_12345", "gpt-realtime")
	require.NoError(t, err)
	defer stream.Close()

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				t.Fatal("stream closed early")
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}

	assert.Equal(t, EventPersonaUtterance, got[0].Kind)
	assert.Equal(t, "Make it quick.", got[0].Text)
	assert.Equal(t, EventCallerUtterance, got[1].Kind)
	assert.Equal(t, "Thirty seconds, I promise.", got[1].Text)
}

func TestDialEventsRejectedCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := DialEvents(context.Background(), server.URL, "ek_stale", "gpt-realtime")
	assert.ErrorIs(t, err, ErrCredentialExpired)
}

func TestEventStreamCloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, err := DialEvents(context.Background(), server.URL, "ek_12345", "gpt-realtime")
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("https://api.openai.com/v1", "gpt-realtime")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.openai.com/v1/realtime?model=gpt-realtime", u)

	u, err = websocketURL("http://127.0.0.1:8089", "gpt-realtime")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8089/realtime?model=gpt-realtime", u)
}
