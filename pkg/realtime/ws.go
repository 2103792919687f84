package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// EventStream consumes session events over the provider's websocket
// transport. Headless callers (no WebRTC stack) use this in place of the
// peer connection's event channel; the decoded events are identical.
type EventStream struct {
	conn   *websocket.Conn
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// DialEvents opens the websocket event stream for a minted session
// credential.
func DialEvents(ctx context.Context, baseURL, clientSecret, model string) (*EventStream, error) {
	wsURL, err := websocketURL(baseURL, model)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+clientSecret)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrCredentialExpired
		}
		return nil, fmt.Errorf("realtime: dial event stream: %w", err)
	}

	s := &EventStream{
		conn:   conn,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events delivers decoded transcript events in arrival order. The channel is
// closed when the stream ends.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

func (s *EventStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, ok := DecodeEvent(data)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Close tears down the stream. Safe to call more than once.
func (s *EventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func websocketURL(baseURL, model string) (string, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("realtime: bad base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime"
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
