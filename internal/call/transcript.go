package call

import "sync"

// Speaker tags a transcript entry.
type Speaker string

const (
	SpeakerCaller  Speaker = "caller"
	SpeakerPersona Speaker = "persona"
)

// Entry is one utterance, ordered by arrival.
type Entry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Transcript is an append-only ordered log of utterances built from streamed
// session events. Arrival order is the only ordering; the remote event
// stream is the source of truth for who said what.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(speaker Speaker, text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	t.entries = append(t.entries, Entry{Speaker: speaker, Text: text})
	t.mu.Unlock()
}

// Snapshot returns a copy of the entries so far.
func (t *Transcript) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
