package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FeliciaLa/coldcall-pro/pkg/realtime"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	credential string
	err        error
	gate       chan struct{}
	calls      int32
}

func (f *fakeSessions) CreateSession(ctx context.Context, scenarioID string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	return f.credential, f.err
}

type fakeAudio struct {
	mu      sync.Mutex
	stops   int
	enabled []bool
}

func (f *fakeAudio) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = append(f.enabled, enabled)
}

func (f *fakeAudio) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeAudio) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeAudio) lastEnabled() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.enabled) == 0 {
		return false, false
	}
	return f.enabled[len(f.enabled)-1], true
}

type fakeMedia struct {
	audio *fakeAudio
	err   error
	gate  chan struct{}
}

func (f *fakeMedia) Capture(ctx context.Context) (LocalAudio, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type mediaFunc func(ctx context.Context) (LocalAudio, error)

func (f mediaFunc) Capture(ctx context.Context) (LocalAudio, error) { return f(ctx) }

type fakePeer struct {
	mu      sync.Mutex
	tracks  int
	onEvent func([]byte)
	applied string
	closes  int
}

func (f *fakePeer) AddTrack(audio LocalAudio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks++
	return nil
}

func (f *fakePeer) CreateEventChannel(onEvent func(data []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEvent = onEvent
	return nil
}

func (f *fakePeer) CreateOffer(ctx context.Context) (string, error) {
	return "v=0 offer", nil
}

func (f *fakePeer) ApplyAnswer(answerSDP string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = answerSDP
	return nil
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakePeer) emit(data []byte) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (f *fakePeer) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeSignaler struct {
	answer string
	err    error
}

func (f *fakeSignaler) ExchangeOffer(ctx context.Context, credential, offerSDP string) (string, error) {
	return f.answer, f.err
}

type fakeRinger struct {
	starts int32
	stops  int32
}

func (f *fakeRinger) Start() { atomic.AddInt32(&f.starts, 1) }
func (f *fakeRinger) Stop()  { atomic.AddInt32(&f.stops, 1) }

type fixture struct {
	sessions *fakeSessions
	media    *fakeMedia
	audio    *fakeAudio
	peer     *fakePeer
	signaler *fakeSignaler
	ring     *fakeRinger
}

func newFixture() *fixture {
	audio := &fakeAudio{}
	return &fixture{
		sessions: &fakeSessions{credential: "ek_test"},
		media:    &fakeMedia{audio: audio},
		audio:    audio,
		peer:     &fakePeer{},
		signaler: &fakeSignaler{answer: "v=0 answer"},
		ring:     &fakeRinger{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Sessions: f.sessions,
		Media:    f.media,
		Peers:    func() (Peer, error) { return f.peer, nil },
		Signaler: f.signaler,
		Ring:     f.ring,
	}
}

func testScenario(t *testing.T) *scenario.Scenario {
	sc, err := scenario.Get("gatekeeper")
	require.NoError(t, err)
	return sc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func personaFrame(text string) []byte {
	return []byte(fmt.Sprintf(`{"type":"response.audio_transcript.done","item":{"content":[{"text":%q}]}}`, text))
}

func callerFrame(text string) []byte {
	return []byte(fmt.Sprintf(`{"type":"conversation.item.input_audio_transcription.completed","item":{"content":[{"transcript":%q}]}}`, text))
}

func TestControllerHappyPath(t *testing.T) {
	f := newFixture()
	var ends int32
	var gotTranscript []Entry
	var gotDuration int
	var mu sync.Mutex

	c := New(testScenario(t), f.deps(), Options{
		OnEnd: func(tr []Entry, duration int) {
			atomic.AddInt32(&ends, 1)
			mu.Lock()
			gotTranscript = tr
			gotDuration = duration
			mu.Unlock()
		},
	})

	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.ring.starts))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&f.ring.stops), int32(1))

	f.peer.emit(personaFrame("Who's calling?"))
	f.peer.emit(callerFrame("Hi, this is Alex from Meridian."))
	waitFor(t, func() bool { return c.Transcript().Len() == 3 })

	c.End()
	assert.Equal(t, StateEnded, c.State())
	assert.EqualValues(t, 1, atomic.LoadInt32(&ends))
	assert.Equal(t, 1, f.audio.stopCount())
	assert.Equal(t, 1, f.peer.closeCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gotTranscript, 3)
	assert.Equal(t, SpeakerPersona, gotTranscript[0].Speaker)
	assert.Equal(t, "Mark Davidson.", gotTranscript[0].Text)
	assert.Equal(t, "Who's calling?", gotTranscript[1].Text)
	assert.Equal(t, SpeakerCaller, gotTranscript[2].Speaker)
	assert.GreaterOrEqual(t, gotDuration, 0)
}

func TestControllerEndIdempotent(t *testing.T) {
	f := newFixture()
	var ends int32
	c := New(testScenario(t), f.deps(), Options{
		OnEnd: func([]Entry, int) { atomic.AddInt32(&ends, 1) },
	})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })

	c.End()
	c.End()
	c.End()

	assert.EqualValues(t, 1, atomic.LoadInt32(&ends))
	assert.Equal(t, 1, f.audio.stopCount())
	assert.Equal(t, 1, f.peer.closeCount())
}

func TestControllerEndDuringConnectDiscardsAttempt(t *testing.T) {
	f := newFixture()
	f.media.gate = make(chan struct{})
	var ends int32
	c := New(testScenario(t), f.deps(), Options{
		OnEnd: func([]Entry, int) { atomic.AddInt32(&ends, 1) },
	})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return atomic.LoadInt32(&f.sessions.calls) == 1 })

	// Hang up while the permission prompt is still open.
	c.End()
	assert.Equal(t, StateEnded, c.State())
	assert.EqualValues(t, 1, atomic.LoadInt32(&ends))

	close(f.media.gate)
	// The in-flight attempt must release the capture it acquired and must
	// not resurrect the session.
	waitFor(t, func() bool { return f.audio.stopCount() == 1 })
	assert.Equal(t, StateEnded, c.State())
	assert.Equal(t, 0, c.Transcript().Len())
}

func TestControllerRestartSupersedesAttempt(t *testing.T) {
	f := newFixture()
	f.sessions.err = errors.New("boom")
	c := New(testScenario(t), f.deps(), Options{})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateError })
	kind, err := c.Err()
	assert.Equal(t, ErrNegotiation, kind)
	assert.Error(t, err)

	// Retry after the failure: a fresh attempt from the error state.
	f.sessions.err = nil
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })
	kind, err = c.Err()
	assert.Equal(t, ErrNone, kind)
	assert.NoError(t, err)
	c.End()
}

func TestControllerRestartWhileActiveReleasesLiveResources(t *testing.T) {
	f := newFixture()

	// Mint fresh capture and peer objects per attempt so each attempt's
	// resources can be tracked independently.
	var mu sync.Mutex
	var audios []*fakeAudio
	var peers []*fakePeer
	deps := f.deps()
	deps.Media = mediaFunc(func(ctx context.Context) (LocalAudio, error) {
		mu.Lock()
		defer mu.Unlock()
		a := &fakeAudio{}
		audios = append(audios, a)
		return a, nil
	})
	deps.Peers = func() (Peer, error) {
		mu.Lock()
		defer mu.Unlock()
		p := &fakePeer{}
		peers = append(peers, p)
		return p, nil
	}

	var ends int32
	c := New(testScenario(t), deps, Options{
		OnEnd: func([]Entry, int) { atomic.AddInt32(&ends, 1) },
	})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })

	// Restarting over the live call must tear down attempt one's capture
	// and peer before attempt two connects.
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })
	mu.Lock()
	first, firstPeer := audios[0], peers[0]
	mu.Unlock()
	waitFor(t, func() bool { return first.stopCount() == 1 })
	assert.Equal(t, 1, firstPeer.closeCount())

	c.End()
	assert.EqualValues(t, 1, atomic.LoadInt32(&ends))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, audios, 2)
	require.Len(t, peers, 2)
	assert.Equal(t, 1, audios[1].stopCount())
	assert.Equal(t, 1, peers[1].closeCount())
}

func TestControllerEntitlementDenied(t *testing.T) {
	f := newFixture()
	f.sessions.err = &SessionDeniedError{Reason: "no_credits"}
	c := New(testScenario(t), f.deps(), Options{})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateError })

	kind, err := c.Err()
	assert.Equal(t, ErrEntitlement, kind)
	assert.Error(t, err)
	assert.NotEmpty(t, kind.Message())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&f.ring.stops), int32(1))
}

func TestControllerMediaDenied(t *testing.T) {
	f := newFixture()
	f.media.err = errors.New("permission denied")
	c := New(testScenario(t), f.deps(), Options{})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateError })

	kind, _ := c.Err()
	assert.Equal(t, ErrMediaDenied, kind)
}

func TestControllerCredentialExpired(t *testing.T) {
	f := newFixture()
	f.signaler.err = fmt.Errorf("exchange offer: %w", realtime.ErrCredentialExpired)
	c := New(testScenario(t), f.deps(), Options{})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateError })

	kind, err := c.Err()
	assert.Equal(t, ErrCredentialExpired, kind)
	assert.ErrorIs(t, err, realtime.ErrCredentialExpired)
	// Setup resources from the failed attempt are released.
	assert.Equal(t, 1, f.audio.stopCount())
	assert.Equal(t, 1, f.peer.closeCount())
}

func TestControllerTimeLimit(t *testing.T) {
	f := newFixture()
	var warns, ends int32
	c := New(testScenario(t), f.deps(), Options{
		TickInterval: time.Millisecond,
		WarnAfter:    10 * time.Millisecond,
		MaxDuration:  30 * time.Millisecond,
		OnWarn:       func() { atomic.AddInt32(&warns, 1) },
		OnEnd:        func([]Entry, int) { atomic.AddInt32(&ends, 1) },
	})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateEnded })

	assert.EqualValues(t, 1, atomic.LoadInt32(&warns))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ends))
	assert.Equal(t, 1, f.audio.stopCount())
	assert.Equal(t, 1, f.peer.closeCount())
}

func TestControllerMute(t *testing.T) {
	f := newFixture()
	c := New(testScenario(t), f.deps(), Options{})

	// Muting before the call connects must carry over to the track once it
	// exists.
	c.Mute(true)
	assert.True(t, c.Muted())

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })
	enabled, ok := f.audio.lastEnabled()
	require.True(t, ok)
	assert.False(t, enabled)

	c.Mute(false)
	enabled, ok = f.audio.lastEnabled()
	require.True(t, ok)
	assert.True(t, enabled)
	c.End()
}

func TestControllerIgnoresUnknownEvents(t *testing.T) {
	f := newFixture()
	c := New(testScenario(t), f.deps(), Options{})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })

	f.peer.emit([]byte(`{"type":"response.created"}`))
	f.peer.emit([]byte(`not json`))
	f.peer.emit(personaFrame("Make it quick."))
	waitFor(t, func() bool { return c.Transcript().Len() == 2 })

	entries := c.Transcript().Snapshot()
	assert.Equal(t, "Make it quick.", entries[1].Text)
	c.End()
}

func TestControllerLiveTranscriptCallback(t *testing.T) {
	f := newFixture()
	var mu sync.Mutex
	var seen []Entry
	c := New(testScenario(t), f.deps(), Options{
		OnTranscript: func(e Entry) {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		},
	})

	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.State() == StateActive })
	f.peer.emit(callerFrame("Do you have thirty seconds?"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	mu.Lock()
	assert.Equal(t, SpeakerPersona, seen[0].Speaker)
	assert.Equal(t, SpeakerCaller, seen[1].Speaker)
	mu.Unlock()
	c.End()
}
