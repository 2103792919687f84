// Package call owns the lifetime of exactly one voice call on the client
// side: session credential fetch, media acquisition, peer negotiation,
// streamed event decoding into the transcript, call-duration limits, and
// guaranteed resource release on every termination path.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FeliciaLa/coldcall-pro/pkg/realtime"
	"github.com/FeliciaLa/coldcall-pro/pkg/scenario"
	gonanoid "github.com/matoous/go-nanoid"
	"github.com/sirupsen/logrus"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	}
	return "unknown"
}

// ErrorKind classifies a failed attempt for the UI.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	// ErrEntitlement: entitlement exhausted; route to the upsell.
	ErrEntitlement
	// ErrMediaDenied: microphone permission refused.
	ErrMediaDenied
	// ErrCredentialExpired: the session credential was rejected; a fresh
	// attempt will mint a new one.
	ErrCredentialExpired
	// ErrNegotiation: generic network/protocol failure during setup.
	ErrNegotiation
)

// Message is the user-facing text for the error kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrEntitlement:
		return "You're out of practice calls. Unlock more to continue."
	case ErrMediaDenied:
		return "Microphone access is required to start the call."
	case ErrCredentialExpired:
		return "Session expired — try starting the call again."
	case ErrNegotiation:
		return "Connection failed. Check your network and try again."
	}
	return ""
}

// SessionDeniedError is returned by a SessionSource when the server rejects
// the session for entitlement reasons.
type SessionDeniedError struct {
	Reason string
}

func (e *SessionDeniedError) Error() string {
	return "call: session denied: " + e.Reason
}

// LocalAudio is an acquired microphone capture.
type LocalAudio interface {
	// SetEnabled toggles the outbound track without tearing anything down.
	SetEnabled(enabled bool)
	// Stop releases the capture device. Must be safe to call twice.
	Stop()
}

// MediaSource acquires microphone audio.
type MediaSource interface {
	Capture(ctx context.Context) (LocalAudio, error)
}

// Peer is one peer media connection.
type Peer interface {
	AddTrack(audio LocalAudio) error
	// CreateEventChannel opens the auxiliary channel for structured session
	// events; onEvent receives each raw frame.
	CreateEventChannel(onEvent func(data []byte)) error
	CreateOffer(ctx context.Context) (string, error)
	ApplyAnswer(answerSDP string) error
	// Close releases the connection. Must be safe to call twice.
	Close() error
}

// PeerFactory builds a fresh Peer per connection attempt.
type PeerFactory func() (Peer, error)

// SessionSource obtains a session credential (normally the server's session
// endpoint).
type SessionSource interface {
	CreateSession(ctx context.Context, scenarioID string) (credential string, err error)
}

// OfferExchanger trades an SDP offer for an answer at the provider's
// signaling endpoint.
type OfferExchanger interface {
	ExchangeOffer(ctx context.Context, credential, offerSDP string) (string, error)
}

// Ringer plays the synthetic ringing tone while negotiation is in flight.
type Ringer interface {
	Start()
	Stop()
}

// Deps are the controller's collaborators. Ring may be nil.
type Deps struct {
	Sessions SessionSource
	Media    MediaSource
	Peers    PeerFactory
	Signaler OfferExchanger
	Ring     Ringer
}

// Options tunes timing and receives lifecycle callbacks.
type Options struct {
	// WarnAfter shows the non-blocking wrap-up indicator. Default 8 minutes.
	WarnAfter time.Duration
	// MaxDuration force-ends the call through the normal teardown path.
	// Default 10 minutes.
	MaxDuration time.Duration
	// TickInterval drives the elapsed counter. Default 1 second.
	TickInterval time.Duration

	// OnWarn fires once when WarnAfter elapses.
	OnWarn func()
	// OnTranscript fires for each appended entry (live UI feed).
	OnTranscript func(Entry)
	// OnEnd fires exactly once with the final transcript and the wall-clock
	// call duration in seconds.
	OnEnd func(transcript []Entry, durationSeconds int)
}

// Controller drives one call session through
// idle -> connecting -> active -> ended, with error reachable from
// connecting. Every asynchronous continuation carries the attempt id it was
// started under; a continuation that discovers it was superseded releases
// whatever it just acquired and exits without touching live state.
type Controller struct {
	mu   sync.Mutex
	deps Deps
	opts Options
	sc   *scenario.Scenario
	log  *logrus.Entry

	sessionID string
	state     State
	errKind   ErrorKind
	err       error

	attempt   uint64
	local     LocalAudio
	peer      Peer
	muted     bool
	startedAt time.Time
	timerStop chan struct{}
	ended     bool

	elapsed    int64 // atomic, ticks since connect
	transcript *Transcript
}

// New builds a controller for one scenario. The controller is single-use per
// call; a retry after an error is a new Start on the same controller.
func New(sc *scenario.Scenario, deps Deps, opts Options) *Controller {
	if opts.WarnAfter <= 0 {
		opts.WarnAfter = 8 * time.Minute
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 10 * time.Minute
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	id, err := gonanoid.Nanoid()
	if err != nil {
		id = fmt.Sprintf("call_%d", time.Now().UnixNano())
	}
	return &Controller{
		deps:       deps,
		opts:       opts,
		sc:         sc,
		sessionID:  id,
		log:        logrus.WithField("session", id),
		state:      StateIdle,
		transcript: NewTranscript(),
	}
}

// Start begins a connection attempt. Valid from idle or a previous error;
// starting over an in-flight attempt supersedes it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return errors.New("call: session already ended")
	}
	c.attempt++
	myAttempt := c.attempt
	// A restart over an active call releases the promoted resources first;
	// only one capture stream and one peer connection may be live.
	stop := c.timerStop
	c.timerStop = nil
	local := c.local
	peer := c.peer
	c.local = nil
	c.peer = nil
	c.state = StateConnecting
	c.errKind = ErrNone
	c.err = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if local != nil {
		local.Stop()
	}
	if peer != nil {
		_ = peer.Close()
	}
	if c.deps.Ring != nil {
		c.deps.Ring.Start()
	}
	go c.connect(ctx, myAttempt)
	return nil
}

// current reports whether attempt a is still the live attempt.
func (c *Controller) current(a uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt == a && !c.ended
}

func (c *Controller) connect(ctx context.Context, a uint64) {
	credential, err := c.deps.Sessions.CreateSession(ctx, c.sc.ID)
	if err != nil {
		kind := ErrNegotiation
		var denied *SessionDeniedError
		if errors.As(err, &denied) {
			kind = ErrEntitlement
		}
		c.fail(a, kind, err)
		return
	}
	if !c.current(a) {
		return
	}

	local, err := c.deps.Media.Capture(ctx)
	if err != nil {
		c.fail(a, ErrMediaDenied, err)
		return
	}
	if !c.current(a) {
		// Superseded while the permission prompt was open. Release the
		// capture immediately; never leave a stale microphone live.
		local.Stop()
		return
	}

	peer, err := c.deps.Peers()
	if err != nil {
		local.Stop()
		c.fail(a, ErrNegotiation, err)
		return
	}
	discard := func() {
		local.Stop()
		_ = peer.Close()
	}

	if err := peer.AddTrack(local); err != nil {
		discard()
		c.fail(a, ErrNegotiation, err)
		return
	}
	if err := peer.CreateEventChannel(func(data []byte) { c.handleEvent(a, data) }); err != nil {
		discard()
		c.fail(a, ErrNegotiation, err)
		return
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		discard()
		c.fail(a, ErrNegotiation, err)
		return
	}
	if !c.current(a) {
		discard()
		return
	}

	answer, err := c.deps.Signaler.ExchangeOffer(ctx, credential, offer)
	if err != nil {
		discard()
		kind := ErrNegotiation
		if errors.Is(err, realtime.ErrCredentialExpired) {
			kind = ErrCredentialExpired
		}
		c.fail(a, kind, err)
		return
	}
	if err := peer.ApplyAnswer(answer); err != nil {
		discard()
		c.fail(a, ErrNegotiation, err)
		return
	}

	// Promote this attempt's resources to live, unless superseded at the
	// last moment.
	c.mu.Lock()
	if c.attempt != a || c.ended {
		c.mu.Unlock()
		discard()
		return
	}
	c.local = local
	c.peer = peer
	c.state = StateActive
	c.startedAt = time.Now()
	atomic.StoreInt64(&c.elapsed, 0)
	c.timerStop = make(chan struct{})
	stop := c.timerStop
	if c.muted {
		local.SetEnabled(false)
	}
	c.mu.Unlock()

	if c.deps.Ring != nil {
		c.deps.Ring.Stop()
	}
	c.log.Info("call connected")

	// The persona answers the phone with its scripted line; the provider
	// does not echo it back as an event.
	c.append(SpeakerPersona, c.sc.Greeting)

	go c.runTimer(a, stop)
}

// fail moves the live attempt to the error state. Stale attempts are ignored;
// their resources were already released at the call site.
func (c *Controller) fail(a uint64, kind ErrorKind, err error) {
	c.mu.Lock()
	if c.attempt != a || c.ended {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.errKind = kind
	c.err = err
	c.mu.Unlock()

	if c.deps.Ring != nil {
		c.deps.Ring.Stop()
	}
	c.log.WithError(err).Warn("call attempt failed")
}

func (c *Controller) handleEvent(a uint64, data []byte) {
	if !c.current(a) {
		return
	}
	ev, ok := realtime.DecodeEvent(data)
	if !ok {
		return
	}
	speaker := SpeakerPersona
	if ev.Kind == realtime.EventCallerUtterance {
		speaker = SpeakerCaller
	}
	c.append(speaker, ev.Text)
}

func (c *Controller) append(speaker Speaker, text string) {
	if text == "" {
		return
	}
	c.transcript.Append(speaker, text)
	if c.opts.OnTranscript != nil {
		c.opts.OnTranscript(Entry{Speaker: speaker, Text: text})
	}
}

func (c *Controller) runTimer(a uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	warnTicks := int64(c.opts.WarnAfter / c.opts.TickInterval)
	maxTicks := int64(c.opts.MaxDuration / c.opts.TickInterval)
	warned := false

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n := atomic.AddInt64(&c.elapsed, 1)
			if !warned && n >= warnTicks && n < maxTicks {
				warned = true
				if c.opts.OnWarn != nil {
					c.opts.OnWarn()
				}
			}
			if n >= maxTicks {
				c.timeout(a)
				return
			}
		}
	}
}

// timeout force-ends the call at the hard limit, through the same teardown
// path as a manual hangup.
func (c *Controller) timeout(a uint64) {
	if !c.current(a) {
		return
	}
	c.log.Info("call reached time limit")
	c.End()
}

// End terminates the session: manual hangup, hard time limit, and
// unrecoverable errors all arrive here. Idempotent — the second and later
// calls are no-ops. Resources are released exactly once and the completion
// callback fires exactly once.
func (c *Controller) End() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	// Supersede any still-connecting attempt so its continuation discards
	// whatever it acquires.
	c.attempt++
	c.state = StateEnded

	stop := c.timerStop
	c.timerStop = nil
	local := c.local
	peer := c.peer
	c.local = nil
	c.peer = nil

	var duration int
	if !c.startedAt.IsZero() {
		duration = int(time.Since(c.startedAt) / time.Second)
	}
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if c.deps.Ring != nil {
		c.deps.Ring.Stop()
	}
	if local != nil {
		local.Stop()
	}
	if peer != nil {
		_ = peer.Close()
	}

	c.log.WithField("duration", duration).Info("call ended")
	if c.opts.OnEnd != nil {
		c.opts.OnEnd(c.transcript.Snapshot(), duration)
	}
}

// Mute toggles the outbound audio track. The connection stays up.
func (c *Controller) Mute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	local := c.local
	c.mu.Unlock()
	if local != nil {
		local.SetEnabled(!muted)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Err returns the failure classification and cause for the last attempt.
func (c *Controller) Err() (ErrorKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errKind, c.err
}

// Elapsed is the whole seconds since the call connected, driven by the
// periodic tick (UI display; the final duration uses the wall clock).
func (c *Controller) Elapsed() int {
	return int(atomic.LoadInt64(&c.elapsed))
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) Transcript() *Transcript {
	return c.transcript
}
