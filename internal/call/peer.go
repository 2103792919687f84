package call

import (
	"context"
	"errors"
	"io"

	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// dataChannelLabel is the auxiliary channel the provider emits structured
// session events on.
const dataChannelLabel = "oai-events"

// PionAudio is LocalAudio that can furnish the underlying sendable track.
// MediaSource implementations intended for PionPeer must return it.
type PionAudio interface {
	LocalAudio
	TrackLocal() webrtc.TrackLocal
}

// PionPeer adapts a pion PeerConnection to the Peer interface.
type PionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionPeer builds a peer connection with a public STUN server. onRemote
// receives the persona's inbound audio track; onDisconnect fires when the
// connection fails or closes underneath us, and the owner should end the
// call.
func NewPionPeer(onRemote func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver), onDisconnect func()) (*PionPeer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return nil, err
	}

	if onRemote != nil {
		pc.OnTrack(onRemote)
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logrus.WithField("state", state.String()).Debug("peer connection state")
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			if onDisconnect != nil {
				onDisconnect()
			}
		}
	})

	return &PionPeer{pc: pc}, nil
}

// PionPeerFactory wraps NewPionPeer as a PeerFactory.
func PionPeerFactory(onRemote func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver), onDisconnect func()) PeerFactory {
	return func() (Peer, error) {
		return NewPionPeer(onRemote, onDisconnect)
	}
}

func (p *PionPeer) AddTrack(audio LocalAudio) error {
	src, ok := audio.(PionAudio)
	if !ok {
		return errors.New("call: audio source cannot produce a sendable track")
	}
	sender, err := p.pc.AddTrack(src.TrackLocal())
	if err != nil {
		return err
	}
	// RTCP must be drained or the interceptors back up.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					logrus.WithError(err).Debug("rtcp drain stopped")
				}
				return
			}
		}
	}()
	return nil
}

func (p *PionPeer) CreateEventChannel(onEvent func(data []byte)) error {
	dc, err := p.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return err
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		onEvent(msg.Data)
	})
	return nil
}

// CreateOffer produces a local offer and waits for ICE gathering to complete
// so the SDP carries all candidates; the signaling exchange is a single
// round trip with no trickle.
func (p *PionPeer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *PionPeer) ApplyAnswer(answerSDP string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	})
}

func (p *PionPeer) Close() error {
	return p.pc.Close()
}
