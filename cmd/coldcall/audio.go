package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FeliciaLa/coldcall-pro/internal/call"
	"github.com/gen2brain/malgo"
	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	sampleRate    = 48000
	channels      = 1
	frameDuration = 20 * time.Millisecond
	frameSamples  = sampleRate / 1000 * 20 // samples per 20ms frame
)

// audioEngine owns the shared miniaudio context.
type audioEngine struct {
	ctx *malgo.AllocatedContext
}

func newAudioEngine() (*audioEngine, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &audioEngine{ctx: ctx}, nil
}

func (e *audioEngine) Close() {
	if e.ctx != nil {
		_ = e.ctx.Uninit()
		e.ctx.Free()
		e.ctx = nil
	}
}

// microphone captures the default input device, encodes 20ms opus frames,
// and feeds them to a local track. It satisfies the controller's media
// contract; SetEnabled(false) drops frames without releasing the device.
type microphone struct {
	device  *malgo.Device
	track   *webrtc.TrackLocalStaticSample
	enc     *opus.Encoder
	enabled int32
	pending []int16
	once    sync.Once
}

// micSource acquires the microphone on demand, one capture per call attempt.
type micSource struct {
	engine *audioEngine
}

func (m *micSource) Capture(ctx context.Context) (call.LocalAudio, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: sampleRate,
		Channels:  channels,
	}, "audio", "coldcall")
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}

	mic := &microphone{track: track, enc: enc, enabled: 1}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.engine.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			mic.onSamples(inputSamples)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	mic.device = device
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return mic, nil
}

func (m *microphone) onSamples(raw []byte) {
	if atomic.LoadInt32(&m.enabled) == 0 {
		m.pending = m.pending[:0]
		return
	}
	for i := 0; i+1 < len(raw); i += 2 {
		m.pending = append(m.pending, int16(binary.LittleEndian.Uint16(raw[i:])))
	}
	buf := make([]byte, 1275)
	for len(m.pending) >= frameSamples {
		frame := m.pending[:frameSamples]
		n, err := m.enc.Encode(frame, buf)
		m.pending = m.pending[frameSamples:]
		if err != nil {
			continue
		}
		_ = m.track.WriteSample(media.Sample{Data: append([]byte(nil), buf[:n]...), Duration: frameDuration})
	}
}

func (m *microphone) SetEnabled(enabled bool) {
	if enabled {
		atomic.StoreInt32(&m.enabled, 1)
	} else {
		atomic.StoreInt32(&m.enabled, 0)
	}
}

func (m *microphone) Stop() {
	m.once.Do(func() {
		if m.device != nil {
			m.device.Uninit()
		}
	})
}

func (m *microphone) TrackLocal() webrtc.TrackLocal {
	return m.track
}

// speaker plays the persona's audio: opus packets in, PCM out the default
// output device. Underruns play silence.
type speaker struct {
	device *malgo.Device
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func newSpeaker(engine *audioEngine) (*speaker, error) {
	s := &speaker{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(engine.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			s.fill(outputSamples)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open speaker: %w", err)
	}
	s.device = device
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start speaker: %w", err)
	}
	return s, nil
}

func (s *speaker) fill(out []byte) {
	s.mu.Lock()
	n := copy(out, s.buf)
	s.buf = s.buf[n:]
	s.mu.Unlock()
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

func (s *speaker) write(pcm []int16) {
	raw := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	s.mu.Lock()
	if !s.closed {
		s.buf = append(s.buf, raw...)
	}
	s.mu.Unlock()
}

// PlayRemoteTrack decodes the inbound track until it ends.
func (s *speaker) PlayRemoteTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return
	}
	pcm := make([]int16, frameSamples*6)
	go func() {
		for {
			packet, _, err := track.ReadRTP()
			if err != nil {
				return
			}
			if len(packet.Payload) == 0 {
				continue
			}
			n, err := dec.Decode(packet.Payload, pcm)
			if err != nil {
				continue
			}
			s.write(pcm[:n])
		}
	}()
}

func (s *speaker) Close() {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
	}
}

// ringer plays the synthetic ringback on its own playback device while the
// call is connecting.
type ringer struct {
	engine *audioEngine
	mu     sync.Mutex
	device *malgo.Device
	tone   *call.ToneGenerator
}

func newRinger(engine *audioEngine) *ringer {
	return &ringer{engine: engine, tone: call.NewToneGenerator(sampleRate)}
}

func (r *ringer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device != nil {
		return
	}
	r.tone.Reset()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	samples := make([]int16, 0)
	device, err := malgo.InitDevice(r.engine.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			if cap(samples) < int(frameCount) {
				samples = make([]int16, frameCount)
			}
			samples = samples[:frameCount]
			r.tone.Fill(samples)
			for i, v := range samples {
				binary.LittleEndian.PutUint16(outputSamples[i*2:], uint16(v))
			}
		},
	})
	if err != nil {
		return
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return
	}
	r.device = device
}

func (r *ringer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return
	}
	r.device.Uninit()
	r.device = nil
}
