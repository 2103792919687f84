package call

import "math"

// North American ringback: 440Hz+480Hz, 2s on / 4s off.
const (
	ringLowHz  = 440.0
	ringHighHz = 480.0

	ringOnSeconds    = 2
	ringCycleSeconds = 6

	ringAmplitude = 0.15
)

// ToneGenerator synthesizes the ringback heard while a call is connecting.
// It is a stateful sample source: successive Fill calls continue the cadence
// where the previous call left off. Not safe for concurrent use.
type ToneGenerator struct {
	// SampleRate of the output PCM, in Hz.
	SampleRate int

	pos int
}

// NewToneGenerator returns a generator producing mono 16-bit PCM at the
// given sample rate.
func NewToneGenerator(sampleRate int) *ToneGenerator {
	return &ToneGenerator{SampleRate: sampleRate}
}

// Fill writes the next len(out) samples of the cadence into out.
func (g *ToneGenerator) Fill(out []int16) {
	onSamples := ringOnSeconds * g.SampleRate
	cycleSamples := ringCycleSeconds * g.SampleRate
	for i := range out {
		phase := g.pos % cycleSamples
		if phase < onSamples {
			t := float64(g.pos) / float64(g.SampleRate)
			v := (math.Sin(2*math.Pi*ringLowHz*t) + math.Sin(2*math.Pi*ringHighHz*t)) / 2
			out[i] = int16(v * ringAmplitude * math.MaxInt16)
		} else {
			out[i] = 0
		}
		g.pos++
	}
}

// Reset rewinds the cadence to the start of the on-phase, for reuse across
// connection attempts.
func (g *ToneGenerator) Reset() {
	g.pos = 0
}
