package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToneGeneratorCadence(t *testing.T) {
	const rate = 8000
	g := NewToneGenerator(rate)

	cycle := make([]int16, ringCycleSeconds*rate)
	g.Fill(cycle)

	// On-phase carries signal.
	var onEnergy int64
	for _, s := range cycle[:ringOnSeconds*rate] {
		if s < 0 {
			onEnergy -= int64(s)
		} else {
			onEnergy += int64(s)
		}
	}
	require.Greater(t, onEnergy, int64(0))

	// Off-phase is silent.
	for i := ringOnSeconds * rate; i < len(cycle); i++ {
		assert.Zero(t, cycle[i], "sample %d should be silent", i)
	}
}

func TestToneGeneratorContinuesAcrossFills(t *testing.T) {
	const rate = 8000
	whole := NewToneGenerator(rate)
	split := NewToneGenerator(rate)

	a := make([]int16, rate)
	whole.Fill(a)

	b := make([]int16, rate/2)
	c := make([]int16, rate/2)
	split.Fill(b)
	split.Fill(c)

	assert.Equal(t, a[:rate/2], b)
	assert.Equal(t, a[rate/2:], c)
}

func TestToneGeneratorReset(t *testing.T) {
	const rate = 8000
	g := NewToneGenerator(rate)

	first := make([]int16, 100)
	g.Fill(first)
	g.Fill(make([]int16, rate))

	g.Reset()
	again := make([]int16, 100)
	g.Fill(again)
	assert.Equal(t, first, again)
}
