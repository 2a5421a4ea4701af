package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverfuzz/coverfuzz/testcase"
)

func drain(s Strategy) []*testcase.TestCase {
	var out []*testcase.TestCase
	for {
		tc, ok := s.GenTest()
		if !ok {
			break
		}
		out = append(out, tc)
	}
	return out
}

func TestNullYieldsUnmodifiedSeedOnce(t *testing.T) {
	seed := testcase.New("seed", []byte("Hello World"))
	s := NewNull(seed)

	out := drain(s)
	require.Len(t, out, 1)
	assert.Equal(t, seed.Data, out[0].Data)

	name, pct := s.Stats()
	assert.Equal(t, "null", name)
	assert.Equal(t, 100.0, pct)

	// Invariant I2: exhausted strategy keeps reporting exhaustion.
	_, ok := s.GenTest()
	assert.False(t, ok)
}

func TestBitFlipWalksRowMajor(t *testing.T) {
	seed := testcase.New("seed", []byte{0x00, 0x00})
	s := NewBitFlip(seed)

	out := drain(s)
	require.Len(t, out, 16)
	assert.Equal(t, byte(1), out[0].Data[0])
	assert.Equal(t, byte(2), out[1].Data[0])
	assert.Equal(t, byte(0x80), out[7].Data[0])
	assert.Equal(t, byte(1), out[8].Data[1])

	_, pct := s.Stats()
	assert.Equal(t, 100.0, pct)
}

func TestBitFlipResumesFromSeedMarkers(t *testing.T) {
	seed := testcase.New("seed", []byte{0x00, 0x00})
	seed.StartBytePos = 1
	seed.StartBitPos = 3
	s := NewBitFlip(seed)

	out := drain(s)
	require.Len(t, out, 5) // bits 3..7 of byte 1
	assert.Equal(t, byte(0x08), out[0].Data[1])
}

func TestBitFlipEmptySeedExhaustsImmediately(t *testing.T) {
	s := NewBitFlip(testcase.New("seed", nil))
	_, ok := s.GenTest()
	assert.False(t, ok)
}

func TestAddSubOffsetsPerByte(t *testing.T) {
	seed := testcase.New("seed", []byte{10})
	s := NewAddSub(seed)

	out := drain(s)
	require.Len(t, out, 5)
	want := []byte{8, 9, 10, 11, 12}
	for i, tc := range out {
		assert.Equal(t, want[i], tc.Data[0])
	}
}

func TestAddSubWrapsModulo256(t *testing.T) {
	seed := testcase.New("seed", []byte{0x00})
	out := drain(NewAddSub(seed))
	require.Len(t, out, 5)
	assert.Equal(t, byte(254), out[0].Data[0]) // 0 - 2 mod 256
	assert.Equal(t, byte(255), out[1].Data[0])
}

func TestInsertInterestingExhaustsBelowFourBytes(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3} {
		s := NewInsertInteresting(testcase.New("seed", make([]byte, n)))
		_, ok := s.GenTest()
		assert.False(t, ok, "len=%d should exhaust immediately", n)
	}
}

func TestInsertInterestingPattern(t *testing.T) {
	seed := testcase.New("seed", make([]byte, 5))
	s := NewInsertInteresting(seed)

	out := drain(s)
	require.Len(t, out, 1) // positions in [0, 5-4) = [0,1)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0x7F, 0x00}, out[0].Data)
}

func TestRunsGrowsThenAdvances(t *testing.T) {
	seed := testcase.New("seed", make([]byte, 3))
	out := drain(NewRuns(seed))
	// pos 0: lengths 1,2,3 valid (0+1..0+3<=3); pos1: lengths1,2; pos2: length1
	require.Len(t, out, 6)
	assert.Equal(t, []byte{0xFF, 0, 0}, out[0].Data)
	assert.Equal(t, []byte{0xFF, 0xFF, 0}, out[1].Data)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, out[2].Data)
	assert.Equal(t, []byte{0, 0xFF, 0}, out[3].Data)
	assert.Equal(t, []byte{0, 0xFF, 0xFF}, out[4].Data)
	assert.Equal(t, []byte{0, 0, 0xFF}, out[5].Data)
}

func TestRunsEmptySeedExhaustsImmediately(t *testing.T) {
	_, ok := NewRuns(testcase.New("seed", nil)).GenTest()
	assert.False(t, ok)
}

func TestAllStrategiesRestartSafe(t *testing.T) {
	seed := testcase.New("seed", []byte("fuzz"))
	for _, ctor := range All {
		a := drain(ctor(seed))
		b := drain(ctor(seed))
		require.Len(t, b, len(a))
		for i := range a {
			assert.Equal(t, a[i].Data, b[i].Data)
		}
	}
}
