package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroMap() []byte { return make([]byte, MapSize) }

func TestBucketBoundaries(t *testing.T) {
	assert.Equal(t, -1, bucket(0))
	assert.Equal(t, 0, bucket(1))
	assert.Equal(t, 1, bucket(2))
	assert.Equal(t, 1, bucket(3))
	assert.Equal(t, 2, bucket(4))
	assert.Equal(t, 7, bucket(0xFF))
}

func TestCompareToDetectsNewEdge(t *testing.T) {
	base := zeroMap()
	baseline := NewTrace(base, false, 0, 0, 0)

	self := zeroMap()
	self[42] = 1
	trace := NewTrace(self, false, 0, 0, 0)

	assert.True(t, trace.CompareTo(baseline))
}

func TestCompareToDetectsHigherBucket(t *testing.T) {
	base := zeroMap()
	base[7] = 1 // bucket 0
	baseline := NewTrace(base, false, 0, 0, 0)

	self := zeroMap()
	self[7] = 4 // bucket 2
	trace := NewTrace(self, false, 0, 0, 0)

	assert.True(t, trace.CompareTo(baseline))
}

func TestCompareToTiesAndDecreasesAreNotInteresting(t *testing.T) {
	base := zeroMap()
	base[7] = 4
	baseline := NewTrace(base, false, 0, 0, 0)

	tie := zeroMap()
	tie[7] = 4
	assert.False(t, NewTrace(tie, false, 0, 0, 0).CompareTo(baseline))

	lower := zeroMap()
	lower[7] = 1
	assert.False(t, NewTrace(lower, false, 0, 0, 0).CompareTo(baseline))
}

func TestCombineIntoIsPointwiseMax(t *testing.T) {
	base := zeroMap()
	base[1] = 5
	base[2] = 1
	baseline := NewTrace(base, false, 0, 0, 0)

	self := zeroMap()
	self[1] = 2
	self[3] = 9
	trace := NewTrace(self, false, 0, 0, 0)

	trace.CombineInto(baseline)
	assert.Equal(t, byte(5), baseline.snapshot[1])
	assert.Equal(t, byte(1), baseline.snapshot[2])
	assert.Equal(t, byte(9), baseline.snapshot[3])
}

func TestCombineIntoCommutative(t *testing.T) {
	a := zeroMap()
	a[1] = 5
	b := zeroMap()
	b[1] = 9
	b[2] = 3

	baseline1 := NewTrace(zeroMap(), false, 0, 0, 0)
	NewTrace(a, false, 0, 0, 0).CombineInto(baseline1)
	NewTrace(b, false, 0, 0, 0).CombineInto(baseline1)

	baseline2 := NewTrace(zeroMap(), false, 0, 0, 0)
	NewTrace(b, false, 0, 0, 0).CombineInto(baseline2)
	NewTrace(a, false, 0, 0, 0).CombineInto(baseline2)

	assert.Equal(t, baseline1.snapshot, baseline2.snapshot)
}

func TestNewTracePanicsOnWrongLength(t *testing.T) {
	assert.Panics(t, func() {
		NewTrace(make([]byte, 10), false, 0, 0, 0)
	})
}

func TestNumberOfPaths(t *testing.T) {
	buf := zeroMap()
	buf[0] = 1
	buf[100] = 3
	trace := NewTrace(buf, false, 0, 0, 0)
	require.Equal(t, 2, trace.NumberOfPaths())
}

func TestWaitStatusDecodingShape(t *testing.T) {
	// A trace carries the crash flag and signal that a backend decoded from
	// a wait status exactly as given.
	trace := NewTrace(zeroMap(), true, 11, 0, 0.5)
	assert.True(t, trace.DidCrash())
	assert.Equal(t, uint8(11), trace.ExitSignal())
}
