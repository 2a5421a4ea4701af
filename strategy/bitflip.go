package strategy

import (
	"fmt"

	"github.com/coverfuzz/coverfuzz/testcase"
)

// BitFlip walks (byte, bit) positions in row-major order across
// [0, len) x [0, 8), flipping exactly one bit per emitted case. It is the
// only strategy that honors a seed's resume markers (StartBytePos,
// StartBitPos), so a descendant in a mutation chain can pick up where its
// parent's bit-flip sweep left off instead of restarting at (0,0). Every
// other strategy always starts at byte 0 — an asymmetry preserved from the
// original fuzzer.
type BitFlip struct {
	seed    *testcase.TestCase
	bytePos int
	bitPos  int
	done    bool
}

func NewBitFlip(seed *testcase.TestCase) Strategy {
	return &BitFlip{
		seed:    seed,
		bytePos: seed.StartBytePos,
		bitPos:  seed.StartBitPos,
	}
}

func (b *BitFlip) GenTest() (*testcase.TestCase, bool) {
	if b.done || len(b.seed.Data) == 0 || b.bytePos >= len(b.seed.Data) {
		b.done = true
		return nil, false
	}

	out := b.seed.Clone()
	out.Data[b.bytePos] ^= 1 << uint(b.bitPos)
	out.Mutations = fmt.Sprintf("bitflip@%d.%d", b.bytePos, b.bitPos)

	b.bitPos++
	if b.bitPos == 8 {
		b.bitPos = 0
		b.bytePos++
	}
	out.StartBytePos = b.bytePos
	out.StartBitPos = b.bitPos

	if b.bytePos >= len(b.seed.Data) {
		b.done = true
	}
	return out, true
}

func (b *BitFlip) Stats() (string, float64) {
	total := len(b.seed.Data) * 8
	if total == 0 {
		return "bitflip", 100
	}
	done := b.bytePos*8 + b.bitPos
	if b.done {
		return "bitflip", 100
	}
	return "bitflip", 100 * float64(done) / float64(total)
}
