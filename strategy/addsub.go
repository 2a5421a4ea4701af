package strategy

import (
	"fmt"

	"github.com/coverfuzz/coverfuzz/testcase"
)

var addSubOffsets = [5]int{-2, -1, 0, 1, 2}

// AddSub emits, for each byte position, five clones with that byte offset
// by -2, -1, 0, +1, +2 (mod 256), then advances to the next position. It
// always starts at byte 0 regardless of any resume markers on the seed (see
// BitFlip's doc comment). The zero-offset clone duplicates the seed byte;
// it is not de-duplicated against the seed itself.
type AddSub struct {
	seed      *testcase.TestCase
	bytePos   int
	offsetIdx int
	done      bool
}

func NewAddSub(seed *testcase.TestCase) Strategy {
	return &AddSub{seed: seed}
}

func (a *AddSub) GenTest() (*testcase.TestCase, bool) {
	if a.done || len(a.seed.Data) == 0 || a.bytePos >= len(a.seed.Data) {
		a.done = true
		return nil, false
	}

	offset := addSubOffsets[a.offsetIdx]
	out := a.seed.Clone()
	out.Data[a.bytePos] = byte(int(out.Data[a.bytePos]) + offset)
	out.Mutations = fmt.Sprintf("addsub@%d%+d", a.bytePos, offset)

	a.offsetIdx++
	if a.offsetIdx == len(addSubOffsets) {
		a.offsetIdx = 0
		a.bytePos++
	}
	if a.bytePos >= len(a.seed.Data) {
		a.done = true
	}
	return out, true
}

func (a *AddSub) Stats() (string, float64) {
	total := len(a.seed.Data) * len(addSubOffsets)
	if total == 0 {
		return "addsub", 100
	}
	if a.done {
		return "addsub", 100
	}
	done := a.bytePos*len(addSubOffsets) + a.offsetIdx
	return "addsub", 100 * float64(done) / float64(total)
}
