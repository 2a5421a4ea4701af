package strategy

import (
	"fmt"

	"github.com/coverfuzz/coverfuzz/testcase"
)

// interestingI32 is 0x7FFFFFFF (maximum positive signed 32-bit integer)
// encoded little-endian.
var interestingI32 = [4]byte{0xFF, 0xFF, 0xFF, 0x7F}

// InsertInteresting overwrites bytes [i, i+4) with interestingI32 for each
// position i in [0, len-4), advancing by one byte each time. It always
// starts at byte 0 regardless of any resume markers on the seed. Seeds
// shorter than 4 bytes exhaust immediately.
type InsertInteresting struct {
	seed  *testcase.TestCase
	pos   int
	bound int
	done  bool
}

func NewInsertInteresting(seed *testcase.TestCase) Strategy {
	return &InsertInteresting{seed: seed, bound: len(seed.Data) - 4}
}

func (ii *InsertInteresting) GenTest() (*testcase.TestCase, bool) {
	if ii.done || ii.pos >= ii.bound {
		ii.done = true
		return nil, false
	}

	out := ii.seed.Clone()
	copy(out.Data[ii.pos:ii.pos+4], interestingI32[:])
	out.Mutations = fmt.Sprintf("interesting32@%d", ii.pos)

	ii.pos++
	if ii.pos >= ii.bound {
		ii.done = true
	}
	return out, true
}

func (ii *InsertInteresting) Stats() (string, float64) {
	if ii.bound <= 0 {
		return "interesting32", 100
	}
	if ii.done {
		return "interesting32", 100
	}
	return "interesting32", 100 * float64(ii.pos) / float64(ii.bound)
}
