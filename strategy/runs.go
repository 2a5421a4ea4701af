package strategy

import (
	"fmt"

	"github.com/coverfuzz/coverfuzz/testcase"
)

// Runs grows, at each byte position, a run of 0xFF bytes of increasing
// length 1, 2, … until the run would cross the end of the buffer; at that
// point the position advances and the run length resets, starting the climb
// over at length 1 for the new position. It always starts at byte 0
// regardless of any resume markers on the seed. Used to probe
// length-handling paths in the target.
type Runs struct {
	seed   *testcase.TestCase
	pos    int
	length int
	done   bool
}

func NewRuns(seed *testcase.TestCase) Strategy {
	return &Runs{seed: seed, length: 1}
}

func (r *Runs) GenTest() (*testcase.TestCase, bool) {
	if r.done {
		return nil, false
	}
	n := len(r.seed.Data)
	if n == 0 {
		r.done = true
		return nil, false
	}
	for {
		if r.pos >= n {
			r.done = true
			return nil, false
		}
		if r.pos+r.length > n {
			r.pos++
			r.length = 1
			continue
		}
		break
	}

	out := r.seed.Clone()
	for i := r.pos; i < r.pos+r.length; i++ {
		out.Data[i] = 0xFF
	}
	out.Mutations = fmt.Sprintf("run@%d+%d", r.pos, r.length)

	r.length++
	return out, true
}

func (r *Runs) Stats() (string, float64) {
	n := len(r.seed.Data)
	if n == 0 || r.done {
		return "runs", 100
	}
	return "runs", 100 * float64(r.pos) / float64(n)
}
