package strategy

import "github.com/coverfuzz/coverfuzz/testcase"

// Null yields exactly one unmodified clone of the seed, then exhausts. It
// seeds the baseline and guarantees every seed input is executed at least
// once before any other strategy touches it.
type Null struct {
	seed *testcase.TestCase
	done bool
}

func NewNull(seed *testcase.TestCase) Strategy {
	return &Null{seed: seed}
}

func (n *Null) GenTest() (*testcase.TestCase, bool) {
	if n.done {
		return nil, false
	}
	n.done = true
	out := n.seed.Clone()
	out.Mutations = "null"
	return out, true
}

func (n *Null) Stats() (string, float64) {
	if n.done {
		return "null", 100
	}
	return "null", 0
}
