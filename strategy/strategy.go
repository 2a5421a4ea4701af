// Package strategy implements the deterministic mutation strategies (C4)
// that the fuzzer engine sequences across each test case it pulls from the
// input queue. Every strategy is a stateful generator seeded with one
// TestCase; it is consulted repeatedly via GenTest until it reports
// exhaustion, then discarded.
package strategy

import "github.com/coverfuzz/coverfuzz/testcase"

// Strategy is the narrow capability every mutation scheme implements. It
// plays the role of the dynamically-dispatched strategy object in the
// original fuzzer: the engine holds a queue of these behind the interface
// and never needs to know the concrete type.
type Strategy interface {
	// GenTest produces the next mutated TestCase derived from the seed, or
	// (nil, false) once the strategy is exhausted. Once a strategy reports
	// exhaustion it must keep reporting it (invariant I2).
	GenTest() (*testcase.TestCase, bool)

	// Stats reports a human-readable name and completion percentage in
	// [0, 100]. Percentage never regresses once reported (invariant I2).
	Stats() (name string, percentComplete float64)
}

// Constructor builds a fresh Strategy instance for a given seed. The engine
// keeps a list of constructors and instantiates one of each per seed to
// populate the strategy queue (spec §4.7 / §9 "dynamic dispatch").
type Constructor func(seed *testcase.TestCase) Strategy

// All is the required strategy set, in the order the engine instantiates
// them for every seed pulled off the input queue.
var All = []Constructor{
	NewNull,
	NewBitFlip,
	NewAddSub,
	NewInsertInteresting,
	NewRuns,
}
