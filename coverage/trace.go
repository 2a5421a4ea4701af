package coverage

import "hash/crc32"

// Trace is a snapshot of one execution against the coverage map, plus the
// exit metadata the backend observed for that execution. Only CombineInto
// changes a Trace, and only the baseline it folds into.
type Trace struct {
	snapshot    []byte // always len == MapSize (invariant I1)
	didCrash    bool
	exitSignal  uint8
	exitCode    uint8
	duration    float64 // seconds
	checksumVal uint32
}

// NewTrace takes ownership of snapshot (the caller must not mutate it
// afterwards) and records the execution's outcome.
func NewTrace(snapshot []byte, didCrash bool, exitSignal, exitCode uint8, duration float64) *Trace {
	if len(snapshot) != MapSize {
		panic("coverage: trace snapshot must be exactly MapSize bytes")
	}
	return &Trace{
		snapshot:    snapshot,
		didCrash:    didCrash,
		exitSignal:  exitSignal,
		exitCode:    exitCode,
		duration:    duration,
		checksumVal: crc32.ChecksumIEEE(snapshot),
	}
}

func (t *Trace) DidCrash() bool      { return t.didCrash }
func (t *Trace) ExitSignal() uint8   { return t.exitSignal }
func (t *Trace) ExitCode() uint8     { return t.exitCode }
func (t *Trace) Duration() float64   { return t.duration }
func (t *Trace) Checksum() uint32    { return t.checksumVal }
func (t *Trace) Bytes() []byte       { return t.snapshot }

// bucket returns the 0-based index of v's most significant set bit, with
// bucket(0) == -1. This collapses the 256 possible hit counts into the nine
// canonical AFL frequency classes.
func bucket(v byte) int {
	if v == 0 {
		return -1
	}
	b := -1
	for v != 0 {
		v >>= 1
		b++
	}
	return b
}

// CompareTo reports whether t is "interesting" relative to baseline: some
// cell either went from zero to nonzero (a new edge) or moved to a strictly
// higher frequency bucket (deeper loop iteration on an already-seen edge).
// Ties and decreases are not interesting. This is the two-criterion AFL
// novelty rule; bucketing alone would miss first-time edges with count 1
// matching some unrelated edge already at bucket 0.
func (t *Trace) CompareTo(baseline *Trace) bool {
	base := baseline.snapshot
	for i, v := range t.snapshot {
		bv := base[i]
		if bv == 0 && v != 0 {
			return true
		}
		if bucket(v) > bucket(bv) {
			return true
		}
	}
	return false
}

// NumberOfPaths counts cells with a nonzero hit count.
func (t *Trace) NumberOfPaths() int {
	n := 0
	for _, v := range t.snapshot {
		if v != 0 {
			n++
		}
	}
	return n
}

// CombineInto folds t pointwise into baseline: baseline[i] = max(baseline[i], t[i]).
// Used to update the running coverage union (invariant I4).
func (t *Trace) CombineInto(baseline *Trace) {
	base := baseline.snapshot
	for i, v := range t.snapshot {
		if v > base[i] {
			base[i] = v
		}
	}
	baseline.checksumVal = crc32.ChecksumIEEE(base)
}
