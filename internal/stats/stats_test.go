package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValAddAndSnapshot(t *testing.T) {
	s := NewSet()
	execs := s.New("executions", "total executions")
	execs.Add(1)
	execs.Add(1)
	execs.Add(1)

	snap := s.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "executions", snap[0].Name)
	assert.Equal(t, int64(3), snap[0].Value)
}

func TestMeanDurationEmptyIsZero(t *testing.T) {
	s := NewSet()
	assert.Equal(t, 0.0, s.MeanDuration())
	s.ObserveDuration(1.0)
	s.ObserveDuration(3.0)
	assert.InDelta(t, 2.0, s.MeanDuration(), 0.5)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "5s", FormatElapsed(5*time.Second))
	assert.Equal(t, "1m5s", FormatElapsed(65*time.Second))
}
