package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coverfuzz/coverfuzz/coverage"
)

func TestRecordEdgeMatchesAFLHash(t *testing.T) {
	mapBuf := make([]byte, coverage.MapSize)
	var prev uint32

	prev = recordEdge(mapBuf, prev, 0x1000)
	assert.Equal(t, uint32(0x80), prev)

	prev = recordEdge(mapBuf, prev, 0x2000)
	prev = recordEdge(mapBuf, prev, 0x1000)

	count := 0
	for _, v := range mapBuf {
		if v != 0 {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestRecordEdgeSaturates(t *testing.T) {
	mapBuf := make([]byte, coverage.MapSize)
	var prev uint32
	for i := 0; i < 300; i++ {
		prev = recordEdge(mapBuf, prev, 0x4000)
		prev = 0 // force the same cell every time
	}
	found := false
	for _, v := range mapBuf {
		if v == 0xFF {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSBLineRegex(t *testing.T) {
	assert.True(t, sbLine.MatchString("SB 1000"))
	assert.True(t, sbLine.MatchString("sb 0x1000"))
	assert.False(t, sbLine.MatchString("not a record"))
}
