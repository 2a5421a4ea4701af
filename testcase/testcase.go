// Package testcase implements the test case aggregate (C3): a mutable byte
// buffer plus lineage metadata carried between a seed and its mutated
// descendants.
package testcase

import (
	"fmt"
	"os"
	"path/filepath"
)

// TestCase owns a byte buffer and the bookkeeping a mutation strategy chain
// needs to resume deterministically across generations.
type TestCase struct {
	Data      []byte
	Name      string
	Mutations string

	// StartBytePos/StartBitPos are optional resume markers a strategy may
	// consult instead of starting from (0,0). Only the sequential bit-flip
	// strategy honors them (see strategy.BitFlip); every other strategy
	// always starts at byte 0, which preserves an asymmetry present in the
	// original fuzzer.
	StartBytePos int
	StartBitPos  int
}

// New wraps data under name with no mutation history.
func New(name string, data []byte) *TestCase {
	return &TestCase{Name: name, Data: data}
}

// Clone deep-copies Data; lineage fields (Name, Mutations, resume markers)
// are copied by value.
func (c *TestCase) Clone() *TestCase {
	cp := make([]byte, len(c.Data))
	copy(cp, c.Data)
	return &TestCase{
		Data:         cp,
		Name:         c.Name,
		Mutations:    c.Mutations,
		StartBytePos: c.StartBytePos,
		StartBitPos:  c.StartBitPos,
	}
}

// WriteTo writes Data to path, truncating any existing file.
func (c *TestCase) WriteTo(path string) error {
	if err := os.WriteFile(path, c.Data, 0644); err != nil {
		return fmt.Errorf("testcase: write %s: %w", path, err)
	}
	return nil
}

// LoadFrom reads path into a new TestCase named after its basename.
func LoadFrom(path string) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testcase: load %s: %w", path, err)
	}
	return New(filepath.Base(path), data), nil
}
