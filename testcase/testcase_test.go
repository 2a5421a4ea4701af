package testcase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeepCopy(t *testing.T) {
	orig := New("seed", []byte{1, 2, 3})
	orig.StartBytePos = 2
	orig.StartBitPos = 5
	orig.Mutations = "bitflip@0.1"

	clone := orig.Clone()
	clone.Data[0] = 0xFF

	assert.Equal(t, byte(1), orig.Data[0], "mutating the clone must not affect the original")
	assert.Equal(t, orig.Name, clone.Name)
	assert.Equal(t, orig.Mutations, clone.Mutations)
	assert.Equal(t, orig.StartBytePos, clone.StartBytePos)
	assert.Equal(t, orig.StartBitPos, clone.StartBitPos)
}

func TestWriteToAndLoadFromRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "case1")

	tc := New("case1", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, tc.WriteTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, tc.Data, loaded.Data)
	assert.Equal(t, "case1", loaded.Name)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestWriteToTruncatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "case1")
	require.NoError(t, os.WriteFile(path, []byte("much longer previous content"), 0644))

	tc := New("case1", []byte{1})
	require.NoError(t, tc.WriteTo(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)
}
