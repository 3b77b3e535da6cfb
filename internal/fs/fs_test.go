package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "data.bin")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("hello")))
	assert.True(t, Exists(Default, path))
	assert.False(t, Exists(Default, path+".tmp"))

	got, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, WriteFileAtomic(Default, path, []byte("bye")))
	got, err = ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(got))
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(Default, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFaultyFS(t *testing.T) {
	tests := []struct {
		name  string
		fault Fault
	}{
		{"open", Fault{FailOnOpen: true, FailAfterBytes: -1}},
		{"write", Fault{FailAfterBytes: 2}},
		{"sync", Fault{FailOnSync: true, FailAfterBytes: -1}},
		{"close", Fault{FailOnClose: true, FailAfterBytes: -1}},
		{"rename", Fault{FailOnRename: true, FailAfterBytes: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.bin")
			require.NoError(t, WriteFileAtomic(Default, path, []byte("old")))

			ffs := NewFaultyFS(nil)
			ffs.AddRule("data.bin", tt.fault)

			err := WriteFileAtomic(ffs, path, []byte("new data"))
			assert.ErrorIs(t, err, ErrInjected)

			// The previous content survives and no temporary file is left.
			got, err := ReadFile(Default, path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(got))
			assert.False(t, Exists(Default, path+".tmp"))
		})
	}
}

func TestFaultyFSCustomError(t *testing.T) {
	custom := os.ErrPermission
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("x", Fault{FailOnOpen: true, Err: custom})

	_, err := ffs.OpenFile(filepath.Join(t.TempDir(), "x"), os.O_CREATE|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, custom)

	ffs.ClearRules()
	path := filepath.Join(t.TempDir(), "x")
	require.NoError(t, WriteFileAtomic(ffs, path, []byte("abc")))
	assert.Equal(t, int64(3), ffs.Written())
}
