package fsutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kshitiz1403/dicom-transfer/internal/fsutil"
)

func TestFS_ListFiles(t *testing.T) {
	fs := fsutil.NewInMemoryFS()

	require.NoError(t, fs.WriteFile("/data/study1/a.dcm", []byte("a"), 0o644))
	require.NoError(t, fs.WriteFile("/data/study1/b.dcm", []byte("b"), 0o644))
	require.NoError(t, fs.WriteFile("/data/study2/nested/c.dcm", []byte("c"), 0o644))
	require.NoError(t, fs.WriteFile("/data/notes.txt", []byte("n"), 0o644))

	files, err := fs.ListFiles("/data")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/data/notes.txt",
		"/data/study1/a.dcm",
		"/data/study1/b.dcm",
		"/data/study2/nested/c.dcm",
	}, files)
}

func TestFS_ListFilesMissingRoot(t *testing.T) {
	fs := fsutil.NewInMemoryFS()

	_, err := fs.ListFiles("/nowhere")
	assert.Error(t, err)
}

func TestFS_EnsureDir(t *testing.T) {
	fs := fsutil.NewInMemoryFS()

	require.NoError(t, fs.EnsureDir("/out/deep/dir"))
	assert.True(t, fs.IsDir("/out/deep/dir"))

	// Existing directory is fine.
	require.NoError(t, fs.EnsureDir("/out/deep/dir"))

	// A file in the way is not.
	require.NoError(t, fs.WriteFile("/out/file", []byte("x"), 0o644))
	err := fs.EnsureDir("/out/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestFS_FileSizeAndExists(t *testing.T) {
	fs := fsutil.NewInMemoryFS()

	require.NoError(t, fs.WriteFile("/f.bin", make([]byte, 1234), 0o644))

	size, err := fs.FileSize("/f.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	ok, err := fs.Exists("/f.bin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists("/missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = fs.FileSize("/missing")
	assert.Error(t, err)
}

func TestFS_ReadWriteRemove(t *testing.T) {
	fs := fsutil.NewInMemoryFS()

	require.NoError(t, fs.WriteFile("/a/b/c.dat", []byte("payload"), 0o644))

	data, err := fs.ReadFile("/a/b/c.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, fs.Remove("/a/b/c.dat"))
	ok, err := fs.Exists("/a/b/c.dat")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFS_Join(t *testing.T) {
	fs := fsutil.NewInMemoryFS()
	assert.Equal(t, "/out/file.dcm", fs.Join("/out", "file.dcm"))
}
