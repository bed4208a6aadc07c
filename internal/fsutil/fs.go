// Package fsutil wraps a go-billy filesystem behind the handful of
// operations the transfer tool needs. The OS-backed form drives real runs;
// the in-memory form keeps tests off the disk.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FS is a filesystem rooted at a go-billy implementation.
type FS struct {
	fs billy.Filesystem
}

// NewFS creates an FS over the given go-billy filesystem.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewOSFS creates an FS over the host filesystem rooted at path.
func NewOSFS(path string) *FS {
	return &FS{fs: osfs.New(path)}
}

// NewInMemoryFS creates an empty in-memory FS.
func NewInMemoryFS() *FS {
	return &FS{fs: memfs.New()}
}

// ListFiles returns the paths of every regular file under root, walking
// recursively in lexical order. The root must exist.
func (f *FS) ListFiles(root string) ([]string, error) {
	var files []string
	err := util.Walk(f.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsutil: list files %q: %w", root, err)
	}
	return files, nil
}

// EnsureDir creates path (and any missing parents) when it does not exist.
// An existing non-directory at path is an error.
func (f *FS) EnsureDir(path string) error {
	info, err := f.fs.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("fsutil: ensure dir %q: not a directory", path)
		}
		return nil
	case os.IsNotExist(err):
		if err := f.fs.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("fsutil: ensure dir %q: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("fsutil: ensure dir %q: %w", path, err)
	}
}

// IsDir reports whether path exists and is a directory.
func (f *FS) IsDir(path string) bool {
	info, err := f.fs.Stat(path)
	return err == nil && info.IsDir()
}

// Exists reports whether path exists.
func (f *FS) Exists(path string) (bool, error) {
	_, err := f.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("fsutil: stat %q: %w", path, err)
	}
}

// FileSize returns the size of the regular file at path.
func (f *FS) FileSize(path string) (int64, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("fsutil: stat %q: %w", path, err)
	}
	return info.Size(), nil
}

// Stat returns file info for path.
func (f *FS) Stat(path string) (os.FileInfo, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("fsutil: stat %q: %w", path, err)
	}
	return info, nil
}

// Open opens the named file for reading.
func (f *FS) Open(name string) (billy.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("fsutil: open %q: %w", name, err)
	}
	return file, nil
}

// Create creates or truncates the named file for writing.
func (f *FS) Create(name string) (billy.File, error) {
	file, err := f.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("fsutil: create %q: %w", name, err)
	}
	return file, nil
}

// ReadFile returns the contents of the named file.
func (f *FS) ReadFile(path string) ([]byte, error) {
	data, err := util.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("fsutil: readfile %q: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data to the named file, creating parent directories as
// needed.
func (f *FS) WriteFile(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fsutil: writefile %q: %w", path, err)
		}
	}
	if err := util.WriteFile(f.fs, path, data, perm); err != nil {
		return fmt.Errorf("fsutil: writefile %q: %w", path, err)
	}
	return nil
}

// Remove deletes the named file.
func (f *FS) Remove(name string) error {
	if err := f.fs.Remove(name); err != nil {
		return fmt.Errorf("fsutil: remove %q: %w", name, err)
	}
	return nil
}

// Join joins path elements using the underlying filesystem's separator.
func (f *FS) Join(elem ...string) string {
	return f.fs.Join(elem...)
}

// Walk walks the tree rooted at root, calling walkFn for each entry.
func (f *FS) Walk(root string, walkFn filepath.WalkFunc) error {
	if err := util.Walk(f.fs, root, walkFn); err != nil {
		return fmt.Errorf("fsutil: walk %q: %w", root, err)
	}
	return nil
}

// Raw returns the underlying go-billy filesystem.
func (f *FS) Raw() billy.Filesystem {
	return f.fs
}
