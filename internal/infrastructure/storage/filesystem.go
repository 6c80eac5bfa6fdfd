// Package storage is the filesystem boundary for entity data. Repositories and
// caches talk to FileSystem, never to package os directly, so tests can inject
// failures without touching a real disk.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileInfo is the subset of file metadata the cache layer relies on.
type FileInfo struct {
	ModTime time.Time
	Size    int64
}

// FileSystem is the storage collaborator consumed by the cache core.
type FileSystem interface {
	// Exists reports whether path names an existing regular file.
	Exists(path string) bool

	// Stat fails if the path is absent.
	Stat(path string) (FileInfo, error)

	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the file contents atomically, creating parent
	// directories when needed.
	WriteFile(path string, data []byte) error

	// Copy duplicates src into dst.
	Copy(src, dst string) error

	// Glob lists files matching a filepath.Match pattern.
	Glob(pattern string) ([]string, error)

	// Remove deletes a file. Removing a missing file is not an error.
	Remove(path string) error
}

// OSFileSystem implements FileSystem on top of the local disk.
type OSFileSystem struct {
	// FileMode applied to written files. Zero means 0o644.
	FileMode os.FileMode
}

// NewOSFileSystem returns a FileSystem backed by the local disk.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{FileMode: 0o644}
}

func (f *OSFileSystem) mode() os.FileMode {
	if f.FileMode == 0 {
		return 0o644
	}
	return f.FileMode
}

// Exists reports whether path is an existing regular file.
func (f *OSFileSystem) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Stat returns modification time and size.
func (f *OSFileSystem) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{ModTime: info.ModTime(), Size: info.Size()}, nil
}

// ReadFile reads the whole file.
func (f *OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to a temporary file next to path and renames it into
// place, so readers never observe a half-written file.
func (f *OSFileSystem) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Best-effort removal of the temp file on any failure path.
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, f.mode()); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Copy copies src to dst, creating dst's directory.
func (f *OSFileSystem) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Glob returns the names of all files matching pattern.
func (f *OSFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// Remove deletes path, ignoring files that are already gone.
func (f *OSFileSystem) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
