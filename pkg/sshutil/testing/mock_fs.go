// Package testing provides SSH mock utilities for testing.
// This package simulates a deployment target with an in-memory filesystem
// and a process table.
package testing

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MockFS simulates an in-memory remote filesystem.
// It supports the filesystem operations the deployer issues: mkdir, cat, rm,
// directory and file tests, and SFTP writes.
type MockFS struct {
	mu    sync.RWMutex
	files map[string][]byte   // path -> content
	dirs  map[string]struct{} // directories
}

// NewMockFS creates a new empty mock filesystem.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
}

// MkdirAll creates a directory and all parent directories.
// This mimics the behavior of `mkdir -p`, including failing when a file
// sits where a directory is needed.
func (fs *MockFS) MkdirAll(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mkdirAllLocked(filepath.Clean(path))
}

func (fs *MockFS) mkdirAllLocked(path string) error {
	parts := strings.Split(path, "/")
	current := ""
	for _, part := range parts {
		if part == "" {
			current = "/"
			continue
		}
		if current == "/" {
			current = "/" + part
		} else {
			current = current + "/" + part
		}
		if _, isFile := fs.files[current]; isFile {
			return errors.New("not a directory: " + current)
		}
		fs.dirs[current] = struct{}{}
	}
	return nil
}

// WriteFile writes content to a file, creating parent directories as needed.
func (fs *MockFS) WriteFile(path string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := fs.mkdirAllLocked(dir); err != nil {
			return err
		}
	}

	fs.files[path] = content
	return nil
}

// ReadFile reads the content of a file. Returns error if file doesn't exist.
func (fs *MockFS) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = filepath.Clean(path)

	content, exists := fs.files[path]
	if !exists {
		return nil, errors.New("file not found")
	}
	return content, nil
}

// Remove removes a file or directory and all its contents.
// This mimics the behavior of `rm -rf`.
func (fs *MockFS) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)

	// Remove the path itself
	delete(fs.files, path)
	delete(fs.dirs, path)

	// Remove all children (for directories)
	prefix := path + "/"
	for p := range fs.files {
		if strings.HasPrefix(p, prefix) {
			delete(fs.files, p)
		}
	}
	for p := range fs.dirs {
		if strings.HasPrefix(p, prefix) {
			delete(fs.dirs, p)
		}
	}

	return nil
}

// Exists returns true if the path exists (file or directory).
func (fs *MockFS) Exists(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = filepath.Clean(path)

	if _, exists := fs.dirs[path]; exists {
		return true
	}
	if _, exists := fs.files[path]; exists {
		return true
	}
	return false
}

// IsDir returns true if the path exists and is a directory.
func (fs *MockFS) IsDir(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = filepath.Clean(path)
	_, exists := fs.dirs[path]
	return exists
}

// IsFile returns true if the path exists and is a file.
func (fs *MockFS) IsFile(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = filepath.Clean(path)
	_, exists := fs.files[path]
	return exists
}

// Paths returns every directory and file path, sorted. Directories carry a
// trailing slash. Tests compare snapshots to assert nothing was mutated.
func (fs *MockFS) Paths() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	paths := make([]string, 0, len(fs.dirs)+len(fs.files))
	for d := range fs.dirs {
		paths = append(paths, d+"/")
	}
	for f := range fs.files {
		paths = append(paths, f)
	}
	sort.Strings(paths)
	return paths
}
