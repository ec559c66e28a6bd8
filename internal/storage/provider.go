// Package storage defines the site file-system abstraction.
package storage

import "io"

// Entry is one item of a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// Provider is the interface for site file operations. All paths are relative
// to the site root.
type Provider interface {
	// Entries lists dir without recursing, in name order.
	Entries(dir string) ([]Entry, error)
	// Exists reports whether dir exists and is a directory.
	Exists(dir string) (bool, error)
	// EnsureDir creates dir and any missing parents.
	EnsureDir(dir string) error
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Create atomically stores the stream r at a path that must not exist
	// yet and returns the bytes written. An existing file yields an error
	// matching os.ErrExist.
	Create(path string, r io.Reader) (int64, error)
}
