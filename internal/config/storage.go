package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// Storage is the persistent key-document medium.
type Storage interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// FileStorage keeps the document in a single file. Writes go to a temporary
// file that is synced and renamed over the target.
type FileStorage struct {
	fs   afero.Fs
	path string
}

// NewFileStorage stores the document at path on fs.
func NewFileStorage(fs afero.Fs, path string) *FileStorage {
	return &FileStorage{fs: fs, path: path}
}

// Read returns the file contents.
func (f *FileStorage) Read() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return data, nil
}

// Write atomically replaces the file.
func (f *FileStorage) Write(data []byte) error {
	tmp := f.path + ".tmp"
	file, err := f.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// ErrEmpty is returned by MemStorage.Read when nothing was written.
var ErrEmpty = errors.New("no document stored")

// MemStorage is an in-memory Storage for tests.
type MemStorage struct {
	mu   sync.Mutex
	data []byte

	// ReadError and WriteError, if set, are returned by Read and Write.
	ReadError  error
	WriteError error

	// Writes counts successful writes.
	Writes int
}

// NewMemStorage returns a MemStorage holding data (nil for empty).
func NewMemStorage(data []byte) *MemStorage {
	return &MemStorage{data: data}
}

// Read returns the stored bytes.
func (m *MemStorage) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if m.data == nil {
		return nil, ErrEmpty
	}
	return append([]byte(nil), m.data...), nil
}

// Write stores a copy of data.
func (m *MemStorage) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return m.WriteError
	}
	m.data = append([]byte(nil), data...)
	m.Writes++
	return nil
}

// Bytes returns the last written document.
func (m *MemStorage) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
