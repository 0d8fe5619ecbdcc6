// Package blobstore stores attachment content for incident reports. It holds
// opaque bytes under caller-chosen storage keys; filenames, content types and
// ownership live in the attachments table, not here. Two implementations are
// provided: an in-memory store for tests and development, and a filesystem
// store for deployments.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobTooLarge = errors.New("blob exceeds maximum allowed size")
	ErrInvalidKey   = errors.New("invalid storage key")
)

// DefaultMaxSize caps a single blob at 25 MB when no limit is configured.
const DefaultMaxSize = 25 * 1024 * 1024

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// PutResult reports what was actually written: the byte count and the
// SHA-256 of the content, both computed while streaming.
type PutResult struct {
	Size   int64
	SHA256 string
}

// Store is the contract for blob backends. Keys are opaque slash-free
// identifiers chosen by the caller (the attachment service joins UUIDs
// with hyphens).
type Store interface {
	Put(ctx context.Context, key string, content io.Reader) (*PutResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// validKey rejects empty keys and anything that could escape the storage
// root when a key is joined into a filesystem path.
func validKey(key string) bool {
	if key == "" || len(key) > 256 {
		return false
	}
	if strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return false
	}
	return true
}

// hashingCopy drains r up to maxSize bytes, hashing as it goes. It returns
// the content read, its size, and the hex SHA-256. ErrBlobTooLarge is
// returned when r yields more than maxSize bytes.
func hashingCopy(w io.Writer, r io.Reader, maxSize int64) (int64, string, error) {
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), io.LimitReader(r, maxSize+1))
	if err != nil {
		return 0, "", fmt.Errorf("reading content: %w", err)
	}
	if n > maxSize {
		return 0, "", ErrBlobTooLarge
	}
	return n, fmt.Sprintf("%x", h.Sum(nil)), nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory Store for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	maxSize int64
}

// NewMemoryStore returns a MemoryStore capping blobs at maxSize bytes;
// maxSize <= 0 falls back to DefaultMaxSize.
func NewMemoryStore(maxSize int64) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &MemoryStore{
		blobs:   make(map[string][]byte),
		maxSize: maxSize,
	}
}

// Put stores content under key, overwriting any previous blob with that key.
func (s *MemoryStore) Put(_ context.Context, key string, content io.Reader) (*PutResult, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	var buf bytes.Buffer
	size, sum, err := hashingCopy(&buf, content, s.maxSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[key] = buf.Bytes()
	s.mu.Unlock()

	return &PutResult{Size: size, SHA256: sum}, nil
}

// Get returns a reader over the blob content.
func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes a blob by key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// ---------------------------------------------------------------------------
// Filesystem implementation
// ---------------------------------------------------------------------------

// FilesystemStore keeps blobs as files under a root directory, fanned out
// into subdirectories by key prefix so no single directory grows unbounded.
// Writes go to a temp file first and are renamed into place, so readers
// never observe a partial blob.
type FilesystemStore struct {
	root    string
	maxSize int64
}

// NewFilesystemStore creates the root directory if needed and returns the
// store. maxSize <= 0 falls back to DefaultMaxSize.
func NewFilesystemStore(root string, maxSize int64) (*FilesystemStore, error) {
	if root == "" {
		return nil, errors.New("blobstore: root directory is required")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FilesystemStore{root: root, maxSize: maxSize}, nil
}

// path fans keys out as <root>/<key[:2]>/<key>.
func (s *FilesystemStore) path(key string) string {
	prefix := key
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(s.root, prefix, key)
}

// Put streams content to disk under key, overwriting any previous blob.
func (s *FilesystemStore) Put(_ context.Context, key string, content io.Reader) (*PutResult, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	size, sum, err := hashingCopy(tmp, content, s.maxSize)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("placing blob: %w", err)
	}

	return &PutResult{Size: size, SHA256: sum}, nil
}

// Get opens the blob file for reading.
func (s *FilesystemStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob file.
func (s *FilesystemStore) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}

	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("removing blob: %w", err)
	}
	return nil
}
