package audio

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BlobScheme prefixes every locator handed out by a BlobStore
const BlobScheme = "blob:"

// Blob is an in-memory resource reachable through a locator
type Blob struct {
	ID          string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// BlobStore hands out revocable locators for in-memory byte blobs.
// Every locator must be revoked once nothing references it.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
}

// NewBlobStore creates an empty blob store
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]*Blob)}
}

// Create registers data and returns its locator
func (s *BlobStore) Create(data []byte, contentType string) string {
	blob := &Blob{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[blob.ID] = blob
	s.mu.Unlock()

	return BlobScheme + blob.ID
}

// Get resolves a locator or a bare blob id
func (s *BlobStore) Get(locator string) (*Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[BlobID(locator)]
	return blob, ok
}

// Revoke frees the blob behind a locator. Revoking twice is a no-op.
func (s *BlobStore) Revoke(locator string) {
	s.mu.Lock()
	delete(s.blobs, BlobID(locator))
	s.mu.Unlock()
}

// Len returns the number of live blobs
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// BlobID strips the scheme from a locator
func BlobID(locator string) string {
	return strings.TrimPrefix(locator, BlobScheme)
}
