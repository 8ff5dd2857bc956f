package publisher

import (
	"context"
	"errors"
	"sync"

	"classifieds_ad_publisher/adform"
)

// ErrListingNotFound is returned by Store.Get for unknown ids.
var ErrListingNotFound = errors.New("listing not found")

// Store keeps published listings.
type Store interface {
	Save(ctx context.Context, listing *adform.Listing) error
	Get(ctx context.Context, id string) (*adform.Listing, error)
}

// MemoryStore is the in-process Store used when no redis address is set.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[string]adform.Listing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]adform.Listing)}
}

func (s *MemoryStore) Save(_ context.Context, listing *adform.Listing) error {
	if listing == nil || listing.ID == "" {
		return errors.New("listing id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.ID] = *listing
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*adform.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	return &l, nil
}
