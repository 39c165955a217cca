package repository

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/patrickmn/go-cache"
)

type memoryStore struct {
	mu       sync.RWMutex
	listings *cache.Cache
	proceeds *cache.Cache
	events   []entity.Event
}

func NewMemoryStore() Store {
	return &memoryStore{
		listings: cache.New(cache.NoExpiration, 0),
		proceeds: cache.New(cache.NoExpiration, 0),
		events:   make([]entity.Event, 0),
	}
}

// Keys compare the raw identities, as the sqlite columns do.
func listingKey(collection string, assetId uint64) string {
	return fmt.Sprintf("%s/%d", collection, assetId)
}

func (s *memoryStore) Begin(_ context.Context) (Tx, error) {
	return &memoryTx{
		store:    s,
		listings: make(map[string]*entity.Listing),
		proceeds: make(map[string]*big.Int),
	}, nil
}

func (s *memoryStore) GetListing(_ context.Context, collection string, assetId uint64) (*entity.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getListing(collection, assetId)
}

func (s *memoryStore) getListing(collection string, assetId uint64) (*entity.Listing, error) {
	cached, found := s.listings.Get(listingKey(collection, assetId))
	if !found {
		return nil, ErrListingNotFound
	}

	listing := cached.(entity.Listing).Copy()
	return &listing, nil
}

func (s *memoryStore) GetListings(_ context.Context) ([]entity.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listings := make([]entity.Listing, 0)
	for _, item := range s.listings.Items() {
		listings = append(listings, item.Object.(entity.Listing).Copy())
	}

	sort.Slice(listings, func(i, j int) bool {
		if listings[i].Collection == listings[j].Collection {
			return listings[i].AssetId < listings[j].AssetId
		}
		return listings[i].Collection < listings[j].Collection
	})

	return listings, nil
}

func (s *memoryStore) GetProceeds(_ context.Context, owner string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getProceeds(owner), nil
}

func (s *memoryStore) getProceeds(owner string) *big.Int {
	if cached, found := s.proceeds.Get(owner); found {
		return new(big.Int).Set(cached.(entity.Proceeds).Balance)
	}
	return new(big.Int)
}

func (s *memoryStore) GetEvents(_ context.Context, fromSequence uint64, limit int) ([]entity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]entity.Event, 0)
	for _, e := range s.events {
		if e.Sequence < fromSequence {
			continue
		}
		if limit > 0 && len(events) >= limit {
			break
		}
		events = append(events, e)
	}

	return events, nil
}

func (s *memoryStore) Close() error {
	return nil
}

type memoryTx struct {
	store    *memoryStore
	listings map[string]*entity.Listing
	proceeds map[string]*big.Int
	events   []*entity.Event
	closed   bool
}

func (tx *memoryTx) GetListing(collection string, assetId uint64) (*entity.Listing, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}

	if staged, ok := tx.listings[listingKey(collection, assetId)]; ok {
		if staged == nil {
			return nil, ErrListingNotFound
		}
		listing := staged.Copy()
		return &listing, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	return tx.store.getListing(collection, assetId)
}

func (tx *memoryTx) SaveListing(listing entity.Listing) error {
	if tx.closed {
		return ErrTxClosed
	}

	staged := listing.Copy()
	tx.listings[listingKey(listing.Collection, listing.AssetId)] = &staged
	return nil
}

func (tx *memoryTx) DeleteListing(collection string, assetId uint64) error {
	if tx.closed {
		return ErrTxClosed
	}

	tx.listings[listingKey(collection, assetId)] = nil
	return nil
}

func (tx *memoryTx) GetProceeds(owner string) (*big.Int, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}

	if staged, ok := tx.proceeds[owner]; ok {
		return new(big.Int).Set(staged), nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	return tx.store.getProceeds(owner), nil
}

func (tx *memoryTx) SaveProceeds(owner string, balance *big.Int) error {
	if tx.closed {
		return ErrTxClosed
	}

	tx.proceeds[owner] = new(big.Int).Set(balance)
	return nil
}

func (tx *memoryTx) AppendEvent(event *entity.Event) error {
	if tx.closed {
		return ErrTxClosed
	}

	tx.events = append(tx.events, event)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for key, listing := range tx.listings {
		if listing == nil {
			tx.store.listings.Delete(key)
			continue
		}
		tx.store.listings.Set(key, *listing, cache.NoExpiration)
	}

	for owner, balance := range tx.proceeds {
		tx.store.proceeds.Set(owner, entity.Proceeds{Owner: owner, Balance: balance}, cache.NoExpiration)
	}

	for _, e := range tx.events {
		e.Sequence = uint64(len(tx.store.events)) + 1
		tx.store.events = append(tx.store.events, *e)
	}

	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.closed {
		return nil
	}
	tx.closed = true

	return nil
}
