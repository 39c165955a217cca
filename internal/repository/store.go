package repository

import (
	"context"
	"errors"
	"math/big"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrTxClosed        = errors.New("transaction already committed or rolled back")
	ErrUnknownDriver   = errors.New("unknown store driver")
)

// Store owns listings, proceeds and the event log. Writes only happen
// through a Tx so a failed operation leaves no partial state behind.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetListing(ctx context.Context, collection string, assetId uint64) (*entity.Listing, error)
	GetListings(ctx context.Context) ([]entity.Listing, error)
	GetProceeds(ctx context.Context, owner string) (*big.Int, error)
	GetEvents(ctx context.Context, fromSequence uint64, limit int) ([]entity.Event, error)

	Close() error
}

// Tx stages writes until Commit. Reads see the staged writes.
type Tx interface {
	GetListing(collection string, assetId uint64) (*entity.Listing, error)
	SaveListing(listing entity.Listing) error
	DeleteListing(collection string, assetId uint64) error

	GetProceeds(owner string) (*big.Int, error)
	SaveProceeds(owner string, balance *big.Int) error

	// AppendEvent stages an event. Its Sequence is set once the event is
	// durable, at the latest on Commit.
	AppendEvent(event *entity.Event) error

	Commit() error
	Rollback() error
}

func NewStore(driver string, path string) (Store, error) {
	switch driver {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSqliteStore(path)
	}

	return nil, ErrUnknownDriver
}
