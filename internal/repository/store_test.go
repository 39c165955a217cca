package repository

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/stretchr/testify/require"
)

const (
	collection = "0x1111111111111111111111111111111111111111"
	seller     = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buyer      = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func stores(t *testing.T) map[string]Store {
	sqlite, err := NewSqliteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreCommit(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tx, err := store.Begin(ctx)
			require.NoError(t, err)

			listing := entity.Listing{Collection: collection, AssetId: 7, Seller: seller, Price: big.NewInt(100)}
			require.NoError(t, tx.SaveListing(listing))
			require.NoError(t, tx.SaveProceeds(seller, big.NewInt(40)))

			staged, err := tx.GetListing(collection, 7)
			require.NoError(t, err)
			require.Equal(t, "100", staged.Price.String())

			e := &entity.Event{Type: entity.ItemListed, Collection: collection, AssetId: 7, Seller: seller, Price: big.NewInt(100), Time: time.Now()}
			require.NoError(t, tx.AppendEvent(e))
			require.NoError(t, tx.Commit())
			require.NoError(t, tx.Rollback(), "rollback after commit is a no-op")
			require.Equal(t, uint64(1), e.Sequence)

			stored, err := store.GetListing(ctx, collection, 7)
			require.NoError(t, err)
			require.Equal(t, seller, stored.Seller)
			require.Equal(t, "100", stored.Price.String())

			balance, err := store.GetProceeds(ctx, seller)
			require.NoError(t, err)
			require.Equal(t, "40", balance.String())

			events, err := store.GetEvents(ctx, 0, 10)
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, entity.ItemListed, events[0].Type)
			require.Equal(t, "100", events[0].Price.String())
		})
	}
}

func TestStoreRollback(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tx, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.SaveListing(entity.Listing{Collection: collection, AssetId: 1, Seller: seller, Price: big.NewInt(5)}))
			require.NoError(t, tx.SaveProceeds(buyer, big.NewInt(5)))
			require.NoError(t, tx.AppendEvent(&entity.Event{Type: entity.ItemListed, Time: time.Now()}))
			require.NoError(t, tx.Rollback())

			_, err = store.GetListing(ctx, collection, 1)
			require.ErrorIs(t, err, ErrListingNotFound)

			balance, err := store.GetProceeds(ctx, buyer)
			require.NoError(t, err)
			require.Zero(t, balance.Sign())

			events, err := store.GetEvents(ctx, 0, 0)
			require.NoError(t, err)
			require.Empty(t, events)
		})
	}
}

func TestStoreDeleteListing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tx, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.SaveListing(entity.Listing{Collection: collection, AssetId: 2, Seller: seller, Price: big.NewInt(9)}))
			require.NoError(t, tx.SaveListing(entity.Listing{Collection: collection, AssetId: 3, Seller: seller, Price: big.NewInt(9)}))
			require.NoError(t, tx.Commit())

			tx, err = store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.DeleteListing(collection, 2))

			_, err = tx.GetListing(collection, 2)
			require.ErrorIs(t, err, ErrListingNotFound)
			require.NoError(t, tx.Commit())

			listings, err := store.GetListings(ctx)
			require.NoError(t, err)
			require.Len(t, listings, 1)
			require.Equal(t, uint64(3), listings[0].AssetId)
		})
	}
}

func TestStoreEventsPaging(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				tx, err := store.Begin(ctx)
				require.NoError(t, err)
				require.NoError(t, tx.AppendEvent(&entity.Event{Type: entity.ItemCanceled, AssetId: uint64(i), Time: time.Now()}))
				require.NoError(t, tx.Commit())
			}

			events, err := store.GetEvents(ctx, 3, 2)
			require.NoError(t, err)
			require.Len(t, events, 2)
			require.Equal(t, uint64(3), events[0].Sequence)
			require.Equal(t, uint64(4), events[1].Sequence)
			require.Equal(t, uint64(2), events[0].AssetId)
		})
	}
}

func TestNewStoreUnknownDriver(t *testing.T) {
	_, err := NewStore("postgres", "")
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestStoreKeepsIdentitiesApart(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			tx, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, tx.SaveListing(entity.Listing{Collection: "Coll", AssetId: 1, Seller: "Alice", Price: big.NewInt(5)}))
			require.NoError(t, tx.SaveProceeds("Alice", big.NewInt(7)))
			require.NoError(t, tx.SaveProceeds("alice", big.NewInt(3)))

			_, err = tx.GetListing("coll", 1)
			require.ErrorIs(t, err, ErrListingNotFound)
			require.NoError(t, tx.Commit())

			_, err = store.GetListing(ctx, "coll", 1)
			require.ErrorIs(t, err, ErrListingNotFound)

			upper, err := store.GetProceeds(ctx, "Alice")
			require.NoError(t, err)
			require.Equal(t, "7", upper.String())

			lower, err := store.GetProceeds(ctx, "alice")
			require.NoError(t, err)
			require.Equal(t, "3", lower.String())
		})
	}
}
