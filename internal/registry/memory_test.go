package registry

import (
	"context"
	"testing"

	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"github.com/stretchr/testify/require"
)

const (
	marketplace = "0x9999999999999999999999999999999999999999"
	collection  = "0x1111111111111111111111111111111111111111"
	alice       = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob         = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestMemoryMintAndApprove(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(marketplace)

	require.NoError(t, r.Mint(collection, 0, alice))
	require.ErrorIs(t, r.Mint(collection, 0, bob), ErrTokenExists)

	owner, err := r.OwnerOf(ctx, collection, 0)
	require.NoError(t, err)
	require.Equal(t, alice, owner)

	approved, err := r.IsApprovedForMarketplace(ctx, collection, 0)
	require.NoError(t, err)
	require.False(t, approved)

	require.ErrorIs(t, r.Approve(bob, collection, 0, marketplace), ErrNotTokenOwner)
	require.NoError(t, r.Approve(alice, collection, 0, marketplace))

	approved, err = r.IsApprovedForMarketplace(ctx, collection, 0)
	require.NoError(t, err)
	require.True(t, approved)

	require.NoError(t, r.Approve(alice, collection, 0, zil.ZeroAddress))
	approved, err = r.IsApprovedForMarketplace(ctx, collection, 0)
	require.NoError(t, err)
	require.False(t, approved)

	_, err = r.OwnerOf(ctx, collection, 1)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryTransfer(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(marketplace)
	require.NoError(t, r.Mint(collection, 0, alice))

	require.ErrorIs(t, r.Transfer(ctx, collection, 0, alice, bob), ErrNotApproved)

	require.NoError(t, r.Approve(alice, collection, 0, marketplace))
	require.ErrorIs(t, r.Transfer(ctx, collection, 0, bob, alice), ErrNotTokenOwner)
	require.NoError(t, r.Transfer(ctx, collection, 0, alice, bob))

	owner, err := r.OwnerOf(ctx, collection, 0)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	approved, err := r.IsApprovedForMarketplace(ctx, collection, 0)
	require.NoError(t, err)
	require.False(t, approved, "transfer clears the approval")
}
