package registry

import (
	"context"
	"errors"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExists   = errors.New("token already minted")
	ErrNotTokenOwner = errors.New("not token owner")
	ErrNotApproved   = errors.New("marketplace not approved for token")
)

// AssetRegistry is the system of record for asset ownership and transfer
// approval, usually an NFT contract.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, collection string, assetId uint64) (string, error)
	IsApprovedForMarketplace(ctx context.Context, collection string, assetId uint64) (bool, error)
	Transfer(ctx context.Context, collection string, assetId uint64, from, to string) error
}
