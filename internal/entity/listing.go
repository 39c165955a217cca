package entity

import (
	"fmt"
	"math/big"

	"github.com/gosimple/slug"
)

// Listing is an active fixed-price offer for one asset. A nil or zero Price
// means the asset is not listed.
type Listing struct {
	Collection string   `json:"collection"`
	AssetId    uint64   `json:"assetId"`
	Seller     string   `json:"seller"`
	Price      *big.Int `json:"price"`
}

func (l Listing) Slug() string {
	return CreateListingSlug(l.Collection, l.AssetId)
}

func (l Listing) IsListed() bool {
	return l.Price != nil && l.Price.Sign() > 0
}

func (l Listing) Copy() Listing {
	c := l
	if l.Price != nil {
		c.Price = new(big.Int).Set(l.Price)
	}
	return c
}

func EmptyListing(collection string, assetId uint64) Listing {
	return Listing{Collection: collection, AssetId: assetId, Price: new(big.Int)}
}

func CreateListingSlug(collection string, assetId uint64) string {
	return slug.Make(fmt.Sprintf("listing-%d-%s", assetId, collection))
}
