package elastic_search

import (
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/pkg/zil"
)

// Amounts are indexed as Qa strings (keyword) and as ZIL (scaled_float) so
// they survive values larger than a long.

type EventDocument struct {
	Sequence   uint64    `json:"sequence"`
	Type       string    `json:"type"`
	Collection string    `json:"collection,omitempty"`
	AssetId    uint64    `json:"assetId"`
	Seller     string    `json:"seller,omitempty"`
	Buyer      string    `json:"buyer,omitempty"`
	PriceQa    string    `json:"priceQa,omitempty"`
	Price      string    `json:"price,omitempty"`
	Time       time.Time `json:"time"`
}

func NewEventDocument(e entity.Event) EventDocument {
	doc := EventDocument{
		Sequence:   e.Sequence,
		Type:       string(e.Type),
		Collection: e.Collection,
		AssetId:    e.AssetId,
		Seller:     e.Seller,
		Buyer:      e.Buyer,
		Time:       e.Time,
	}
	if e.Price != nil {
		doc.PriceQa = e.Price.String()
		doc.Price = zil.FormatZil(e.Price)
	}

	return doc
}

func (d EventDocument) Slug() string {
	return entity.CreateEventSlug(d.Sequence, d.Type)
}

type ListingDocument struct {
	Collection string    `json:"collection"`
	AssetId    uint64    `json:"assetId"`
	Seller     string    `json:"seller"`
	PriceQa    string    `json:"priceQa"`
	Price      string    `json:"price"`
	ListedAt   time.Time `json:"listedAt"`
	Sequence   uint64    `json:"sequence"`
}

func NewListingDocument(e entity.Event) ListingDocument {
	listing := e.Listing()
	doc := ListingDocument{
		Collection: listing.Collection,
		AssetId:    listing.AssetId,
		Seller:     listing.Seller,
		ListedAt:   e.Time,
		Sequence:   e.Sequence,
	}
	if listing.Price != nil {
		doc.PriceQa = listing.Price.String()
		doc.Price = zil.FormatZil(listing.Price)
	}

	return doc
}

func (d ListingDocument) Slug() string {
	return entity.CreateListingSlug(d.Collection, d.AssetId)
}
