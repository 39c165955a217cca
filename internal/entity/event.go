package entity

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"time"
)

type EventType string

const (
	ItemListed        EventType = "ItemListed"
	ItemCanceled      EventType = "ItemCanceled"
	ItemBought        EventType = "ItemBought"
	ProceedsWithdrawn EventType = "ProceedsWithdrawn"
)

// Event is an entry of the append-only marketplace log. It carries enough
// data to rebuild listing history without reading ledger state.
type Event struct {
	Sequence   uint64    `json:"sequence"`
	Type       EventType `json:"type"`
	Collection string    `json:"collection,omitempty"`
	AssetId    uint64    `json:"assetId"`
	Seller     string    `json:"seller,omitempty"`
	Buyer      string    `json:"buyer,omitempty"`
	Price      *big.Int  `json:"price,omitempty"`
	Time       time.Time `json:"time"`
}

func (e Event) Slug() string {
	return CreateEventSlug(e.Sequence, string(e.Type))
}

// Listing returns the listing an ItemListed event describes.
func (e Event) Listing() Listing {
	return Listing{Collection: e.Collection, AssetId: e.AssetId, Seller: e.Seller, Price: e.Price}
}

func CreateEventSlug(sequence uint64, eventType string) string {
	data := []byte(fmt.Sprintf("event-%d-%s", sequence, eventType))
	return fmt.Sprintf("%x", md5.Sum(data))
}
