package elastic_search

import (
	"fmt"

	"github.com/ZilDuck/nft-marketplace/internal/config"
)

type Indices string

var (
	EventIndex   Indices = "event"
	ListingIndex Indices = "listing"
)

// Get returns the full index name, prefixed with the network and index name.
func (i Indices) Get() string {
	return fmt.Sprintf("%s.%s.%s", config.Get().Network, config.Get().Index, string(i))
}
