package event

import "github.com/ZilDuck/nft-marketplace/internal/entity"

type Type string

const (
	ItemListedEvent        = Type(entity.ItemListed)
	ItemCanceledEvent      = Type(entity.ItemCanceled)
	ItemBoughtEvent        = Type(entity.ItemBought)
	ProceedsWithdrawnEvent = Type(entity.ProceedsWithdrawn)

	// AnyEvent listeners receive every event, in emission order.
	AnyEvent Type = "*"
)

func AllTypes() []Type {
	return []Type{ItemListedEvent, ItemCanceledEvent, ItemBoughtEvent, ProceedsWithdrawnEvent}
}
