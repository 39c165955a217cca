package di

import (
	"github.com/ZilDuck/nft-marketplace/internal/api"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/messenger"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	"github.com/sarulabs/di/v2"
)

// Container exposes typed getters over the app scope. Getters panic when a
// definition fails to build; use SafeGet for optional services.
type Container struct {
	ctn di.Container
}

func NewContainer() (*Container, error) {
	builder, err := di.NewBuilder()
	if err != nil {
		return nil, err
	}

	if err := builder.Add(Definitions...); err != nil {
		return nil, err
	}

	return &Container{builder.Build()}, nil
}

func (c *Container) SafeGet(name string) (interface{}, error) {
	return c.ctn.SafeGet(name)
}

func (c *Container) GetStore() repository.Store {
	return c.ctn.Get("store").(repository.Store)
}

func (c *Container) GetEventManager() *event.Manager {
	return c.ctn.Get("event.manager").(*event.Manager)
}

func (c *Container) GetLedger() marketplace.Ledger {
	return c.ctn.Get("ledger").(marketplace.Ledger)
}

func (c *Container) GetApi() api.Server {
	return c.ctn.Get("api").(api.Server)
}

func (c *Container) GetElastic() (elastic_search.Index, error) {
	obj, err := c.ctn.SafeGet("elastic")
	if err != nil {
		return nil, err
	}
	return obj.(elastic_search.Index), nil
}

func (c *Container) GetMessenger() (messenger.MessageService, error) {
	obj, err := c.ctn.SafeGet("messenger")
	if err != nil {
		return nil, err
	}
	return obj.(messenger.MessageService), nil
}

// Delete closes every built service.
func (c *Container) Delete() error {
	return c.ctn.Delete()
}
