package di

import (
	"errors"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/api"
	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/event"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/internal/messenger"
	"github.com/ZilDuck/nft-marketplace/internal/payout"
	"github.com/ZilDuck/nft-marketplace/internal/registry"
	"github.com/ZilDuck/nft-marketplace/internal/repository"
	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sarulabs/di/v2"
	"go.uber.org/zap"
)

var ErrMarketplaceAddress = errors.New("MARKETPLACE_ADDRESS is required with a remote registry")

var Definitions = []di.Def{
	{
		Name: "store",
		Build: func(ctn di.Container) (interface{}, error) {
			return repository.NewStore(config.Get().Store.Driver, config.Get().Store.Path)
		},
		Close: func(obj interface{}) error {
			return obj.(repository.Store).Close()
		},
	},
	{
		Name: "marketplace.address",
		Build: func(ctn di.Container) (interface{}, error) {
			address := config.Get().MarketplaceAddress
			if address == "" {
				if config.Get().Registry.Url != "" {
					return nil, ErrMarketplaceAddress
				}
				return registry.DevMarketplaceAddress, nil
			}

			return zil.NormalizeAddress(address)
		},
	},
	{
		Name: "registry",
		Build: func(ctn di.Container) (interface{}, error) {
			marketplaceAddr := ctn.Get("marketplace.address").(string)

			if config.Get().Registry.Url == "" {
				zap.L().With(zap.String("marketplace", marketplaceAddr)).Warn("Registry: Using in-memory registry")
				return registry.NewMemory(marketplaceAddr), nil
			}

			client, err := registry.NewClient(config.Get().Registry.Url, config.Get().Registry.Timeout, config.Get().Registry.Debug)
			if err != nil {
				return nil, err
			}

			return registry.NewRpc(client, marketplaceAddr), nil
		},
	},
	{
		Name: "payout",
		Build: func(ctn di.Container) (interface{}, error) {
			if config.Get().Payout.Url == "" {
				zap.L().Warn("Payout: Using in-memory bank")
				return payout.NewBank(), nil
			}

			client := retryablehttp.NewClient()
			client.Logger = nil
			client.RetryMax = 3
			client.CheckRetry = payout.CheckRetry
			client.HTTPClient.Timeout = 30 * time.Second

			return payout.NewHttp(config.Get().Payout.Url, config.Get().Payout.AccessKey, client), nil
		},
	},
	{
		Name: "event.manager",
		Build: func(ctn di.Container) (interface{}, error) {
			return event.NewManager(), nil
		},
		Close: func(obj interface{}) error {
			obj.(*event.Manager).Close()
			return nil
		},
	},
	{
		Name: "metrics.registry",
		Build: func(ctn di.Container) (interface{}, error) {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return reg, nil
		},
	},
	{
		Name: "metrics",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewMetrics(ctn.Get("metrics.registry").(*prometheus.Registry))
		},
	},
	{
		Name: "ledger",
		Build: func(ctn di.Container) (interface{}, error) {
			policy, err := marketplace.ParseOverpaymentPolicy(config.Get().OverpaymentPolicy)
			if err != nil {
				return nil, err
			}

			return marketplace.NewLedger(
				ctn.Get("store").(repository.Store),
				ctn.Get("registry").(registry.AssetRegistry),
				ctn.Get("payout").(payout.FundsReleaser),
				ctn.Get("event.manager").(*event.Manager),
				ctn.Get("metrics").(*marketplace.Metrics),
				policy,
			), nil
		},
	},
	{
		Name: "api",
		Build: func(ctn di.Container) (interface{}, error) {
			dev, _ := ctn.Get("registry").(*registry.Memory)

			return api.NewServer(
				ctn.Get("ledger").(marketplace.Ledger),
				config.Get().ApiKeys,
				ctn.Get("metrics.registry").(*prometheus.Registry),
				dev,
			), nil
		},
	},
	{
		Name: "elastic",
		Build: func(ctn di.Container) (interface{}, error) {
			return elastic_search.New()
		},
	},
	{
		Name: "messenger",
		Build: func(ctn di.Container) (interface{}, error) {
			client, err := messenger.NewSqsClient(config.Get().Aws)
			if err != nil {
				return nil, err
			}

			return messenger.NewMessenger(client, map[messenger.Item]string{
				messenger.MarketplaceEvents: config.Get().Sqs.QueueUrl,
			}), nil
		},
	},
}
