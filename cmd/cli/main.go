package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/config/di"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/nft-marketplace/pkg/zil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const reindexPageSize = 500

var (
	container *di.Container
	ledger    marketplace.Ledger
)

func main() {
	config.Init("cli")

	var err error
	if container, err = di.NewContainer(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer container.Delete()
	ledger = container.GetLedger()

	app := &cli.App{
		Name:  "marketplace-cli",
		Usage: "inspect the marketplace ledger and maintain its search indices",
		Commands: []*cli.Command{
			{
				Name:      "listing",
				Usage:     "Show the listing of an asset",
				ArgsUsage: "<collection> <assetId>",
				Action:    showListing,
			},
			{
				Name:      "proceeds",
				Usage:     "Show the withdrawable proceeds of an account",
				ArgsUsage: "<owner>",
				Action:    showProceeds,
			},
			{
				Name:   "events",
				Usage:  "Print the event log",
				Action: showEvents,
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "from", Value: 0, Usage: "first sequence number"},
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "maximum number of events, 0 for all"},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Replay the event log into elastic search",
				Action: reindex,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "purge", Value: false, Usage: "drop and recreate the indices first"},
				},
			},
			{
				Name:   "mappings",
				Usage:  "Install the elastic search index mappings",
				Action: installMappings,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reindex", Value: false, Usage: "drop existing indices"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to run CLI")
	}
}

func showListing(c *cli.Context) error {
	collection, err := zil.NormalizeAddress(c.Args().Get(0))
	if err != nil {
		return fmt.Errorf("collection: %w", err)
	}
	assetId, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("assetId: %w", err)
	}

	listing, err := ledger.GetListing(c.Context, collection, assetId)
	if err != nil {
		return err
	}

	if !listing.IsListed() {
		fmt.Printf("%s/%d is not listed\n", collection, assetId)
		return nil
	}
	fmt.Printf("%s/%d listed by %s for %s ZIL (%s Qa)\n",
		collection, assetId, listing.Seller, zil.FormatZil(listing.Price), listing.Price.String())

	return nil
}

func showProceeds(c *cli.Context) error {
	owner, err := zil.NormalizeAddress(c.Args().First())
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	balance, err := ledger.GetProceeds(c.Context, owner)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s): %s ZIL (%s Qa)\n", owner, zil.ToBech32(owner), zil.FormatZil(balance), balance.String())

	return nil
}

func showEvents(c *cli.Context) error {
	events, err := ledger.Events(c.Context, c.Uint64("from"), c.Int("limit"))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := encoder.Encode(e); err != nil {
			return err
		}
	}

	return nil
}

func reindex(c *cli.Context) error {
	elastic, err := container.GetElastic()
	if err != nil {
		return err
	}

	if c.Bool("purge") {
		if err := elastic.InstallMappings(c.Context, config.Get().ElasticSearch.MappingDir, true); err != nil {
			return err
		}
	}

	total, err := replayEvents(c.Context, elastic)
	if err != nil {
		return err
	}
	zap.S().Infof("Reindexed %d events", total)

	return nil
}

func replayEvents(ctx context.Context, elastic elastic_search.Index) (int, error) {
	total := 0
	from := uint64(0)
	for {
		events, err := ledger.Events(ctx, from, reindexPageSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			break
		}

		for _, e := range events {
			elastic.AddEvent(e)
		}
		total += len(events)
		from = events[len(events)-1].Sequence + 1

		elastic.BatchPersist(ctx)
	}

	if _, err := elastic.Persist(ctx); err != nil {
		return total, err
	}

	return total, nil
}

func installMappings(c *cli.Context) error {
	elastic, err := container.GetElastic()
	if err != nil {
		return err
	}

	if err := elastic.InstallMappings(c.Context, config.Get().ElasticSearch.MappingDir, c.Bool("reindex")); err != nil {
		return err
	}
	zap.L().Info("Mappings installed")

	return nil
}
