package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/config/di"
	"github.com/ZilDuck/nft-marketplace/internal/elastic_search"
	"github.com/ZilDuck/nft-marketplace/internal/messenger"
	"github.com/aws/aws-sdk-go/service/sqs"
	"go.uber.org/zap"
)

var (
	messageService messenger.MessageService
	elastic        elastic_search.Index
)

func main() {
	config.Init("queueSubscriber")

	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer container.Delete()

	if messageService, err = container.GetMessenger(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to start SQS messenger")
	}
	if elastic, err = container.GetElastic(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to start ES")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollMarketplaceEvents(ctx)
}

func pollMarketplaceEvents(ctx context.Context) {
	zap.L().Info("Subscribing to marketplace events")
	messages := make(chan *sqs.Message, 10)
	go messageService.PollMessages(ctx, messenger.MarketplaceEvents, messages)

	for message := range messages {
		e, err := messenger.DecodeEvent(message)
		if err != nil {
			zap.L().With(zap.Error(err)).Error("Failed to read message")
			continue
		}
		zap.L().With(zap.Uint64("sequence", e.Sequence), zap.String("type", string(e.Type))).Info("Marketplace event")

		elastic.AddEvent(e)
		if _, err := elastic.Persist(ctx); err != nil {
			// leave the message on the queue so it is redelivered
			zap.L().With(zap.Uint64("sequence", e.Sequence), zap.Error(err)).Error("Failed to index event")
			elastic.ClearRequests()
			continue
		}

		if err := messageService.DeleteMessage(ctx, messenger.MarketplaceEvents, message); err != nil {
			zap.L().With(zap.Error(err)).Error("Failed to delete message")
		}
	}
}
