package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/config"
	"github.com/ZilDuck/nft-marketplace/internal/config/di"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.Init("marketplaced")

	container, err := di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer func() {
		if err := container.Delete(); err != nil {
			zap.L().With(zap.Error(err)).Error("Failed to close services")
		}
	}()

	if config.Get().ElasticSearch.Enabled {
		elastic, err := container.GetElastic()
		if err != nil {
			zap.L().With(zap.Error(err)).Fatal("Failed to start ES")
		}
		elastic.Listen(container.GetEventManager())
	}

	if config.Get().Sqs.Enabled {
		messageService, err := container.GetMessenger()
		if err != nil {
			zap.L().With(zap.Error(err)).Fatal("Failed to start SQS messenger")
		}
		messageService.Listen(container.GetEventManager())
	}

	server := &http.Server{
		Addr:              ":" + config.Get().HttpPort,
		Handler:           container.GetApi().Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		zap.L().With(zap.String("port", config.Get().HttpPort)).Info("Marketplace Started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().With(zap.Error(err)).Error("Failed to start marketplace")
			stop()
		}
	}()

	<-ctx.Done()
	zap.L().Info("Marketplace shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().With(zap.Error(err)).Error("Failed to shut down cleanly")
	}
}
