package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BullionBear/orderbook-aggregator/internal/aggregator"
	"github.com/BullionBear/orderbook-aggregator/pkg/logger"
)

func main() {
	logger.InitLogger(os.Getenv("ENV") != "production")
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := aggregator.ConfigFromEnv()
	if err := aggregator.Run(ctx, cfg, *log); err != nil {
		log.Fatal().Err(err).Msg("orderbookd exited")
	}
}
