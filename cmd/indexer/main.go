package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/canopy-network/balancex/app/indexer"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	defer cancel()

	app := indexer.Initialize(ctx)

	if err := app.Start(ctx); err != nil {
		cancel()
		app.Logger.Fatal("Indexer stopped on a failed block", zap.Error(err))
	}
}
