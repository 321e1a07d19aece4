package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gossipd/internal/config"
	"gossipd/internal/gossip"
	"gossipd/internal/logging"
	"gossipd/internal/node"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "gossipd: %v\n", err)
		return 2
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gossipd: %v\n", err)
		return 2
	}
	defer logger.Sync()

	n, err := node.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create node", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = n.Start(ctx)
	n.Stop()

	switch {
	case errors.Is(err, gossip.ErrJoinFailed):
		return 1
	case err != nil:
		logger.Error("node stopped", zap.Error(err))
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
