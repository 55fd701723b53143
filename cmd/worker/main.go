package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pricecheck-service/internal/bootstrap"
	"pricecheck-service/internal/config"
	"pricecheck-service/internal/infrastructure/logx"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func init() { _ = godotenv.Load() }

func main() {
	if l, err := logx.New(config.Load().LogLevel); err == nil {
		logx.Set(l)
	}
	log := logx.L()
	defer func() { _ = log.Sync() }()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, cleanup, err := bootstrap.InitWorker(ctx)
	if err != nil {
		log.Fatal("init worker", zap.Error(err))
	}
	defer cleanup()
	w.Start(ctx)
}
