package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"journaltransporter/internal/app"
	"journaltransporter/internal/logger"
	"journaltransporter/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "config file (default ./transporter.toml)")
	flag.Parse()

	cfg, err := utils.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	a, err := app.New(cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx, app.Servers{GRPC: true}); err != nil {
		zl.Error("grpc server stopped", zap.Error(err))
	}
}
