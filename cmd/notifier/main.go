package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/safar/go-shop/internal/config"
	"github.com/safar/go-shop/internal/email"
	"github.com/safar/go-shop/internal/kv"
	"github.com/safar/go-shop/internal/logging"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/safar/go-shop/internal/notify"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	cfg.Log.Service = "shop-notifier"

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	rdb, err := kv.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New("shop")
	handler := notify.NewEmailHandler(rdb, email.NewService(cfg.SMTP), logger, m)
	consumer := notify.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, handler, logger, m)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notifier starting",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID))

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", zap.Error(err))
		return
	}
	logger.Info("notifier exited")
}
