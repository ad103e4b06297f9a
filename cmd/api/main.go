package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/go-shop/internal/account"
	"github.com/safar/go-shop/internal/api"
	"github.com/safar/go-shop/internal/auth"
	"github.com/safar/go-shop/internal/cache"
	"github.com/safar/go-shop/internal/cart"
	"github.com/safar/go-shop/internal/catalog"
	"github.com/safar/go-shop/internal/config"
	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/kv"
	"github.com/safar/go-shop/internal/logging"
	"github.com/safar/go-shop/internal/metrics"
	"github.com/safar/go-shop/internal/notify"
	"github.com/safar/go-shop/internal/order"
	"github.com/safar/go-shop/internal/payment"
	"github.com/safar/go-shop/internal/ratelimit"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	if os.Getenv("RUN_MIGRATIONS") == "true" {
		if err := database.RunMigrations(db, cfg.Database.MigrationsPath, database.MigrateUp); err != nil {
			logger.Fatal("run migrations", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	rdb, err := kv.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New("shop")

	publisher := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer publisher.Close()
	dispatcher := notify.NewDispatcher(publisher, 1024, logger, m)

	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	catalogCache := cache.NewCatalog(rdb, cfg.Cache.CatalogTTL, logger, m)
	catalogSvc := catalog.NewService(db, catalogCache, cfg.Orders.TxTimeout, logger)
	cartStore := cart.NewStore(rdb, cfg.Cart.TTL, logger)
	cartSvc := cart.NewService(cartStore, catalogSvc, logger)
	orderSvc := order.NewService(db, cartStore, catalogCache, dispatcher, payment.Stub{}, order.Config{
		TxTimeout:         cfg.Orders.TxTimeout,
		LowStockThreshold: cfg.Orders.LowStockThreshold,
		AdminEmail:        cfg.Orders.AdminEmail,
	}, logger, m)

	deps := api.Deps{
		Accounts: account.NewService(db, tokens, dispatcher, logger),
		Catalog:  catalogSvc,
		Carts:    cartSvc,
		Orders:   orderSvc,
		Tokens:   tokens,
		Metrics:  m,
		Logger:   logger,
		Health: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		Timeout: cfg.Server.WriteTimeout,
	}
	if cfg.RateLimit.Enabled {
		deps.Limiter = ratelimit.NewLimiter(rdb, cfg.RateLimit.Window, cfg.RateLimit.Timeout, logger, m)
		deps.Policy = ratelimit.NewPolicy(cfg.RateLimit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cartStore.RunPurger(ctx, cfg.Cart.PurgeInterval, m)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notifications left undelivered", zap.Error(err))
	}
	logger.Info("server exited")
}
