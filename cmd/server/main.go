package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/styl6559/storefront/internal/cart"
	"github.com/styl6559/storefront/internal/cart/cache"
	"github.com/styl6559/storefront/internal/cart/store"
	"github.com/styl6559/storefront/internal/catalog"
	"github.com/styl6559/storefront/internal/checkout"
	"github.com/styl6559/storefront/internal/client/orders"
	"github.com/styl6559/storefront/internal/client/postal"
	"github.com/styl6559/storefront/internal/config"
	"github.com/styl6559/storefront/internal/httpapi"
	"github.com/styl6559/storefront/internal/payment"
	"github.com/styl6559/storefront/internal/publisher"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := config.Load()
	ctx := context.Background()

	// Mongo holds the persisted cart and wishlist collections
	mongoDB, err := store.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName, store.ConnectOptions{
		MaxPoolSize: cfg.MongoMaxPoolSize,
		MinPoolSize: cfg.MongoMinPoolSize,
	})
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongoDB.Client().Disconnect(ctx)

	mongoStore := store.NewMongoStore(mongoDB)
	if err := mongoStore.CreateIndexes(ctx); err != nil {
		logger.Fatal("failed to create mongodb indexes", zap.Error(err))
	}
	logger.Info("connected to mongodb", zap.String("uri", cfg.MongoURI))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	logger.Info("redis ping succeeded")

	// Catalog: sqlite-backed, refreshed into memory on an interval
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		logger.Fatal("failed to open catalog database", zap.Error(err))
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		logger.Fatal("failed to run catalog migrations", zap.Error(err))
	}

	provider := catalog.NewProvider(catalogRepo, logger, cfg.CatalogRefreshInterval)
	if err := provider.Refresh(ctx); err != nil {
		logger.Fatal("initial catalog load failed", zap.Error(err))
	}
	provider.Start()
	defer provider.Stop()

	// Checkout sessions live in postgres
	creds := &checkout.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDBName,
		MigrationsDirPath: cfg.CheckoutMigrationsPath,
	}
	checkoutRepo, err := checkout.NewRepository(creds)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer checkoutRepo.Close()
	if err := checkoutRepo.RunMigrations(creds); err != nil {
		logger.Fatal("failed to run checkout migrations", zap.Error(err))
	}
	logger.Info("connected to postgres", zap.String("host", cfg.PostgresHost))

	postalClient := postal.NewClient(cfg.PostalBaseURL, logger)
	ordersClient := orders.NewClient(cfg.OrdersBaseURL, logger)

	notifier := cart.NewLogNotifier(logger)
	manager := cart.NewManager(mongoStore, cache.NewRedisCache(redisClient), provider, notifier, logger)

	checkoutService := checkout.NewService(
		checkoutRepo,
		checkout.ManagerCarts{Manager: manager},
		ordersClient,
		payment.NewHMACVerifier(cfg.PaymentGatewaySecret),
		notifier,
		logger,
	)

	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	poller := publisher.NewOutboxPoller(checkoutRepo, logger, cfg.KafkaBrokers...)
	go poller.Run(pollerCtx)

	router := httpapi.NewRouter(manager, provider, checkoutService, postalClient, requestTimeout)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("storefront server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
