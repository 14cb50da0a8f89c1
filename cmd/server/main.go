package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entitlement-api/internal/api"
	"entitlement-api/internal/config"
	"entitlement-api/internal/database"
	"entitlement-api/internal/services"
	"entitlement-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// orderingEntryTTL bounds how long the ordering guard remembers a transaction.
const orderingEntryTTL = 30 * 24 * time.Hour

func main() {
	if err := run(); err != nil {
		logging.Errorf("Server exited: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}

	// Initialize logging
	logging.InitLogging(cfg.LogFormat, cfg.LogLevel)

	// Initialize database
	store, err := database.Open(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	roots, err := services.LoadRootCertificates(cfg.AppleRootCertPaths)
	if err != nil {
		return fmt.Errorf("load Apple root certificates: %w", err)
	}
	if cfg.AppBundleID == "" {
		logging.Warnf("APP_BUNDLE_ID is empty, payloads from any bundle will be accepted")
	}
	verifier := services.NewSignatureVerifier(roots,
		services.WithBundleID(cfg.AppBundleID),
		services.WithEnvironment(cfg.AppleEnvironment),
	)

	catalog := services.NewProductCatalog(cfg.SubscriptionProductIDs...)
	if catalog.Len() == 0 {
		logging.Warnf("SUBSCRIPTION_PRODUCT_IDS is empty, no transaction will be considered active")
	}

	guard, stopGuard, err := newOrderingGuard(cfg)
	if err != nil {
		return fmt.Errorf("initialize ordering guard: %w", err)
	}
	defer stopGuard()

	handler := api.NewHandler(api.Config{
		Validator: services.NewReceiptValidator(verifier, store, catalog, time.Now),
		Processor: services.NewNotificationProcessor(verifier, store, guard),
		Resolver:  services.NewPremiumResolver(store),
		History:   store,
		Database:  store,
		Release:   cfg.IsRelease(),
	})

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	serveErr := make(chan error, 1)
	go func() {
		logging.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("start server: %w", err)
	case <-quit:
	}
	logging.Infof("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Infof("Server stopped")
	return nil
}

// newOrderingGuard builds the configured notification ordering strategy.
func newOrderingGuard(cfg *config.Config) (services.OrderingGuard, func(), error) {
	switch cfg.OrderingStrategy {
	case config.OrderingMemory:
		guard := services.NewMemoryOrderingGuard(orderingEntryTTL)
		return guard, guard.Stop, nil
	case config.OrderingRedis:
		client, err := database.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return services.NewRedisOrderingGuard(client, orderingEntryTTL), func() { _ = client.Close() }, nil
	default:
		logging.Infof("Applying notifications in arrival order (last-write-wins)")
		return services.LastWriteWins{}, func() {}, nil
	}
}
