package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rolodex-app/rolodex/internal/addresses"
	"github.com/rolodex-app/rolodex/internal/app"
	"github.com/rolodex-app/rolodex/internal/auth"
	"github.com/rolodex-app/rolodex/internal/cache"
	"github.com/rolodex-app/rolodex/internal/observability"
	"github.com/rolodex-app/rolodex/internal/platform/db"
	"github.com/rolodex-app/rolodex/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	stats := metrics.CacheStats()

	ttl := cfg.CacheTTL()
	userCache := cache.New[users.User]("users", ttl, stats)
	userListCache := cache.New[[]users.User]("user_lists", ttl, stats)
	addressCache := cache.New[addresses.Address]("addresses", ttl, stats)
	addressListCache := cache.New[[]addresses.Address]("address_lists", ttl, stats)
	invalidator := cache.NewInvalidator()

	hasher := auth.NewHasher(cfg.BcryptCost, cfg.HashWorkers)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL())
	verifier := auth.NewGoogleVerifier(cfg.GoogleTokeninfoURL, cfg.GoogleClientID, cfg.IDPTimeout())

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, hasher, tokens, verifier)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.NewMiddleware(logger, tokens)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, hasher, userCache, userListCache, invalidator)
	usersHandler := users.NewHandler(logger, usersService, ttl)

	addressesRepo := addresses.NewRepository(pool)
	addressesService := addresses.NewService(addressesRepo, addressCache, addressListCache, invalidator)
	addressesHandler := addresses.NewHandler(logger, addressesService, ttl)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		Metrics:          metrics,
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
		UsersHandler:     usersHandler,
		AddressesHandler: addressesHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  cfg.IdleTimeout(),
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
