package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolPrint/internal/api"
	"schoolPrint/internal/auth"
	"schoolPrint/internal/config"
	"schoolPrint/internal/database"
	"schoolPrint/internal/metrics"
	"schoolPrint/internal/records"
	"schoolPrint/internal/render"
	"schoolPrint/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// 限流在 Redis 不可用时放行，这里只告警。
		logger.Warn("ping redis failed", slog.String("addr", cfg.Redis.Addr()), slog.Any("error", err))
	}

	publicKey, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	authService, err := auth.NewAuthService(nil, publicKey, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	resolver, err := render.NewResolver(storageClient, render.ResolverOptions{
		BaseURL:      cfg.Render.AssetBaseURL,
		AllowedHosts: cfg.Render.AllowedAssetHosts,
		Timeout:      cfg.Render.FetchTimeout,
		MaxBytes:     cfg.Render.MaxAssetBytes,
	})
	if err != nil {
		log.Fatalf("init asset resolver: %v", err)
	}
	engine := render.NewEngine(resolver, logger, render.Options{
		PrefetchWorkers:     cfg.Render.PrefetchWorkers,
		PrefetchWindow:      cfg.Render.PrefetchWindow,
		CacheTemplateAssets: cfg.Render.CacheTemplateAssets,
		Observer:            metrics.RenderObserver{},
	})

	store := records.NewStore(db, logger)

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, store, engine, authService, redisClient, storageClient, cfg.Render, cfg.Scanner.ClamdAddr, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
