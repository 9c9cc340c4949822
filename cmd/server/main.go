package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/kbamnote/elite-cards-backend/internal/config"
	"github.com/kbamnote/elite-cards-backend/internal/db"
	internalhttp "github.com/kbamnote/elite-cards-backend/internal/http"
	"github.com/kbamnote/elite-cards-backend/internal/logger"
	"github.com/kbamnote/elite-cards-backend/internal/repository/postgres"
	"github.com/kbamnote/elite-cards-backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(0).Fatal("config load failed", "error", err)
	}

	log := logger.New(cfg.LogLevel)

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("db connection failed", "error", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	minioClient, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		log.Fatal("object storage client failed", "error", err)
	}
	media, err := storage.NewClient(ctx, minioClient, cfg.Storage.Bucket, storage.NopPreprocessor{})
	if err != nil {
		log.Fatal("object storage bucket check failed", "error", err)
	}

	// The cache is optional; a missing or unreachable redis only costs
	// the cached public-card reads.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, card cache disabled", "error", err)
			redisClient = nil
		}
	}

	server := internalhttp.NewServer(cfg, store, media, redisClient, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("elite-cards listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
