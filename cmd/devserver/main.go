package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaarchat/config"
	"bazaarchat/internal/devserver"
	"bazaarchat/internal/events"
	"bazaarchat/internal/redis"
	"bazaarchat/internal/repository"
	"bazaarchat/internal/services"
	"bazaarchat/internal/storage"
	"bazaarchat/pkg/database"
	"bazaarchat/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	appLog := logger.New(cfg.AppMode)
	defer appLog.Logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	bus := events.NewRedisBus(redisClient)
	unread := redis.NewUnreadCache(redisClient, redis.DefaultUnreadCacheConfig())

	var blobs storage.BlobStore
	if cfg.S3Bucket != "" {
		client, err := storage.NewClient(context.Background(), storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PutTimeout: 30 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to initialize blob storage: %v", err)
		}
		blobs = client
	} else {
		appLog.Logger.Warn("S3_BUCKET not set, attachment uploads disabled")
	}

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	directory := services.NewDirectoryService(convRepo, appLog)
	store := services.NewStoreService(msgRepo, convRepo, bus, blobs, unread, appLog)

	hub := devserver.NewHub(bus, appLog)
	go hub.Run()

	server := devserver.NewServer(directory, store, hub, cfg.JWTSecret, appLog)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.DevServerPort),
		Handler: server.Router(cfg.AppMode),
	}

	go func() {
		appLog.Logger.Info("devserver listening", zap.String("port", cfg.DevServerPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		appLog.Logger.Error("shutdown error", zap.Error(err))
	}
	hub.Stop()
}
