package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vehicleauction/internal/config"
	"vehicleauction/internal/database/db_client"
	"vehicleauction/internal/database/migrations"
	"vehicleauction/internal/events"
	"vehicleauction/internal/http/http_server"
	"vehicleauction/internal/notifier"
	"vehicleauction/internal/redis/redis_client"
	"vehicleauction/internal/redis/watcher/auctionwatcher"
	"vehicleauction/internal/scheduler"
	"vehicleauction/internal/services/auction"
	"vehicleauction/internal/syncviews"
	"vehicleauction/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var auctionService auction.IAuctionService

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client + schema
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	if err := migrations.Up(pgDb); err != nil {
		Log.Fatal("pg-migrate", zap.Error(err))
	}

	// 5. Core services
	publisher := events.NewPublisher(redisClient)
	auctionService = auction.NewAuctionService(pgDb, redisClient, publisher)

	// 6. Background: end-timer expiry watcher ➜ targeted close
	go auctionwatcher.Run(ctx, redisClient, auctionService)

	// 7. Background: minute status sweep, 10 s view-counter flush,
	//    notification stream consumer
	scheduler.Run(ctx, auctionService, cfg.SweepInterval)
	syncviews.Run(ctx, redisClient, pgDb)
	notifier.Run(ctx, redisClient)

	// 8. WebSockets hub + per-auction fan-out
	hub := ws.NewHub()
	wsSrv := ws.NewWsServer(hub, redisClient, auctionService)

	// 9. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, auctionService)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
