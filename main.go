package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lithammer/shortuuid/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/suraijmuhammed/car-auction-system/api"
	"github.com/suraijmuhammed/car-auction-system/internal/bidding"
	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
	"github.com/suraijmuhammed/car-auction-system/internal/scheduler"
	"github.com/suraijmuhammed/car-auction-system/internal/util"
	"github.com/suraijmuhammed/car-auction-system/internal/worker"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configurations
	config, err := util.LoadConfig("./app.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config file")
	}

	log.Info().Msg("configurations loaded successfully")

	// Create connection pool
	connPool, err := pgxpool.New(context.Background(), config.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to validate db connection string")
	}

	if pingErr := connPool.Ping(context.Background()); pingErr != nil {
		log.Fatal().Err(pingErr).Msg("failed to connect to db")
	}
	log.Info().Msg("connected to db")

	store := db.NewStore(connPool)

	redisDb := redis.NewClient(&redis.Options{
		Addr: config.RedisServerAddress,
	})

	replicaID := shortuuid.New()
	liveState := live.NewState(redisDb, replicaID, config.SessionTTL, config.BidRateLimitCount, config.BidRateWindow)
	log.Info().Str("replica_id", replicaID).Msg("live state created")

	eventBusOpt := asynq.RedisClientOpt{Addr: config.EventBusAddress}
	taskDistributor := worker.NewTaskDistributor(eventBusOpt)

	eventHub := hub.New()

	relayCtx, stopRelay := context.WithCancel(context.Background())
	relay := hub.NewRelay(eventHub, liveState)
	go relay.Run(relayCtx)

	lifecycle, err := scheduler.New(store, taskDistributor, eventHub, liveState, config.SchedulerTick)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create lifecycle scheduler")
	}
	if err := lifecycle.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start lifecycle scheduler")
	}

	bidService := bidding.NewService(store, liveState, liveState, eventHub, taskDistributor, config.MaxBid())

	taskProcessor := worker.NewRedisTaskProcessor(eventBusOpt, store, eventHub, taskDistributor)
	if err := taskProcessor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start task processor")
	}
	log.Info().Msg("task processor started")

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info().Msg("shutting down")
		stopRelay()
		if err := lifecycle.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop lifecycle scheduler")
		}
		taskProcessor.Shutdown()
		if err := taskDistributor.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close task distributor")
		}
		connPool.Close()
		os.Exit(0)
	}()

	runHTTPServer(&config, store, liveState, eventHub, bidService, lifecycle)
}

func runHTTPServer(config *util.Config, store db.Store, liveState *live.State, eventHub *hub.Hub, bidService *bidding.Service, lifecycle *scheduler.Scheduler) {
	server, err := api.NewServer(store, liveState, eventHub, bidService, lifecycle, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create HTTP server")
	}

	if err := server.Start(config.ListenAddress); err != nil {
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}
}
