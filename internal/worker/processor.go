package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
)

/*
This file contains the code that picks up tasks from the Redis queue and processes them.
*/

type RedisTaskProcessor struct {
	server      *asynq.Server
	store       db.Store
	hub         *hub.Hub
	distributor TaskDistributor
}

func NewRedisTaskProcessor(redisOpt asynq.RedisClientOpt, store db.Store, eventHub *hub.Hub, distributor TaskDistributor) *RedisTaskProcessor {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Queues: map[string]int{
				QueueBidProcessing: 10,
				QueueNotifications: 5,
				QueueAuditLogs:     2,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("type", task.Type()).
					Bytes("payload", task.Payload()).Msg("process task failed")
			}),
			Logger: NewLogger(),
		},
	)

	return &RedisTaskProcessor{
		server:      server,
		store:       store,
		hub:         eventHub,
		distributor: distributor,
	}
}

// Start registers the task handlers for the mux, attaches the mux to the asynq server, and starts the server.
func (processor *RedisTaskProcessor) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TaskBidAudit, processor.ProcessTaskBidAudit)
	mux.HandleFunc(TaskAuctionEnded, processor.ProcessTaskAuctionEnded)
	mux.HandleFunc(TaskNotifyUser, processor.ProcessTaskNotifyUser)

	return processor.server.Start(mux)
}

// Shutdown waits for in-flight tasks and stops the server.
func (processor *RedisTaskProcessor) Shutdown() {
	processor.server.Shutdown()
}
