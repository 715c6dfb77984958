package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

const (
	TaskBidAudit     = "bid:audit"
	TaskAuctionEnded = "auction:ended"
	TaskNotifyUser   = "notify:user"
)

const (
	QueueBidProcessing = "bid-processing"
	QueueNotifications = "notifications"
	QueueAuditLogs     = "audit-logs"
)

/*
This file contains the code to create tasks and distribute them to the Redis queue.
*/

type TaskDistributor interface {
	DistributeTaskBidAudit(ctx context.Context, payload *PayloadBidAudit, opts ...asynq.Option) error
	DistributeTaskAuctionEnded(ctx context.Context, payload *PayloadAuctionEnded, opts ...asynq.Option) error
	DistributeTaskNotifyUser(ctx context.Context, payload *PayloadNotifyUser, opts ...asynq.Option) error
	Close() error
}

type RedisTaskDistributor struct {
	client *asynq.Client // client sends tasks to redis queue.
}

func NewTaskDistributor(redisOpt asynq.RedisClientOpt) TaskDistributor {
	client := asynq.NewClient(redisOpt)

	return &RedisTaskDistributor{
		client: client,
	}
}

func (distributor *RedisTaskDistributor) Close() error {
	return distributor.client.Close()
}
