package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
)

// PayloadBidAudit records one accepted bid on the audit stream.
type PayloadBidAudit struct {
	BidID     uuid.UUID       `json:"bid_id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

func (distributor *RedisTaskDistributor) DistributeTaskBidAudit(
	ctx context.Context,
	payload *PayloadBidAudit,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	taskID := fmt.Sprintf("bid:audit:%s", payload.BidID)
	task := asynq.NewTask(TaskBidAudit, jsonPayload,
		append(opts, asynq.TaskID(taskID), asynq.Queue(QueueAuditLogs))...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info().
		Str("type", task.Type()).
		Str("bid_id", payload.BidID.String()).
		Str("queue", info.Queue).
		Msg("bid audit task enqueued")

	return nil
}

// ProcessTaskBidAudit writes the bid to the durable audit trail. The insert
// is keyed by bid ID, so broker redeliveries are absorbed.
func (processor *RedisTaskProcessor) ProcessTaskBidAudit(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadBidAudit
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	err := processor.store.InsertBidAudit(ctx, db.InsertBidAuditParams{
		BidID:     payload.BidID,
		AuctionID: payload.AuctionID,
		UserID:    payload.UserID,
		Amount:    payload.Amount,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to insert bid audit record: %w", err)
	}

	log.Info().
		Str("bid_id", payload.BidID.String()).
		Str("auction_id", payload.AuctionID.String()).
		Msg("bid audit recorded")

	return nil
}
