package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
)

// PayloadAuctionEnded is published once per ACTIVE -> ENDED transition, by
// the call that performed it; a failed enqueue is logged and not retried.
type PayloadAuctionEnded struct {
	AuctionID     uuid.UUID        `json:"auction_id"`
	WinnerID      *string          `json:"winner_id,omitempty"`
	WinningAmount *decimal.Decimal `json:"winning_amount,omitempty"`
	Participants  []string         `json:"participants"`
}

func (distributor *RedisTaskDistributor) DistributeTaskAuctionEnded(
	ctx context.Context,
	payload *PayloadAuctionEnded,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	taskID := fmt.Sprintf("auction:ended:%s", payload.AuctionID)
	task := asynq.NewTask(TaskAuctionEnded, jsonPayload,
		append(opts, asynq.TaskID(taskID), asynq.Queue(QueueBidProcessing))...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info().
		Str("type", task.Type()).
		Str("auction_id", payload.AuctionID.String()).
		Str("queue", info.Queue).
		Int("max_retry", info.MaxRetry).
		Msg("auction ended task enqueued")

	return nil
}

// ProcessTaskAuctionEnded resolves the outcome recipients and fans one
// notify:user task out per recipient. An auction with a winner produces WON
// for the winner and LOST for every other participant; an auction without
// bids produces a single room-wide NO_BIDS_WATCHER notification. Each
// notify:user task carries a deterministic ID, so reprocessing this event
// enqueues no duplicates.
func (processor *RedisTaskProcessor) ProcessTaskAuctionEnded(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadAuctionEnded
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	log.Info().
		Str("auction_id", payload.AuctionID.String()).
		Int("participants", len(payload.Participants)).
		Msg("processing auction ended event")

	for _, notify := range OutcomeNotifications(payload) {
		notify := notify
		err := processor.distributor.DistributeTaskNotifyUser(ctx, &notify)
		if err != nil && !isDuplicateTask(err) {
			return fmt.Errorf("failed to enqueue notification for %q: %w", notify.RecipientID, err)
		}
	}

	return nil
}

// OutcomeNotifications maps an ended auction onto its per-recipient
// notifications.
func OutcomeNotifications(payload PayloadAuctionEnded) []PayloadNotifyUser {
	if payload.WinnerID == nil {
		detail, _ := json.Marshal(map[string]interface{}{
			"auction_id": payload.AuctionID,
		})
		return []PayloadNotifyUser{{
			RecipientID: "",
			AuctionID:   payload.AuctionID,
			Kind:        db.NotificationKindNoBidsWatcher,
			Payload:     detail,
		}}
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"auction_id":     payload.AuctionID,
		"winner_id":      *payload.WinnerID,
		"winning_amount": payload.WinningAmount,
	})

	notifications := make([]PayloadNotifyUser, 0, len(payload.Participants))
	notifications = append(notifications, PayloadNotifyUser{
		RecipientID: *payload.WinnerID,
		AuctionID:   payload.AuctionID,
		Kind:        db.NotificationKindWon,
		Payload:     detail,
	})

	for _, participant := range payload.Participants {
		if participant == *payload.WinnerID {
			continue
		}
		notifications = append(notifications, PayloadNotifyUser{
			RecipientID: participant,
			AuctionID:   payload.AuctionID,
			Kind:        db.NotificationKindLost,
			Payload:     detail,
		})
	}

	return notifications
}

func isDuplicateTask(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}
