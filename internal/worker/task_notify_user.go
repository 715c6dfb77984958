package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
)

// PayloadNotifyUser is one outcome notification. An empty RecipientID means
// a room-wide broadcast instead of a per-user delivery.
type PayloadNotifyUser struct {
	RecipientID string              `json:"recipient_id"`
	AuctionID   uuid.UUID           `json:"auction_id"`
	Kind        db.NotificationKind `json:"kind"`
	Payload     json.RawMessage     `json:"payload"`
}

// NotifyKey is the deterministic task/dedup key of a notification.
func NotifyKey(auctionID uuid.UUID, recipientID string, kind db.NotificationKind) string {
	return fmt.Sprintf("notify:user:%s:%s:%s", auctionID, recipientID, kind)
}

func (distributor *RedisTaskDistributor) DistributeTaskNotifyUser(
	ctx context.Context,
	payload *PayloadNotifyUser,
	opts ...asynq.Option,
) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	taskID := NotifyKey(payload.AuctionID, payload.RecipientID, payload.Kind)
	task := asynq.NewTask(TaskNotifyUser, jsonPayload,
		append(opts, asynq.TaskID(taskID), asynq.Queue(QueueNotifications))...)
	info, err := distributor.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}

	log.Info().
		Str("type", task.Type()).
		Str("task_id", taskID).
		Str("queue", info.Queue).
		Msg("notification task enqueued")

	return nil
}

// ProcessTaskNotifyUser records the notification durably and pushes it to
// the recipient's live sessions when present. The insert is keyed by
// (auction, recipient, kind); a redelivered event that finds the row already
// present is discarded. A recipient with no live session keeps the
// undelivered row, which a later connection can read back over HTTP.
func (processor *RedisTaskProcessor) ProcessTaskNotifyUser(
	ctx context.Context,
	task *asynq.Task,
) error {
	var payload PayloadNotifyUser
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", asynq.SkipRetry)
	}

	notification, err := processor.store.CreateNotification(ctx, db.CreateNotificationParams{
		RecipientID: payload.RecipientID,
		AuctionID:   payload.AuctionID,
		Kind:        payload.Kind,
		Payload:     payload.Payload,
	})
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			// Conflict: already recorded by an earlier delivery.
			log.Info().
				Str("task_id", NotifyKey(payload.AuctionID, payload.RecipientID, payload.Kind)).
				Msg("duplicate notification discarded")
			return nil
		}
		return fmt.Errorf("failed to record notification: %w", err)
	}

	event := hub.Event{
		Type: hub.EventTypeUserNotification,
		Data: map[string]interface{}{
			"kind":    payload.Kind,
			"payload": payload.Payload,
		},
	}

	if payload.RecipientID == "" {
		processor.hub.Broadcast(payload.AuctionID, event)
		return nil
	}

	if processor.hub.PushUser(payload.RecipientID, event) {
		if err := processor.store.MarkNotificationDelivered(ctx, notification.ID); err != nil {
			log.Warn().
				Err(err).
				Int64("notification_id", notification.ID).
				Msg("failed to mark notification delivered")
		}
	}

	return nil
}
