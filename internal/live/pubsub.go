package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// MessageTypeNewBid announces an accepted bid.
	MessageTypeNewBid = "new_bid"
	// MessageTypeAuctionEnded announces an ACTIVE -> ENDED transition.
	MessageTypeAuctionEnded = "auction_ended"
	// MessageTypeAuctionCancelled announces an ACTIVE -> CANCELLED transition.
	MessageTypeAuctionCancelled = "auction_cancelled"

	// bidChannelPattern matches every per-auction fan-out channel.
	bidChannelPattern = "auction:*:bids"
	// globalChannel carries cross-replica cache invalidations.
	globalChannel = "bid:global"
)

// Message is the envelope on the per-auction fan-out channels. Origin tags
// the publishing replica so receivers never re-publish what they hear.
type Message struct {
	Origin        string      `json:"origin"`
	Type          string      `json:"type"`
	AuctionID     uuid.UUID   `json:"auction_id"`
	Bid           *BidSummary `json:"bid,omitempty"`
	WinnerID      *string     `json:"winner_id,omitempty"`
	WinningAmount *string     `json:"winning_amount,omitempty"`
}

func bidChannel(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:bids", auctionID)
}

// PublishBid fans an accepted bid out to the other replicas, then nudges the
// global channel so remote caches refresh.
func (s *State) PublishBid(ctx context.Context, summary BidSummary) {
	s.publish(ctx, Message{
		Origin:    s.replicaID,
		Type:      MessageTypeNewBid,
		AuctionID: summary.AuctionID,
		Bid:       &summary,
	})

	if err := s.client.Publish(ctx, globalChannel, summary.AuctionID.String()).Err(); err != nil {
		log.Warn().Err(err).Msg("failed to publish global bid signal")
	}
}

// PublishEnded fans an ENDED transition out to the other replicas.
func (s *State) PublishEnded(ctx context.Context, auctionID uuid.UUID, winnerID *string, winningAmount *string) {
	s.publish(ctx, Message{
		Origin:        s.replicaID,
		Type:          MessageTypeAuctionEnded,
		AuctionID:     auctionID,
		WinnerID:      winnerID,
		WinningAmount: winningAmount,
	})
}

// PublishCancelled fans a CANCELLED transition out to the other replicas.
func (s *State) PublishCancelled(ctx context.Context, auctionID uuid.UUID) {
	s.publish(ctx, Message{
		Origin:    s.replicaID,
		Type:      MessageTypeAuctionCancelled,
		AuctionID: auctionID,
	})
}

func (s *State) publish(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal fan-out message")
		return
	}

	if err := s.client.Publish(ctx, bidChannel(msg.AuctionID), data).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", msg.AuctionID.String()).
			Str("type", msg.Type).
			Msg("failed to publish fan-out message")
	}
}

// SubscribeBids subscribes to every per-auction fan-out channel. The caller
// owns the returned PubSub and must Close it on shutdown.
func (s *State) SubscribeBids(ctx context.Context) *redis.PubSub {
	return s.client.PSubscribe(ctx, bidChannelPattern)
}

// DecodeMessage parses a raw fan-out payload.
func DecodeMessage(payload string) (Message, error) {
	var msg Message
	err := json.Unmarshal([]byte(payload), &msg)
	return msg, err
}
