package hub

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/suraijmuhammed/car-auction-system/internal/live"
)

// Relay feeds cross-replica fan-out messages into the local rooms. Messages
// published by this replica are skipped (members already received the local
// broadcast) and are never re-published, so a message crosses the bus at
// most once.
type Relay struct {
	hub   *Hub
	state *live.State
}

func NewRelay(h *Hub, state *live.State) *Relay {
	return &Relay{hub: h, state: state}
}

// Run blocks consuming the fan-out channels until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	pubsub := r.state.SubscribeBids(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Info().Str("replica_id", r.state.ReplicaID()).Msg("fan-out relay started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	msg, err := live.DecodeMessage(payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed fan-out message")
		return
	}

	if msg.Origin == r.state.ReplicaID() {
		return
	}

	switch msg.Type {
	case live.MessageTypeNewBid:
		if msg.Bid == nil {
			return
		}
		if !r.hub.BroadcastBid(*msg.Bid) {
			log.Debug().
				Str("auction_id", msg.AuctionID.String()).
				Str("amount", msg.Bid.Amount.String()).
				Msg("dropped stale relayed bid")
		}

	case live.MessageTypeAuctionEnded:
		data := map[string]interface{}{
			"auction_id": msg.AuctionID,
		}
		if msg.WinnerID != nil {
			data["winner_id"] = *msg.WinnerID
		}
		if msg.WinningAmount != nil {
			if amount, err := decimal.NewFromString(*msg.WinningAmount); err == nil {
				data["winning_amount"] = amount
			}
		}
		r.hub.Broadcast(msg.AuctionID, Event{Type: EventTypeAuctionEnded, Data: data})
		r.hub.ForgetAuction(msg.AuctionID)

	case live.MessageTypeAuctionCancelled:
		r.hub.Broadcast(msg.AuctionID, Event{
			Type: EventTypeAuctionCancelled,
			Data: map[string]interface{}{"auction_id": msg.AuctionID},
		})
		r.hub.ForgetAuction(msg.AuctionID)

	default:
		log.Warn().Str("type", msg.Type).Msg("unknown fan-out message type")
	}
}
