// Package bidding implements bid acceptance: normalization, the rate gate,
// the durable commit, and the post-commit fan-out. The database commit is
// the single point of truth; everything after it is best-effort.
package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
	"github.com/suraijmuhammed/car-auction-system/internal/worker"
)

var (
	ErrInvalidAmount = errors.New("bid amount must be a positive number")
	ErrAmountTooHigh = errors.New("bid amount exceeds the configured maximum")
	ErrRateLimited   = errors.New("too many bids, slow down")
)

// Limiter is the bid ingress rate gate. Implementations fail open.
type Limiter interface {
	AllowBid(ctx context.Context, userID string, auctionID uuid.UUID) bool
}

// SharedState receives the post-commit cache and fan-out writes.
type SharedState interface {
	SetHighest(ctx context.Context, summary live.BidSummary)
	AppendHistory(ctx context.Context, summary live.BidSummary)
	PublishBid(ctx context.Context, summary live.BidSummary)
}

// Broadcaster delivers an accepted bid to the local room members.
type Broadcaster interface {
	BroadcastBid(summary live.BidSummary) bool
}

type Service struct {
	store       db.Store
	limiter     Limiter
	shared      SharedState
	rooms       Broadcaster
	distributor worker.TaskDistributor
	maxBid      decimal.Decimal
}

func NewService(store db.Store, limiter Limiter, shared SharedState, rooms Broadcaster, distributor worker.TaskDistributor, maxBid decimal.Decimal) *Service {
	return &Service{
		store:       store,
		limiter:     limiter,
		shared:      shared,
		rooms:       rooms,
		distributor: distributor,
		maxBid:      maxBid,
	}
}

// Submit runs the bid acceptance pipeline. On success the bid is durable
// before the function returns; the cache, fan-out, and audit writes happen
// behind the reply and their failure never invalidates the accepted bid.
func (s *Service) Submit(ctx context.Context, userID, username string, auctionID uuid.UUID, amount decimal.Decimal) (db.PlaceBidTxResult, error) {
	if amount.Sign() <= 0 {
		return db.PlaceBidTxResult{}, ErrInvalidAmount
	}
	if amount.GreaterThan(s.maxBid) {
		return db.PlaceBidTxResult{}, ErrAmountTooHigh
	}

	if !s.limiter.AllowBid(ctx, userID, auctionID) {
		return db.PlaceBidTxResult{}, ErrRateLimited
	}

	result, err := s.store.PlaceBidTx(ctx, db.PlaceBidTxParams{
		UserID:    userID,
		AuctionID: auctionID,
		Amount:    amount,
	})
	if err != nil {
		return db.PlaceBidTxResult{}, err
	}

	summary := live.BidSummary{
		BidID:     result.Bid.ID,
		AuctionID: result.Bid.AuctionID,
		UserID:    userID,
		Username:  username,
		Amount:    result.Bid.Amount,
		Timestamp: result.Bid.Timestamp,
	}

	// Local room members hear about the bid immediately; Send only enqueues,
	// so no subscriber can stall the accept path.
	s.rooms.BroadcastBid(summary)

	go s.afterCommit(summary)

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("bidder_id", userID).
		Str("amount", amount.String()).
		Msg("bid placed successfully")

	return result, nil
}

// afterCommit runs the ordered best-effort side effects: shared cache,
// history tail, cross-replica fan-out, audit event.
func (s *Service) afterCommit(summary live.BidSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.shared.SetHighest(ctx, summary)
	s.shared.AppendHistory(ctx, summary)
	s.shared.PublishBid(ctx, summary)

	err := s.distributor.DistributeTaskBidAudit(ctx, &worker.PayloadBidAudit{
		BidID:     summary.BidID,
		AuctionID: summary.AuctionID,
		UserID:    summary.UserID,
		Amount:    summary.Amount,
		Timestamp: summary.Timestamp,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("bid_id", summary.BidID.String()).
			Msg("failed to enqueue bid audit event")
	}
}
