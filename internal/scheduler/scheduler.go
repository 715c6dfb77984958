// Package scheduler ends auctions at their scheduled time. Every replica
// runs the sweep; the store's idempotent end transition makes the first
// replica win and turns the rest into no-ops, so no leader election is
// needed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
	"github.com/suraijmuhammed/car-auction-system/internal/worker"
)

type Scheduler struct {
	store       db.Store
	distributor worker.TaskDistributor
	hub         *hub.Hub
	state       *live.State
	scheduler   gocron.Scheduler
	tick        time.Duration
}

func New(store db.Store, distributor worker.TaskDistributor, eventHub *hub.Hub, state *live.State, tick time.Duration) (*Scheduler, error) {
	cronScheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		store:       store,
		distributor: distributor,
		hub:         eventHub,
		state:       state,
		scheduler:   cronScheduler,
		tick:        tick,
	}, nil
}

// Start begins the periodic expiry sweep.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.tick),
		gocron.NewTask(
			func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.tick)
				defer cancel()
				s.Sweep(ctx)
			},
		),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	log.Info().Dur("tick", s.tick).Msg("lifecycle sweep started")
	return nil
}

// Stop shuts the periodic sweep down.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// Sweep ends every ACTIVE auction whose end time has passed.
func (s *Scheduler) Sweep(ctx context.Context) {
	expired, err := s.store.ListExpiredAuctions(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("failed to list expired auctions")
		return
	}

	for _, auctionID := range expired {
		if _, err := s.EndAuction(ctx, auctionID); err != nil {
			log.Error().
				Err(err).
				Str("auction_id", auctionID.String()).
				Msg("failed to end expired auction")
		}
	}
}

// EndAuction performs the idempotent ENDED transition and, only when this
// call actually flipped the state, emits the outcome events: the durable
// auction.ended message, the local room broadcast, and the cross-replica
// fan-out. Also used by read paths that observe an expired ACTIVE auction.
func (s *Scheduler) EndAuction(ctx context.Context, auctionID uuid.UUID) (db.EndAuctionTxResult, error) {
	result, err := s.store.EndAuctionTx(ctx, db.EndAuctionTxParams{AuctionID: auctionID})
	if err != nil {
		return db.EndAuctionTxResult{}, fmt.Errorf("end auction tx: %w", err)
	}

	if !result.EndedNow {
		return result, nil
	}

	log.Info().
		Str("auction_id", auctionID.String()).
		Bool("has_winner", result.WinnerID != nil).
		Int("participants", len(result.Participants)).
		Msg("auction ended")

	err = s.distributor.DistributeTaskAuctionEnded(ctx, &worker.PayloadAuctionEnded{
		AuctionID:     auctionID,
		WinnerID:      result.WinnerID,
		WinningAmount: result.WinningAmount,
		Participants:  result.Participants,
	})
	if err != nil {
		// The transition is durable; the broker will be retried by the next
		// sweep only if the transition itself reruns, which it cannot. Log
		// loudly so the operator can replay the event.
		log.Error().
			Err(err).
			Str("auction_id", auctionID.String()).
			Msg("failed to publish auction ended event")
	}

	data := map[string]interface{}{
		"auction_id": auctionID,
	}
	if result.WinnerID != nil {
		data["winner_id"] = *result.WinnerID
	}
	if result.WinningAmount != nil {
		data["winning_amount"] = *result.WinningAmount
	}
	s.hub.Broadcast(auctionID, hub.Event{Type: hub.EventTypeAuctionEnded, Data: data})
	s.hub.ForgetAuction(auctionID)

	var winningAmountStr *string
	if result.WinningAmount != nil {
		str := result.WinningAmount.String()
		winningAmountStr = &str
	}
	s.state.PublishEnded(ctx, auctionID, result.WinnerID, winningAmountStr)

	return result, nil
}

// CancelAuction performs the admin CANCELLED transition and broadcasts it.
func (s *Scheduler) CancelAuction(ctx context.Context, auctionID uuid.UUID) (db.Auction, error) {
	auction, err := s.store.CancelAuctionTx(ctx, auctionID)
	if err != nil {
		return db.Auction{}, err
	}

	log.Info().Str("auction_id", auctionID.String()).Msg("auction cancelled")

	s.hub.Broadcast(auctionID, hub.Event{
		Type: hub.EventTypeAuctionCancelled,
		Data: map[string]interface{}{"auction_id": auctionID},
	})
	s.hub.ForgetAuction(auctionID)
	s.state.PublishCancelled(ctx, auctionID)

	return auction, nil
}
