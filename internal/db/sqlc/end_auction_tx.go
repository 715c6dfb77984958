package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EndAuctionTxParams struct {
	AuctionID uuid.UUID
}

type EndAuctionTxResult struct {
	Auction      Auction  `json:"auction"`
	Participants []string `json:"participants"`
	// EndedNow is true only for the call that performed the ACTIVE -> ENDED
	// transition. Replicas racing on the same auction observe false and emit
	// no events, which keeps the auction.ended cluster at exactly one.
	EndedNow      bool             `json:"ended_now"`
	WinnerID      *string          `json:"winner_id,omitempty"`
	WinningAmount *decimal.Decimal `json:"winning_amount,omitempty"`
}

// EndAuctionTx transitions an auction to ENDED and resolves the winner.
// Idempotent: an auction that is already terminal is returned as-is with
// EndedNow=false and no error.
func (store *SQLStore) EndAuctionTx(ctx context.Context, arg EndAuctionTxParams) (EndAuctionTxResult, error) {
	var result EndAuctionTxResult

	err := store.execTxWithRetry(ctx, func(qTx *Queries) error {
		auction, err := qTx.GetAuctionByIDForUpdate(ctx, arg.AuctionID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}

		participants, err := qTx.ListAuctionParticipants(ctx, arg.AuctionID)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		result.Participants = participants

		if auction.Status.IsTerminal() {
			result.Auction = auction
			result.EndedNow = false
			result.WinnerID = auction.WinnerID
			if auction.WinnerID != nil {
				amount := auction.CurrentHighestBid
				result.WinningAmount = &amount
			}
			return nil
		}

		var winnerID *string
		var winningAmount *decimal.Decimal

		highest, err := qTx.GetHighestBid(ctx, arg.AuctionID)
		switch {
		case err == nil:
			winnerID = &highest.UserID
			winningAmount = &highest.Amount
		case errors.Is(err, ErrRecordNotFound):
			// No bids; the auction ends without a winner.
		default:
			return fmt.Errorf("failed to get highest bid: %w", err)
		}

		endedAuction, err := qTx.MarkAuctionEnded(ctx, arg.AuctionID, winnerID)
		if err != nil {
			return fmt.Errorf("failed to mark auction ended: %w", err)
		}

		result.Auction = endedAuction
		result.EndedNow = true
		result.WinnerID = winnerID
		result.WinningAmount = winningAmount

		return nil
	})

	if err != nil {
		return EndAuctionTxResult{}, err
	}

	return result, nil
}
