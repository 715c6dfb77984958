package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlaceBidTxParams struct {
	UserID    string
	AuctionID uuid.UUID
	Amount    decimal.Decimal
}

type PlaceBidTxResult struct {
	Bid     Bid     `json:"bid"`
	Auction Auction `json:"updated_auction"`
}

// PlaceBidTx accepts or rejects a bid in a single transaction. The auction
// row is re-read under FOR UPDATE, so all bids on one auction serialize on
// that lock while bids on other auctions proceed in parallel. The bid
// timestamp is assigned inside the lock, which makes it monotonic per
// auction together with the strictly increasing amount.
func (store *SQLStore) PlaceBidTx(ctx context.Context, arg PlaceBidTxParams) (PlaceBidTxResult, error) {
	var result PlaceBidTxResult

	err := store.execTxWithRetry(ctx, func(qTx *Queries) error {
		auction, err := qTx.GetAuctionByIDForUpdate(ctx, arg.AuctionID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("failed to lock auction: %w", err)
		}

		if auction.Status != AuctionStatusActive {
			return ErrAuctionNotActive
		}

		now := time.Now().UTC()
		if !now.Before(auction.EndTime) {
			return ErrAuctionEnded
		}

		if arg.Amount.LessThan(auction.StartingBid) {
			return ErrBidTooLow
		}
		if !arg.Amount.GreaterThan(auction.CurrentHighestBid) {
			return ErrBidTooLow
		}

		// Self-outbid prevention: the holder of the current highest bid may
		// not raise against themselves.
		highest, err := qTx.GetHighestBid(ctx, arg.AuctionID)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return fmt.Errorf("failed to get highest bid: %w", err)
		}
		if err == nil && highest.UserID == arg.UserID && highest.Amount.Equal(auction.CurrentHighestBid) {
			return ErrSelfOutbid
		}

		bidID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate bid ID: %w", err)
		}

		bid, err := qTx.CreateBid(ctx, CreateBidParams{
			ID:        bidID,
			UserID:    arg.UserID,
			AuctionID: arg.AuctionID,
			Amount:    arg.Amount,
			Timestamp: now,
		})
		if err != nil {
			return fmt.Errorf("failed to create bid: %w", err)
		}
		result.Bid = bid

		updatedAuction, err := qTx.UpdateAuctionHighestBid(ctx, arg.AuctionID, arg.Amount)
		if err != nil {
			return fmt.Errorf("failed to update auction highest bid: %w", err)
		}
		result.Auction = updatedAuction

		return nil
	})

	return result, err
}
