package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
	"github.com/suraijmuhammed/car-auction-system/internal/worker"
)

type fakeStore struct {
	db.Store

	placeBidCalls int
	placeBidErr   error
	placeBidBid   db.Bid
}

func (f *fakeStore) PlaceBidTx(ctx context.Context, arg db.PlaceBidTxParams) (db.PlaceBidTxResult, error) {
	f.placeBidCalls++
	if f.placeBidErr != nil {
		return db.PlaceBidTxResult{}, f.placeBidErr
	}
	return db.PlaceBidTxResult{Bid: f.placeBidBid}, nil
}

type fakeLimiter struct {
	allow bool
	calls int
}

func (f *fakeLimiter) AllowBid(ctx context.Context, userID string, auctionID uuid.UUID) bool {
	f.calls++
	return f.allow
}

type fakeShared struct {
	highest chan live.BidSummary
}

func (f *fakeShared) SetHighest(ctx context.Context, summary live.BidSummary) {
	select {
	case f.highest <- summary:
	default:
	}
}

func (f *fakeShared) AppendHistory(ctx context.Context, summary live.BidSummary) {}
func (f *fakeShared) PublishBid(ctx context.Context, summary live.BidSummary)   {}

type fakeRooms struct {
	broadcasts []live.BidSummary
}

func (f *fakeRooms) BroadcastBid(summary live.BidSummary) bool {
	f.broadcasts = append(f.broadcasts, summary)
	return true
}

type fakeDistributor struct {
	worker.TaskDistributor

	audits chan *worker.PayloadBidAudit
}

func (f *fakeDistributor) DistributeTaskBidAudit(ctx context.Context, payload *worker.PayloadBidAudit, opts ...asynq.Option) error {
	select {
	case f.audits <- payload:
	default:
	}
	return nil
}

func newTestService(store *fakeStore, limiter *fakeLimiter, shared *fakeShared, rooms *fakeRooms, distributor *fakeDistributor) *Service {
	return NewService(store, limiter, shared, rooms, distributor, decimal.NewFromInt(1_000_000))
}

func TestService_Submit(t *testing.T) {
	auctionID := uuid.New()
	userID := "user1"

	tests := []struct {
		name           string
		amount         decimal.Decimal
		allow          bool
		storeErr       error
		expectedErr    error
		expectStoreHit bool
	}{
		{
			name:           "rejects_zero_amount",
			amount:         decimal.Zero,
			allow:          true,
			expectedErr:    ErrInvalidAmount,
			expectStoreHit: false,
		},
		{
			name:           "rejects_negative_amount",
			amount:         decimal.NewFromInt(-50),
			allow:          true,
			expectedErr:    ErrInvalidAmount,
			expectStoreHit: false,
		},
		{
			name:           "rejects_amount_above_maximum",
			amount:         decimal.NewFromInt(2_000_000),
			allow:          true,
			expectedErr:    ErrAmountTooHigh,
			expectStoreHit: false,
		},
		{
			name:           "rejects_rate_limited_caller",
			amount:         decimal.NewFromInt(150),
			allow:          false,
			expectedErr:    ErrRateLimited,
			expectStoreHit: false,
		},
		{
			name:           "propagates_bid_too_low",
			amount:         decimal.NewFromInt(150),
			allow:          true,
			storeErr:       db.ErrBidTooLow,
			expectedErr:    db.ErrBidTooLow,
			expectStoreHit: true,
		},
		{
			name:           "propagates_self_outbid",
			amount:         decimal.NewFromInt(150),
			allow:          true,
			storeErr:       db.ErrSelfOutbid,
			expectedErr:    db.ErrSelfOutbid,
			expectStoreHit: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{placeBidErr: tc.storeErr}
			limiter := &fakeLimiter{allow: tc.allow}
			shared := &fakeShared{highest: make(chan live.BidSummary, 1)}
			rooms := &fakeRooms{}
			distributor := &fakeDistributor{audits: make(chan *worker.PayloadBidAudit, 1)}
			service := newTestService(store, limiter, shared, rooms, distributor)

			_, err := service.Submit(context.Background(), userID, "alice", auctionID, tc.amount)
			require.ErrorIs(t, err, tc.expectedErr)

			if tc.expectStoreHit {
				require.Equal(t, 1, store.placeBidCalls)
			} else {
				require.Zero(t, store.placeBidCalls)
			}
			require.Empty(t, rooms.broadcasts)
		})
	}
}

func TestService_Submit_Accepted(t *testing.T) {
	auctionID := uuid.New()
	bidID, err := uuid.NewV7()
	require.NoError(t, err)

	amount := decimal.NewFromInt(150)
	bid := db.Bid{
		ID:        bidID,
		UserID:    "user1",
		AuctionID: auctionID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}

	store := &fakeStore{placeBidBid: bid}
	limiter := &fakeLimiter{allow: true}
	shared := &fakeShared{highest: make(chan live.BidSummary, 1)}
	rooms := &fakeRooms{}
	distributor := &fakeDistributor{audits: make(chan *worker.PayloadBidAudit, 1)}
	service := newTestService(store, limiter, shared, rooms, distributor)

	result, err := service.Submit(context.Background(), "user1", "alice", auctionID, amount)
	require.NoError(t, err)
	require.Equal(t, bidID, result.Bid.ID)
	require.True(t, amount.Equal(result.Bid.Amount))

	// The local room hears about the bid before Submit returns.
	require.Len(t, rooms.broadcasts, 1)
	require.Equal(t, "alice", rooms.broadcasts[0].Username)

	// The cache write and the audit event are asynchronous.
	select {
	case summary := <-shared.highest:
		require.Equal(t, bidID, summary.BidID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for highest-bid cache write")
	}

	select {
	case audit := <-distributor.audits:
		require.Equal(t, bidID, audit.BidID)
		require.True(t, amount.Equal(audit.Amount))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bid audit event")
	}
}

func TestService_Submit_RateGateBeforeStore(t *testing.T) {
	store := &fakeStore{}
	limiter := &fakeLimiter{allow: false}
	shared := &fakeShared{highest: make(chan live.BidSummary, 1)}
	rooms := &fakeRooms{}
	distributor := &fakeDistributor{audits: make(chan *worker.PayloadBidAudit, 1)}
	service := newTestService(store, limiter, shared, rooms, distributor)

	_, err := service.Submit(context.Background(), "user1", "alice", uuid.New(), decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 1, limiter.calls)
	require.Zero(t, store.placeBidCalls)
}
