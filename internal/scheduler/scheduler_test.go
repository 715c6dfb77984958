package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
	"github.com/suraijmuhammed/car-auction-system/internal/worker"
)

type fakeStore struct {
	db.Store

	expired   []uuid.UUID
	ended     map[uuid.UUID]bool
	endCalls  int
	winnerID  *string
	cancelled map[uuid.UUID]bool
}

func (f *fakeStore) ListExpiredAuctions(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return f.expired, nil
}

func (f *fakeStore) EndAuctionTx(ctx context.Context, arg db.EndAuctionTxParams) (db.EndAuctionTxResult, error) {
	f.endCalls++
	if f.ended == nil {
		f.ended = make(map[uuid.UUID]bool)
	}

	endedNow := !f.ended[arg.AuctionID]
	f.ended[arg.AuctionID] = true

	result := db.EndAuctionTxResult{
		Auction: db.Auction{
			ID:     arg.AuctionID,
			Status: db.AuctionStatusEnded,
		},
		Participants: []string{"u1", "u2"},
		EndedNow:     endedNow,
		WinnerID:     f.winnerID,
	}
	if f.winnerID != nil {
		amount := decimal.NewFromInt(400)
		result.WinningAmount = &amount
	}
	return result, nil
}

func (f *fakeStore) CancelAuctionTx(ctx context.Context, auctionID uuid.UUID) (db.Auction, error) {
	if f.cancelled == nil {
		f.cancelled = make(map[uuid.UUID]bool)
	}
	if f.cancelled[auctionID] {
		return db.Auction{}, db.ErrAuctionNotActive
	}
	f.cancelled[auctionID] = true
	return db.Auction{ID: auctionID, Status: db.AuctionStatusCancelled}, nil
}

type fakeDistributor struct {
	worker.TaskDistributor

	endedEvents []*worker.PayloadAuctionEnded
}

func (f *fakeDistributor) DistributeTaskAuctionEnded(ctx context.Context, payload *worker.PayloadAuctionEnded, opts ...asynq.Option) error {
	f.endedEvents = append(f.endedEvents, payload)
	return nil
}

// unreachableRedis returns a client whose operations fail fast; the shared
// state treats those failures as best-effort.
func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            "127.0.0.1:1",
		DialTimeout:     10 * time.Millisecond,
		MaxRetries:      -1,
		PoolTimeout:     10 * time.Millisecond,
		MinIdleConns:    0,
		ConnMaxIdleTime: time.Millisecond,
	})
}

func newTestScheduler(t *testing.T, store *fakeStore, distributor *fakeDistributor) *Scheduler {
	t.Helper()
	state := live.NewState(unreachableRedis(), "replica-test", time.Hour, 5, 30*time.Second)
	s, err := New(store, distributor, hub.New(), state, 30*time.Second)
	require.NoError(t, err)
	return s
}

func TestScheduler_EndAuctionEmitsOnce(t *testing.T) {
	auctionID := uuid.New()
	winner := "u2"
	store := &fakeStore{winnerID: &winner}
	distributor := &fakeDistributor{}
	s := newTestScheduler(t, store, distributor)

	result, err := s.EndAuction(context.Background(), auctionID)
	require.NoError(t, err)
	require.True(t, result.EndedNow)
	require.Len(t, distributor.endedEvents, 1)
	require.Equal(t, auctionID, distributor.endedEvents[0].AuctionID)
	require.Equal(t, &winner, distributor.endedEvents[0].WinnerID)
	require.ElementsMatch(t, []string{"u1", "u2"}, distributor.endedEvents[0].Participants)

	// Ending again is a no-op and emits no second event cluster.
	result, err = s.EndAuction(context.Background(), auctionID)
	require.NoError(t, err)
	require.False(t, result.EndedNow)
	require.Len(t, distributor.endedEvents, 1)
}

func TestScheduler_SweepEndsAllExpired(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	store := &fakeStore{expired: []uuid.UUID{first, second}}
	distributor := &fakeDistributor{}
	s := newTestScheduler(t, store, distributor)

	s.Sweep(context.Background())

	require.Equal(t, 2, store.endCalls)
	require.Len(t, distributor.endedEvents, 2)

	// A concurrent replica sweeping the same set observes ENDED and no-ops.
	s.Sweep(context.Background())
	require.Len(t, distributor.endedEvents, 2)
}

func TestScheduler_CancelAuction(t *testing.T) {
	auctionID := uuid.New()
	store := &fakeStore{}
	distributor := &fakeDistributor{}
	s := newTestScheduler(t, store, distributor)

	auction, err := s.CancelAuction(context.Background(), auctionID)
	require.NoError(t, err)
	require.Equal(t, db.AuctionStatusCancelled, auction.Status)

	_, err = s.CancelAuction(context.Background(), auctionID)
	require.ErrorIs(t, err, db.ErrAuctionNotActive)
}
