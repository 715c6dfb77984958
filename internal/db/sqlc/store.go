package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Querier is the read/write surface of the database layer. The fan-out,
// validator, scheduler, and worker packages depend on this interface rather
// than the concrete pool so tests can substitute fakes.
type Querier interface {
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateAuction(ctx context.Context, arg CreateAuctionParams) (Auction, error)
	GetAuctionByID(ctx context.Context, id uuid.UUID) (Auction, error)
	ListAuctions(ctx context.Context, limit int32) ([]Auction, error)
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	GetHighestBid(ctx context.Context, auctionID uuid.UUID) (BidDetail, error)
	ListBids(ctx context.Context, arg ListBidsParams) ([]BidDetail, error)
	ListAuctionParticipants(ctx context.Context, auctionID uuid.UUID) ([]string, error)
	CountAuctionParticipants(ctx context.Context, auctionID uuid.UUID) (int64, error)
	InsertBidAudit(ctx context.Context, arg InsertBidAuditParams) error
	CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error)
	MarkNotificationDelivered(ctx context.Context, id int64) error
	ListUserNotifications(ctx context.Context, arg ListUserNotificationsParams) ([]Notification, error)
}

// Store provides all functions to execute db queries and transactions.
type Store interface {
	Querier

	PlaceBidTx(ctx context.Context, arg PlaceBidTxParams) (PlaceBidTxResult, error)
	EndAuctionTx(ctx context.Context, arg EndAuctionTxParams) (EndAuctionTxResult, error)
	CancelAuctionTx(ctx context.Context, auctionID uuid.UUID) (Auction, error)
	Ping(ctx context.Context) error
}

type SQLStore struct {
	*Queries
	connPool *pgxpool.Pool
}

// NewStore creates a new Store.
func NewStore(db *pgxpool.Pool) Store {
	return &SQLStore{
		Queries:  New(db),
		connPool: db,
	}
}

// Ping checks if the database connection is alive.
func (store *SQLStore) Ping(ctx context.Context) error {
	return store.connPool.Ping(ctx)
}

// ExecTx executes fn within a database transaction.
func (store *SQLStore) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := store.connPool.Begin(ctx)
	if err != nil {
		return err
	}

	qTx := store.Queries.WithTx(tx)
	if err = fn(qTx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

const txMaxAttempts = 3

// execTxWithRetry retries fn on serialization failures and deadlocks with a
// short jittered backoff. Business errors pass through untouched.
func (store *SQLStore) execTxWithRetry(ctx context.Context, fn func(*Queries) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = store.ExecTx(ctx, fn)
		if err == nil || !IsTransientTxError(err) {
			return err
		}

		backoff := time.Duration(attempt*50+rand.Intn(50)) * time.Millisecond
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient tx error, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}

// CancelAuctionTx transitions an ACTIVE auction to CANCELLED under the row
// lock. Terminal auctions are rejected.
func (store *SQLStore) CancelAuctionTx(ctx context.Context, auctionID uuid.UUID) (Auction, error) {
	var cancelled Auction

	err := store.execTxWithRetry(ctx, func(qTx *Queries) error {
		auction, err := qTx.GetAuctionByIDForUpdate(ctx, auctionID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return ErrAuctionNotFound
			}
			return err
		}

		if auction.Status.IsTerminal() {
			return ErrAuctionNotActive
		}

		cancelled, err = qTx.MarkAuctionCancelled(ctx, auctionID)
		return err
	})

	return cancelled, err
}

var _ Store = (*SQLStore)(nil)
