package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	UniqueViolationCode = "23505"
)

const (
	UniqueUsernameConstraint = "users_username_key"
	UniqueEmailConstraint    = "users_email_key"
	UniqueItemConstraint     = "auctions_item_id_key"
)

var ErrRecordNotFound = pgx.ErrNoRows

var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionEnded     = errors.New("auction has already ended")
	ErrBidTooLow        = errors.New("bid amount is not higher than the current highest bid")
	ErrSelfOutbid       = errors.New("caller already holds the current highest bid")
)

// ErrorDescription returns the error code and constraint name from a Postgres error.
func ErrorDescription(err error) (errCode string, constraintName string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}

	return
}

// IsTransientTxError reports whether the transaction failed for a reason that
// a clean retry can resolve: serialization failure, deadlock, or a dropped
// connection mid-transaction.
func IsTransientTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.AdminShutdown,
			pgerrcode.CrashShutdown:
			return true
		}
	}

	return pgconn.SafeToRetry(err)
}
