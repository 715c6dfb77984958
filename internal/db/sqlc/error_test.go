package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsTransientTxError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "serialization_failure",
			err:       &pgconn.PgError{Code: "40001"},
			transient: true,
		},
		{
			name:      "deadlock_detected",
			err:       &pgconn.PgError{Code: "40P01"},
			transient: true,
		},
		{
			name:      "wrapped_serialization_failure",
			err:       fmt.Errorf("place bid: %w", &pgconn.PgError{Code: "40001"}),
			transient: true,
		},
		{
			name:      "unique_violation_is_not_transient",
			err:       &pgconn.PgError{Code: "23505"},
			transient: false,
		},
		{
			name:      "business_error_is_not_transient",
			err:       ErrBidTooLow,
			transient: false,
		},
		{
			name:      "not_found_is_not_transient",
			err:       ErrRecordNotFound,
			transient: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.transient, IsTransientTxError(tc.err))
		})
	}
}

func TestErrorDescription(t *testing.T) {
	code, constraint := ErrorDescription(&pgconn.PgError{
		Code:           UniqueViolationCode,
		ConstraintName: UniqueItemConstraint,
	})
	require.Equal(t, UniqueViolationCode, code)
	require.Equal(t, UniqueItemConstraint, constraint)

	code, constraint = ErrorDescription(ErrBidTooLow)
	require.Empty(t, code)
	require.Empty(t, constraint)
}

func TestAuctionStatusIsTerminal(t *testing.T) {
	require.False(t, AuctionStatusActive.IsTerminal())
	require.True(t, AuctionStatusEnded.IsTerminal())
	require.True(t, AuctionStatusCancelled.IsTerminal())
}
