package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
)

func TestOutcomeNotifications_WithWinner(t *testing.T) {
	auctionID := uuid.New()
	winner := "u2"
	amount := decimal.NewFromInt(400)

	notifications := OutcomeNotifications(PayloadAuctionEnded{
		AuctionID:     auctionID,
		WinnerID:      &winner,
		WinningAmount: &amount,
		Participants:  []string{"u1", "u2", "u3"},
	})

	require.Len(t, notifications, 3)

	kinds := make(map[string]db.NotificationKind, len(notifications))
	for _, n := range notifications {
		require.Equal(t, auctionID, n.AuctionID)
		kinds[n.RecipientID] = n.Kind
	}

	require.Equal(t, db.NotificationKindWon, kinds["u2"])
	require.Equal(t, db.NotificationKindLost, kinds["u1"])
	require.Equal(t, db.NotificationKindLost, kinds["u3"])
}

func TestOutcomeNotifications_WinnerGetsExactlyOne(t *testing.T) {
	auctionID := uuid.New()
	winner := "u1"

	notifications := OutcomeNotifications(PayloadAuctionEnded{
		AuctionID:    auctionID,
		WinnerID:     &winner,
		Participants: []string{"u1"},
	})

	require.Len(t, notifications, 1)
	require.Equal(t, db.NotificationKindWon, notifications[0].Kind)
	require.Equal(t, "u1", notifications[0].RecipientID)
}

func TestOutcomeNotifications_NoBids(t *testing.T) {
	auctionID := uuid.New()

	notifications := OutcomeNotifications(PayloadAuctionEnded{
		AuctionID:    auctionID,
		Participants: nil,
	})

	require.Len(t, notifications, 1)
	require.Equal(t, db.NotificationKindNoBidsWatcher, notifications[0].Kind)
	// Empty recipient marks a room-wide broadcast.
	require.Empty(t, notifications[0].RecipientID)
}

func TestNotifyKey_Deterministic(t *testing.T) {
	auctionID := uuid.MustParse("0195f2c0-0000-7000-8000-000000000001")

	key := NotifyKey(auctionID, "u1", db.NotificationKindWon)
	require.Equal(t, "notify:user:0195f2c0-0000-7000-8000-000000000001:u1:WON", key)
	require.Equal(t, key, NotifyKey(auctionID, "u1", db.NotificationKindWon))

	// Distinct kinds and recipients produce distinct keys.
	require.NotEqual(t, key, NotifyKey(auctionID, "u1", db.NotificationKindLost))
	require.NotEqual(t, key, NotifyKey(auctionID, "u2", db.NotificationKindWon))
}
