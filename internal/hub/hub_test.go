package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/suraijmuhammed/car-auction-system/internal/live"
)

type fakeSub struct {
	id     string
	userID string
	events []Event
	full   bool
	kicked bool
}

func (f *fakeSub) ID() string     { return f.id }
func (f *fakeSub) UserID() string { return f.userID }

func (f *fakeSub) Send(ev Event) error {
	if f.full {
		return ErrSlowConsumer
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSub) Kick(reason string) { f.kicked = true }

func summary(auctionID uuid.UUID, amount int64) live.BidSummary {
	return live.BidSummary{
		BidID:     uuid.New(),
		AuctionID: auctionID,
		UserID:    "user1",
		Username:  "alice",
		Amount:    decimal.NewFromInt(amount),
		Timestamp: time.Now().UTC(),
	}
}

func TestHub_JoinAndBroadcast(t *testing.T) {
	h := New()
	auctionID := uuid.New()

	sub1 := &fakeSub{id: "s1", userID: "u1"}
	sub2 := &fakeSub{id: "s2", userID: "u2"}

	require.Equal(t, 1, h.Join(sub1, auctionID))
	require.Equal(t, 2, h.Join(sub2, auctionID))

	h.Broadcast(auctionID, Event{Type: EventTypeAuctionEnded})
	require.Len(t, sub1.events, 1)
	require.Len(t, sub2.events, 1)

	h.Leave(sub1, auctionID)
	h.Broadcast(auctionID, Event{Type: EventTypeAuctionEnded})
	require.Len(t, sub1.events, 1)
	require.Len(t, sub2.events, 2)
}

func TestHub_SlowConsumerIsKicked(t *testing.T) {
	h := New()
	auctionID := uuid.New()

	slow := &fakeSub{id: "slow", userID: "u1", full: true}
	healthy := &fakeSub{id: "ok", userID: "u2"}
	h.Join(slow, auctionID)
	h.Join(healthy, auctionID)

	h.Broadcast(auctionID, Event{Type: EventTypeNewBid})

	require.True(t, slow.kicked)
	require.Len(t, healthy.events, 1)
	require.Equal(t, 1, h.RoomSize(auctionID))
}

func TestHub_BroadcastBidMonotonic(t *testing.T) {
	h := New()
	auctionID := uuid.New()

	sub := &fakeSub{id: "s1", userID: "u1"}
	h.Join(sub, auctionID)

	require.True(t, h.BroadcastBid(summary(auctionID, 100)))
	require.True(t, h.BroadcastBid(summary(auctionID, 150)))

	// A relayed bid at or below the watermark is stale and must be dropped.
	require.False(t, h.BroadcastBid(summary(auctionID, 150)))
	require.False(t, h.BroadcastBid(summary(auctionID, 120)))

	require.Len(t, sub.events, 2)

	// Other auctions keep their own watermark.
	otherAuction := uuid.New()
	require.True(t, h.BroadcastBid(summary(otherAuction, 50)))
}

func TestHub_ForgetAuctionResetsWatermark(t *testing.T) {
	h := New()
	auctionID := uuid.New()

	require.True(t, h.BroadcastBid(summary(auctionID, 100)))
	require.False(t, h.BroadcastBid(summary(auctionID, 90)))

	h.ForgetAuction(auctionID)
	require.True(t, h.BroadcastBid(summary(auctionID, 90)))
}

func TestHub_PushUser(t *testing.T) {
	h := New()

	sub1 := &fakeSub{id: "s1", userID: "u1"}
	sub2 := &fakeSub{id: "s2", userID: "u1"}
	h.RegisterSession(sub1)
	h.RegisterSession(sub2)

	require.True(t, h.PushUser("u1", Event{Type: EventTypeUserNotification}))
	require.Len(t, sub1.events, 1)
	require.Len(t, sub2.events, 1)

	require.False(t, h.PushUser("offline-user", Event{Type: EventTypeUserNotification}))

	h.UnregisterSession(sub1)
	h.UnregisterSession(sub2)
	require.False(t, h.PushUser("u1", Event{Type: EventTypeUserNotification}))
}

func TestHub_UnregisterSessionLeavesRooms(t *testing.T) {
	h := New()
	auctionID := uuid.New()

	sub := &fakeSub{id: "s1", userID: "u1"}
	h.RegisterSession(sub)
	h.Join(sub, auctionID)
	require.Equal(t, 1, h.RoomSize(auctionID))

	h.UnregisterSession(sub)
	require.Zero(t, h.RoomSize(auctionID))
}

func TestRelay_SkipsOwnOrigin(t *testing.T) {
	h := New()
	state := live.NewState(nil, "replica-a", time.Hour, 5, 30*time.Second)
	relay := NewRelay(h, state)

	auctionID := uuid.New()
	sub := &fakeSub{id: "s1", userID: "u1"}
	h.Join(sub, auctionID)

	own := summary(auctionID, 100)
	relay.handle(encodeMessage(t, live.Message{
		Origin:    "replica-a",
		Type:      live.MessageTypeNewBid,
		AuctionID: auctionID,
		Bid:       &own,
	}))
	require.Empty(t, sub.events)

	remote := summary(auctionID, 100)
	relay.handle(encodeMessage(t, live.Message{
		Origin:    "replica-b",
		Type:      live.MessageTypeNewBid,
		AuctionID: auctionID,
		Bid:       &remote,
	}))
	require.Len(t, sub.events, 1)
	require.Equal(t, EventTypeNewBid, sub.events[0].Type)
}

func TestRelay_DropsStaleRelayedBid(t *testing.T) {
	h := New()
	state := live.NewState(nil, "replica-a", time.Hour, 5, 30*time.Second)
	relay := NewRelay(h, state)

	auctionID := uuid.New()
	sub := &fakeSub{id: "s1", userID: "u1"}
	h.Join(sub, auctionID)

	// Local accept path already observed 200.
	require.True(t, h.BroadcastBid(summary(auctionID, 200)))
	require.Len(t, sub.events, 1)

	stale := summary(auctionID, 150)
	relay.handle(encodeMessage(t, live.Message{
		Origin:    "replica-b",
		Type:      live.MessageTypeNewBid,
		AuctionID: auctionID,
		Bid:       &stale,
	}))
	require.Len(t, sub.events, 1)
}

func encodeMessage(t *testing.T, msg live.Message) string {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(data)
}
