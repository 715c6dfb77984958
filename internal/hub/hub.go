// Package hub maintains the per-auction rooms: which live sessions want
// push updates for which auction, and how events reach them. Sessions are
// held as weak references; a disconnect removes them from every room.
package hub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/suraijmuhammed/car-auction-system/internal/live"
)

// Event is one server-to-client push message.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventTypeNewBid           = "newBid"
	EventTypeAuctionEnded     = "auctionEnded"
	EventTypeAuctionCancelled = "auctionCancelled"
	EventTypeUserNotification = "userNotification"
)

// ErrSlowConsumer is returned by a Subscriber whose outbound buffer is full.
// The hub responds by disconnecting that subscriber only.
var ErrSlowConsumer = errors.New("subscriber outbound buffer full")

// Subscriber is a live session handle. Send must not block: it enqueues to
// the session's bounded outbound buffer and returns ErrSlowConsumer when the
// buffer is full.
type Subscriber interface {
	ID() string
	UserID() string
	Send(ev Event) error
	Kick(reason string)
}

type Hub struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[string]Subscriber
	users map[string]map[string]Subscriber

	// highestSeen implements the monotonic-amount filter for relayed bids:
	// a delivered bid whose amount is not above the last seen highest for
	// the auction is stale and dropped.
	highestSeen map[uuid.UUID]decimal.Decimal
}

func New() *Hub {
	return &Hub{
		rooms:       make(map[uuid.UUID]map[string]Subscriber),
		users:       make(map[string]map[string]Subscriber),
		highestSeen: make(map[uuid.UUID]decimal.Decimal),
	}
}

// RegisterSession adds a session to the user index so notifications can find
// it without a room membership.
func (h *Hub) RegisterSession(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.users[sub.UserID()]
	if !ok {
		sessions = make(map[string]Subscriber)
		h.users[sub.UserID()] = sessions
	}
	sessions[sub.ID()] = sub
}

// UnregisterSession removes a session from the user index and every room.
func (h *Hub) UnregisterSession(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.users[sub.UserID()]; ok {
		delete(sessions, sub.ID())
		if len(sessions) == 0 {
			delete(h.users, sub.UserID())
		}
	}

	for auctionID, members := range h.rooms {
		delete(members, sub.ID())
		if len(members) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// Join adds the session to the auction's room and returns the local member
// count after the join.
func (h *Hub) Join(sub Subscriber, auctionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[auctionID]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[auctionID] = members
	}
	members[sub.ID()] = sub
	return len(members)
}

// Leave removes the session from the auction's room; an emptied room is
// discarded.
func (h *Hub) Leave(sub Subscriber, auctionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[auctionID]; ok {
		delete(members, sub.ID())
		if len(members) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

// Broadcast enqueues the event to every room member. A member whose buffer
// is full is kicked; the remaining members are unaffected.
func (h *Hub) Broadcast(auctionID uuid.UUID, ev Event) {
	h.mu.Lock()
	members := make([]Subscriber, 0, len(h.rooms[auctionID]))
	for _, sub := range h.rooms[auctionID] {
		members = append(members, sub)
	}
	h.mu.Unlock()

	for _, sub := range members {
		if err := sub.Send(ev); err != nil {
			log.Warn().
				Str("session_id", sub.ID()).
				Str("auction_id", auctionID.String()).
				Str("event", ev.Type).
				Msg("disconnecting slow consumer")
			h.Leave(sub, auctionID)
			sub.Kick("slow consumer")
		}
	}
}

// BroadcastBid applies the monotonic-amount filter and, when the bid is
// fresh, broadcasts it to the room. Returns false for stale bids. Both the
// local accept path and the cross-replica relay go through here, so a bid
// reordered in flight can never roll the displayed price backwards.
func (h *Hub) BroadcastBid(summary live.BidSummary) bool {
	h.mu.Lock()
	last, ok := h.highestSeen[summary.AuctionID]
	if ok && !summary.Amount.GreaterThan(last) {
		h.mu.Unlock()
		return false
	}
	h.highestSeen[summary.AuctionID] = summary.Amount
	h.mu.Unlock()

	h.Broadcast(summary.AuctionID, Event{Type: EventTypeNewBid, Data: summary})
	return true
}

// PushUser enqueues the event to every live session of the user. Returns
// true when at least one session accepted it.
func (h *Hub) PushUser(userID string, ev Event) bool {
	h.mu.Lock()
	sessions := make([]Subscriber, 0, len(h.users[userID]))
	for _, sub := range h.users[userID] {
		sessions = append(sessions, sub)
	}
	h.mu.Unlock()

	delivered := false
	for _, sub := range sessions {
		if err := sub.Send(ev); err != nil {
			h.UnregisterSession(sub)
			sub.Kick("slow consumer")
			continue
		}
		delivered = true
	}
	return delivered
}

// ForgetAuction drops the room's monotonic watermark once the auction is
// terminal.
func (h *Hub) ForgetAuction(auctionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.highestSeen, auctionID)
}

// RoomSize returns the local member count of a room.
func (h *Hub) RoomSize(auctionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[auctionID])
}
