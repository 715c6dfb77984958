package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusEnded     AuctionStatus = "ENDED"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

type NotificationKind string

const (
	NotificationKindWon           NotificationKind = "WON"
	NotificationKindLost          NotificationKind = "LOST"
	NotificationKindNoBidsWatcher NotificationKind = "NO_BIDS_WATCHER"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     *string   `json:"full_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Auction struct {
	ID                uuid.UUID       `json:"id"`
	ItemID            string          `json:"item_id"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	StartingBid       decimal.Decimal `json:"starting_bid"`
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	WinnerID          *string         `json:"winner_id,omitempty"`
	Status            AuctionStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Bid struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// BidDetail is a Bid joined with the bidder's username for display.
type BidDetail struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	AuctionID uuid.UUID       `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notification is a durable per-recipient outcome record. The
// (auction_id, recipient_id, kind) triple is unique; redelivered events
// collapse onto the existing row.
type Notification struct {
	ID          int64            `json:"id"`
	RecipientID string           `json:"recipient_id"`
	AuctionID   uuid.UUID        `json:"auction_id"`
	Kind        NotificationKind `json:"kind"`
	Payload     json.RawMessage  `json:"payload"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
