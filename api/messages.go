package api

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
)

// Client -> server message kinds. Unknown kinds are rejected with an error
// event; every kind has a typed payload below.
const (
	MessageJoinAuction   = "joinAuction"
	MessagePlaceBid      = "placeBid"
	MessageGetBidHistory = "getBidHistory"
)

// Server -> client event types that are not broadcast through the hub.
const (
	EventTypeConnected         = "connected"
	EventTypeJoinedAuction     = "joinedAuction"
	EventTypeCurrentHighestBid = "currentHighestBid"
	EventTypeBidPlaced         = "bidPlaced"
	EventTypeBidError          = "bidError"
	EventTypeBidHistory        = "bidHistory"
	EventTypeError             = "error"
)

// Bid error codes surfaced to clients.
const (
	BidErrorRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	BidErrorInvalidAmount     = "INVALID_AMOUNT"
	BidErrorValidation        = "BID_VALIDATION_ERROR"
)

// clientMessage is the inbound envelope: a kind plus a kind-specific payload.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinAuctionPayload struct {
	AuctionID string `json:"auction_id"`
}

type placeBidPayload struct {
	AuctionID string `json:"auction_id"`
	// Amount accepts both a JSON number and a numeric string.
	Amount decimal.Decimal `json:"amount"`
}

type getBidHistoryPayload struct {
	AuctionID string `json:"auction_id"`
	Limit     int32  `json:"limit,omitempty"`
}

func parseAuctionID(raw string) (uuid.UUID, error) {
	auctionID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid auction ID format")
	}
	return auctionID, nil
}

type connectedData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// auctionSnapshot is the state handed to a session on room join.
type auctionSnapshot struct {
	AuctionID         uuid.UUID         `json:"auction_id"`
	Status            db.AuctionStatus  `json:"status"`
	CurrentHighestBid decimal.Decimal   `json:"current_highest_bid"`
	HighestBidder     *string           `json:"highest_bidder,omitempty"`
	RecentBids        []live.BidSummary `json:"recent_bids"`
	ParticipantCount  int64             `json:"participant_count"`
}

type bidPlacedData struct {
	BidID  uuid.UUID       `json:"bid_id"`
	Amount decimal.Decimal `json:"amount"`
}

type bidErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorData struct {
	Message string `json:"message"`
}
