package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suraijmuhammed/car-auction-system/internal/bidding"
	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
)

func TestPlaceBidPayload_AmountForms(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		wantErr  bool
	}{
		{
			name:     "number_amount",
			raw:      `{"auction_id":"a","amount":150}`,
			expected: "150",
		},
		{
			name:     "string_amount",
			raw:      `{"auction_id":"a","amount":"150.50"}`,
			expected: "150.5",
		},
		{
			name:    "non_numeric_amount",
			raw:     `{"auction_id":"a","amount":"abc"}`,
			wantErr: true,
		},
		{
			name:    "object_amount",
			raw:     `{"auction_id":"a","amount":{}}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var payload placeBidPayload
			err := json.Unmarshal([]byte(tc.raw), &payload)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, payload.Amount.String())
		})
	}
}

func TestClientMessage_Envelope(t *testing.T) {
	raw := `{"type":"placeBid","data":{"auction_id":"x","amount":100}}`

	var msg clientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Equal(t, MessagePlaceBid, msg.Type)

	var payload placeBidPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	require.Equal(t, "x", payload.AuctionID)
}

func TestParseAuctionID(t *testing.T) {
	_, err := parseAuctionID("not-a-uuid")
	require.Error(t, err)

	id, err := parseAuctionID("0195f2c0-0000-7000-8000-000000000001")
	require.NoError(t, err)
	require.Equal(t, "0195f2c0-0000-7000-8000-000000000001", id.String())
}

func TestMapBidError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode string
	}{
		{"rate_limited", bidding.ErrRateLimited, BidErrorRateLimitExceeded},
		{"invalid_amount", bidding.ErrInvalidAmount, BidErrorInvalidAmount},
		{"amount_too_high", bidding.ErrAmountTooHigh, BidErrorInvalidAmount},
		{"bid_too_low", db.ErrBidTooLow, BidErrorValidation},
		{"self_outbid", db.ErrSelfOutbid, BidErrorValidation},
		{"auction_not_found", db.ErrAuctionNotFound, BidErrorValidation},
		{"auction_not_active", db.ErrAuctionNotActive, BidErrorValidation},
		{"auction_ended", db.ErrAuctionEnded, BidErrorValidation},
		{"unknown", errors.New("boom"), BidErrorValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, message := mapBidError(tc.err)
			require.Equal(t, tc.expectedCode, code)
			require.NotEmpty(t, message)
		})
	}
}
