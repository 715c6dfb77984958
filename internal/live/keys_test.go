package live

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Key layout is part of the deployment contract: other replicas and ops
// tooling address the same entries.
func TestKeyLayout(t *testing.T) {
	auctionID := uuid.MustParse("0195f2c0-0000-7000-8000-000000000001")

	require.Equal(t, "auction:0195f2c0-0000-7000-8000-000000000001:highest", highestKey(auctionID))
	require.Equal(t, "auction:0195f2c0-0000-7000-8000-000000000001:history", historyKey(auctionID))
	require.Equal(t, "auction:0195f2c0-0000-7000-8000-000000000001:bids", bidChannel(auctionID))
	require.Equal(t, "session:user1", sessionKey("user1"))
	require.Equal(t, "rate_limit:user1:0195f2c0-0000-7000-8000-000000000001", rateLimitKey("user1", auctionID))
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage(`{"origin":"r1","type":"new_bid","auction_id":"0195f2c0-0000-7000-8000-000000000001"}`)
	require.NoError(t, err)
	require.Equal(t, "r1", msg.Origin)
	require.Equal(t, MessageTypeNewBid, msg.Type)

	_, err = DecodeMessage(`{not json`)
	require.Error(t, err)
}
