package live

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// rateLimitScript increments the per-(user, auction) counter atomically. The
// first increment arms the window expiry; past twice the limit the expiry is
// extended to five windows, which keeps a hammering client locked out longer.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count > tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return count
`)

func rateLimitKey(userID string, auctionID uuid.UUID) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, auctionID)
}

// AllowBid counts one bid attempt and reports whether it is within the
// window limit. When the shared store is unreachable the check fails open:
// the database remains the source of truth and a lost rate check must not
// reject a legitimate bid.
func (s *State) AllowBid(ctx context.Context, userID string, auctionID uuid.UUID) bool {
	windowMs := s.rateWindow.Milliseconds()
	count, err := rateLimitScript.Run(ctx, s.client,
		[]string{rateLimitKey(userID, auctionID)},
		windowMs,
		2*s.rateLimit,
		5*windowMs,
	).Int64()
	if err != nil {
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("auction_id", auctionID.String()).
			Msg("rate limit check failed, failing open")
		return true
	}

	return count <= s.rateLimit
}
