// Package live holds the shared, best-effort state that sits beside the
// database: the highest-bid cache, the bid-history tail, session presence,
// the bid rate counters, and the cross-replica pub/sub channels. The
// database stays authoritative; every operation here may fail without
// affecting bid acceptance.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	highestKeyTTL = time.Hour
	historyKeyTTL = 7 * 24 * time.Hour
	historyMaxLen = 50
)

// BidSummary is the display form of an accepted bid, cached per auction and
// pushed on the fan-out channels.
type BidSummary struct {
	BidID     uuid.UUID       `json:"bid_id"`
	AuctionID uuid.UUID       `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// SessionMeta records a connected user's presence.
type SessionMeta struct {
	SessionID   string    `json:"session_id"`
	ReplicaID   string    `json:"replica_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

type State struct {
	client     *redis.Client
	replicaID  string
	sessionTTL time.Duration
	rateLimit  int64
	rateWindow time.Duration
}

func NewState(client *redis.Client, replicaID string, sessionTTL time.Duration, rateLimit int64, rateWindow time.Duration) *State {
	return &State{
		client:     client,
		replicaID:  replicaID,
		sessionTTL: sessionTTL,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

// ReplicaID identifies this process on the pub/sub channels.
func (s *State) ReplicaID() string {
	return s.replicaID
}

func highestKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:highest", auctionID)
}

func historyKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:history", auctionID)
}

func sessionKey(userID string) string {
	return fmt.Sprintf("session:%s", userID)
}

// SetHighest caches the current highest bid. Called only after the bid has
// committed to the database.
func (s *State) SetHighest(ctx context.Context, summary BidSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal highest bid summary")
		return
	}

	if err := s.client.Set(ctx, highestKey(summary.AuctionID), data, highestKeyTTL).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", summary.AuctionID.String()).
			Msg("failed to cache highest bid")
	}
}

// GetHighest returns the cached highest bid, or nil on a miss. Callers fall
// back to the database.
func (s *State) GetHighest(ctx context.Context, auctionID uuid.UUID) (*BidSummary, error) {
	data, err := s.client.Get(ctx, highestKey(auctionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var summary BidSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// AppendHistory pushes a bid onto the display tail, trims it to the bounded
// length, and refreshes the TTL. Display-only; the bids table is the record.
func (s *State) AppendHistory(ctx context.Context, summary BidSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal bid history entry")
		return
	}

	key := historyKey(summary.AuctionID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, historyMaxLen-1)
	pipe.Expire(ctx, key, historyKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("auction_id", summary.AuctionID.String()).
			Msg("failed to append bid history tail")
	}
}

// History returns up to limit entries of the display tail, newest first.
func (s *State) History(ctx context.Context, auctionID uuid.UUID, limit int64) ([]BidSummary, error) {
	if limit <= 0 || limit > historyMaxLen {
		limit = historyMaxLen
	}

	entries, err := s.client.LRange(ctx, historyKey(auctionID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	summaries := make([]BidSummary, 0, len(entries))
	for _, entry := range entries {
		var summary BidSummary
		if err := json.Unmarshal([]byte(entry), &summary); err != nil {
			log.Warn().Err(err).Msg("skipping malformed bid history entry")
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// SetSession records a user's presence with the configured TTL.
func (s *State) SetSession(ctx context.Context, userID string, meta SessionMeta) {
	data, err := json.Marshal(meta)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session meta")
		return
	}

	if err := s.client.Set(ctx, sessionKey(userID), data, s.sessionTTL).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to record session presence")
	}
}

// GetSession returns a user's presence record, or nil when absent.
func (s *State) GetSession(ctx context.Context, userID string) (*SessionMeta, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ClearSession removes a user's presence record on disconnect.
func (s *State) ClearSession(ctx context.Context, userID string) {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to clear session presence")
	}
}
