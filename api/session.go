package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/suraijmuhammed/car-auction-system/internal/bidding"
	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// outboundBufferSize bounds the per-subscriber queue; a member that
	// cannot drain it is a slow consumer and gets disconnected.
	outboundBufferSize = 64

	requestTimeout = 10 * time.Second
)

// session is one authenticated websocket connection. The write pump is the
// only goroutine that touches the connection for writes; every other
// goroutine communicates through the bounded out channel.
type session struct {
	id       string
	userID   string
	username string
	conn     *websocket.Conn
	server   *Server

	out  chan hub.Event
	done chan struct{}

	// inflight caps concurrently processed inbound messages; when full the
	// read pump blocks, pushing backpressure onto the client.
	inflight chan struct{}

	closeOnce sync.Once
}

func (s *session) ID() string {
	return s.id
}

func (s *session) UserID() string {
	return s.userID
}

// Send enqueues an event without blocking. Implements hub.Subscriber.
func (s *session) Send(ev hub.Event) error {
	select {
	case s.out <- ev:
		return nil
	case <-s.done:
		return nil
	default:
		return hub.ErrSlowConsumer
	}
}

// Kick closes the connection. Implements hub.Subscriber.
func (s *session) Kick(reason string) {
	log.Warn().
		Str("session_id", s.id).
		Str("user_id", s.userID).
		Str("reason", reason).
		Msg("kicking session")
	s.close()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// readPump owns inbound traffic: it decodes each envelope and dispatches it
// through the handler table.
func (s *session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session_id", s.id).Msg("websocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendError("malformed message")
			continue
		}

		handler, ok := s.server.wsHandlers[msg.Type]
		if !ok {
			s.sendError("unknown message type: " + msg.Type)
			continue
		}

		select {
		case s.inflight <- struct{}{}:
		case <-s.done:
			return
		}

		go func(data json.RawMessage) {
			defer func() { <-s.inflight }()
			handler(s, data)
		}(msg.Data)
	}
}

// writePump owns outbound traffic and connection keepalive.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case ev := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// teardown leaves every joined room and clears presence after a disconnect.
func (s *session) teardown() {
	s.close()

	s.server.eventHub.UnregisterSession(s)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	s.server.liveState.ClearSession(ctx, s.userID)

	log.Info().
		Str("session_id", s.id).
		Str("user_id", s.userID).
		Msg("session disconnected")
}

func (s *session) sendEvent(ev hub.Event) {
	if err := s.Send(ev); err != nil {
		s.Kick("slow consumer")
	}
}

func (s *session) sendError(message string) {
	s.sendEvent(hub.Event{Type: EventTypeError, Data: errorData{Message: message}})
}

func (s *session) sendBidError(code, message string) {
	s.sendEvent(hub.Event{Type: EventTypeBidError, Data: bidErrorData{Code: code, Message: message}})
}

// wsHandler is one entry of the inbound dispatch table.
type wsHandler func(s *session, data json.RawMessage)

func (server *Server) handleJoinAuction(s *session, data json.RawMessage) {
	var payload joinAuctionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError("invalid joinAuction payload")
		return
	}

	auctionID, err := parseAuctionID(payload.AuctionID)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	auction, err := server.getAuctionEndingExpired(ctx, auctionID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) || errors.Is(err, db.ErrAuctionNotFound) {
			s.sendError("auction not found")
			return
		}
		s.sendError("failed to load auction")
		return
	}

	server.eventHub.Join(s, auctionID)

	snapshot, highest := server.buildSnapshot(ctx, auction)
	s.sendEvent(hub.Event{Type: EventTypeJoinedAuction, Data: snapshot})
	if highest != nil {
		s.sendEvent(hub.Event{Type: EventTypeCurrentHighestBid, Data: highest})
	}
}

func (server *Server) handlePlaceBid(s *session, data json.RawMessage) {
	var payload placeBidPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendBidError(BidErrorInvalidAmount, "amount must be a number")
		return
	}

	auctionID, err := parseAuctionID(payload.AuctionID)
	if err != nil {
		s.sendBidError(BidErrorValidation, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := server.bidService.Submit(ctx, s.userID, s.username, auctionID, payload.Amount)
	if err != nil {
		code, message := mapBidError(err)
		s.sendBidError(code, message)
		return
	}

	s.sendEvent(hub.Event{Type: EventTypeBidPlaced, Data: bidPlacedData{
		BidID:  result.Bid.ID,
		Amount: result.Bid.Amount,
	}})
}

func (server *Server) handleGetBidHistory(s *session, data json.RawMessage) {
	var payload getBidHistoryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendError("invalid getBidHistory payload")
		return
	}

	auctionID, err := parseAuctionID(payload.AuctionID)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	limit := payload.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	bids, err := server.store.ListBids(ctx, db.ListBidsParams{AuctionID: auctionID, Limit: limit})
	if err != nil {
		s.sendError("failed to load bid history")
		return
	}

	s.sendEvent(hub.Event{Type: EventTypeBidHistory, Data: bids})
}

// mapBidError translates pipeline errors onto the client error codes.
func mapBidError(err error) (code, message string) {
	switch {
	case errors.Is(err, bidding.ErrRateLimited):
		return BidErrorRateLimitExceeded, "too many bids, retry after the window"
	case errors.Is(err, bidding.ErrInvalidAmount):
		return BidErrorInvalidAmount, "bid amount must be a positive number"
	case errors.Is(err, bidding.ErrAmountTooHigh):
		return BidErrorInvalidAmount, "bid amount exceeds the maximum"
	case errors.Is(err, db.ErrBidTooLow):
		return BidErrorValidation, "bid amount is not higher than the current highest bid"
	case errors.Is(err, db.ErrSelfOutbid):
		return BidErrorValidation, "you already hold the highest bid"
	case errors.Is(err, db.ErrAuctionNotFound):
		return BidErrorValidation, "auction not found"
	case errors.Is(err, db.ErrAuctionNotActive):
		return BidErrorValidation, "auction is not active"
	case errors.Is(err, db.ErrAuctionEnded):
		return BidErrorValidation, "auction has already ended"
	default:
		return BidErrorValidation, "failed to place bid"
	}
}

// buildSnapshot assembles the join reply: the shared cache first, the
// database as fallback. The second return value is the highest-bid summary
// when one exists.
func (server *Server) buildSnapshot(ctx context.Context, auction db.Auction) (auctionSnapshot, *live.BidSummary) {
	snapshot := auctionSnapshot{
		AuctionID:         auction.ID,
		Status:            auction.Status,
		CurrentHighestBid: auction.CurrentHighestBid,
	}

	var highest *live.BidSummary
	if cached, err := server.liveState.GetHighest(ctx, auction.ID); err == nil && cached != nil {
		highest = cached
	} else if top, err := server.store.GetHighestBid(ctx, auction.ID); err == nil {
		highest = &live.BidSummary{
			BidID:     top.ID,
			AuctionID: top.AuctionID,
			UserID:    top.UserID,
			Username:  top.Username,
			Amount:    top.Amount,
			Timestamp: top.Timestamp,
		}
	}

	if highest != nil {
		if highest.Amount.GreaterThan(snapshot.CurrentHighestBid) {
			snapshot.CurrentHighestBid = highest.Amount
		}
		snapshot.HighestBidder = &highest.Username
	}

	recent, err := server.liveState.History(ctx, auction.ID, 20)
	if err != nil || len(recent) == 0 {
		bids, dbErr := server.store.ListBids(ctx, db.ListBidsParams{AuctionID: auction.ID, Limit: 20})
		if dbErr == nil {
			recent = make([]live.BidSummary, 0, len(bids))
			for _, bid := range bids {
				recent = append(recent, live.BidSummary{
					BidID:     bid.ID,
					AuctionID: bid.AuctionID,
					UserID:    bid.UserID,
					Username:  bid.Username,
					Amount:    bid.Amount,
					Timestamp: bid.Timestamp,
				})
			}
		}
	}
	snapshot.RecentBids = recent

	if count, err := server.store.CountAuctionParticipants(ctx, auction.ID); err == nil {
		snapshot.ParticipantCount = count
	}

	return snapshot, highest
}
