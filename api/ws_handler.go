package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog/log"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
)

// handleWebsocket upgrades the connection, authenticates the handshake, and
// starts the session pumps. The bearer credential is taken from the
// Authorization header or, for browser clients, the token query parameter.
func (server *Server) handleWebsocket(c *gin.Context) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, errorResponse(errors.New("missing credentials")))
		return
	}

	payload, err := server.tokenMaker.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse(err))
		return
	}

	user, err := server.store.GetUserByID(c, payload.Subject)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, errorResponse(errors.New("unknown user")))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, errorResponse(errors.New("user is not active")))
		return
	}

	conn, err := server.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &session{
		id:       shortuuid.New(),
		userID:   user.ID,
		username: user.Username,
		conn:     conn,
		server:   server,
		out:      make(chan hub.Event, outboundBufferSize),
		done:     make(chan struct{}),
		inflight: make(chan struct{}, server.config.ConnectionInflightCap),
	}

	server.eventHub.RegisterSession(s)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	server.liveState.SetSession(ctx, user.ID, live.SessionMeta{
		SessionID:   s.id,
		ReplicaID:   server.liveState.ReplicaID(),
		ConnectedAt: time.Now().UTC(),
	})
	cancel()

	s.sendEvent(hub.Event{Type: EventTypeConnected, Data: connectedData{
		UserID:   user.ID,
		Username: user.Username,
	}})

	log.Info().
		Str("session_id", s.id).
		Str("user_id", user.ID).
		Msg("session connected")

	go s.writePump()
	go s.readPump()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader(authorizationHeaderKey)
	if header != "" {
		fields := strings.Fields(header)
		if len(fields) == 2 && fields[0] == authorizationTypeBearer {
			return fields[1]
		}
		return ""
	}

	return c.Query("token")
}
