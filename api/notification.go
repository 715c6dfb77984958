package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/token"
)

// listUserNotifications returns the caller's durable outcome notifications,
// newest first. Rows never pushed to a live session show up here.
func (server *Server) listUserNotifications(c *gin.Context) {
	authPayload := c.MustGet(authorizationPayloadKey).(*token.Payload)

	notifications, err := server.store.ListUserNotifications(c, db.ListUserNotificationsParams{
		RecipientID: authPayload.Subject,
		Limit:       100,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Errorf("failed to list notifications: %w", err)))
		return
	}

	c.JSON(http.StatusOK, notifications)
}
