package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
)

type createAuctionRequest struct {
	ItemID      string          `json:"item_id" binding:"required"`
	StartTime   time.Time       `json:"start_time" binding:"required"`
	EndTime     time.Time       `json:"end_time" binding:"required"`
	StartingBid decimal.Decimal `json:"starting_bid" binding:"required"`
}

func (server *Server) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid request body: %w", err)))
		return
	}

	if !req.EndTime.After(req.StartTime) {
		c.JSON(http.StatusBadRequest, errorResponse(errors.New("end_time must be after start_time")))
		return
	}
	if req.StartingBid.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse(errors.New("starting_bid must be positive")))
		return
	}

	auctionID, err := uuid.NewV7()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(err))
		return
	}

	auction, err := server.store.CreateAuction(c, db.CreateAuctionParams{
		ID:          auctionID,
		ItemID:      req.ItemID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		StartingBid: req.StartingBid,
	})
	if err != nil {
		if code, constraint := db.ErrorDescription(err); code == db.UniqueViolationCode && constraint == db.UniqueItemConstraint {
			c.JSON(http.StatusConflict, errorResponse(fmt.Errorf("item %s is already being auctioned", req.ItemID)))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Errorf("failed to create auction: %w", err)))
		return
	}

	c.JSON(http.StatusCreated, auction)
}

func (server *Server) listAuctions(c *gin.Context) {
	auctions, err := server.store.ListAuctions(c, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Errorf("failed to list auctions: %w", err)))
		return
	}

	c.JSON(http.StatusOK, auctions)
}

func (server *Server) getAuctionDetails(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid auction ID format")))
		return
	}

	auction, err := server.getAuctionEndingExpired(c, auctionID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) || errors.Is(err, db.ErrAuctionNotFound) {
			c.JSON(http.StatusNotFound, errorResponse(fmt.Errorf("auction ID %s not found", auctionID)))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Errorf("failed to get auction details: %w", err)))
		return
	}

	c.JSON(http.StatusOK, auction)
}

func (server *Server) listAuctionBids(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid auction ID format")))
		return
	}

	bids, err := server.store.ListBids(c, db.ListBidsParams{AuctionID: auctionID, Limit: 50})
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(fmt.Errorf("failed to list bids: %w", err)))
		return
	}

	c.JSON(http.StatusOK, bids)
}

func (server *Server) cancelAuction(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("auctionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid auction ID format")))
		return
	}

	auction, err := server.lifecycle.CancelAuction(c, auctionID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrAuctionNotFound):
			c.JSON(http.StatusNotFound, errorResponse(fmt.Errorf("auction ID %s not found", auctionID)))
		case errors.Is(err, db.ErrAuctionNotActive):
			c.JSON(http.StatusUnprocessableEntity, errorResponse(errors.New("auction is already terminal")))
		default:
			c.JSON(http.StatusInternalServerError, errorResponse(fmt.Errorf("failed to cancel auction: %w", err)))
		}
		return
	}

	c.JSON(http.StatusOK, auction)
}

// getAuctionEndingExpired reads an auction and, when it observes an ACTIVE
// auction past its end time, performs the end transition before returning.
// The read path thereby never serves a stale ACTIVE state between sweeps.
func (server *Server) getAuctionEndingExpired(ctx context.Context, auctionID uuid.UUID) (db.Auction, error) {
	auction, err := server.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return db.Auction{}, err
	}

	if auction.Status == db.AuctionStatusActive && !time.Now().UTC().Before(auction.EndTime) {
		result, err := server.lifecycle.EndAuction(ctx, auctionID)
		if err != nil {
			return db.Auction{}, err
		}
		return result.Auction, nil
	}

	return auction, nil
}
