package api

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/suraijmuhammed/car-auction-system/internal/bidding"
	db "github.com/suraijmuhammed/car-auction-system/internal/db/sqlc"
	"github.com/suraijmuhammed/car-auction-system/internal/hub"
	"github.com/suraijmuhammed/car-auction-system/internal/live"
	"github.com/suraijmuhammed/car-auction-system/internal/scheduler"
	"github.com/suraijmuhammed/car-auction-system/internal/token"
	"github.com/suraijmuhammed/car-auction-system/internal/util"
)

type Server struct {
	router     *gin.Engine
	store      db.Store
	liveState  *live.State
	eventHub   *hub.Hub
	bidService *bidding.Service
	lifecycle  *scheduler.Scheduler
	tokenMaker token.Maker
	config     *util.Config
	upgrader   websocket.Upgrader
	wsHandlers map[string]wsHandler
}

// NewServer creates a new HTTP server and sets up routing.
func NewServer(store db.Store, liveState *live.State, eventHub *hub.Hub, bidService *bidding.Service, lifecycle *scheduler.Scheduler, config *util.Config) (*Server, error) {
	tokenMaker, err := token.NewJWTMaker(config.TokenSecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create token maker: %w", err)
	}
	log.Info().Msg("token maker created successfully")

	server := &Server{
		store:      store,
		liveState:  liveState,
		eventHub:   eventHub,
		bidService: bidService,
		lifecycle:  lifecycle,
		tokenMaker: tokenMaker,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
	}

	server.wsHandlers = map[string]wsHandler{
		MessageJoinAuction:   server.handleJoinAuction,
		MessagePlaceBid:      server.handlePlaceBid,
		MessageGetBidHistory: server.handleGetBidHistory,
	}

	server.setupRouter()
	return server, nil
}

// setupRouter configures the HTTP server routes.
func (server *Server) setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	router.GET("/healthz", server.healthCheck)

	v1 := router.Group("/v1")

	v1.GET("/ws", server.handleWebsocket)

	auctionGroup := v1.Group("/auctions")
	{
		auctionGroup.GET("", server.listAuctions)
		auctionGroup.GET(":auctionID", server.getAuctionDetails)
		auctionGroup.GET(":auctionID/bids", server.listAuctionBids)
	}

	adminGroup := v1.Group("/admin", authMiddleware(server.tokenMaker), requiredAdminRole())
	{
		adminGroup.POST("/auctions", server.createAuction)
		adminGroup.PATCH("/auctions/:auctionID/cancel", server.cancelAuction)
	}

	userGroup := v1.Group("/users/me", authMiddleware(server.tokenMaker))
	{
		userGroup.GET("/notifications", server.listUserNotifications)
	}

	server.router = router
	return router
}

// Start runs the HTTP server on a specific address.
func (server *Server) Start(address string) error {
	return server.router.Run(address)
}

func (server *Server) healthCheck(c *gin.Context) {
	if err := server.store.Ping(c); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		allowedSet[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients carry no origin.
			return true
		}
		_, ok := allowedSet[origin]
		return ok
	}
}
