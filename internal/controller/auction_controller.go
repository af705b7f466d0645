package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"economy-api/internal/engine"
	"economy-api/internal/models"
)

type AuctionController struct {
	engine engine.AuctionEngine
}

func NewAuctionController(e engine.AuctionEngine) *AuctionController {
	return &AuctionController{engine: e}
}

type CreateAuctionRequest struct {
	SellerID        string `json:"seller_id" binding:"required"`
	ItemID          string `json:"item_id" binding:"required"`
	ItemName        string `json:"item_name"`
	Quantity        int    `json:"quantity" binding:"required"`
	StartBid        int64  `json:"start_bid" binding:"required"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type PlaceBidRequest struct {
	BidderID string `json:"bidder_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
}

type CancelAuctionRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
}

func (c *AuctionController) CreateAuction(ctx *gin.Context) {
	var req CreateAuctionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}

	auction, err := c.engine.CreateAuction(
		ctx.Request.Context(),
		req.SellerID, req.ItemID, req.ItemName,
		req.Quantity, req.StartBid,
		time.Duration(req.DurationSeconds)*time.Second,
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, auction)
}

func (c *AuctionController) PlaceBid(ctx *gin.Context) {
	auctionID := ctx.Param("auctionId")

	var req PlaceBidRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}

	auction, err := c.engine.PlaceBid(ctx.Request.Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, auction)
}

func (c *AuctionController) CompleteAuction(ctx *gin.Context) {
	auction, err := c.engine.CompleteAuction(ctx.Request.Context(), ctx.Param("auctionId"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, auction)
}

func (c *AuctionController) CancelAuction(ctx *gin.Context) {
	auctionID := ctx.Param("auctionId")

	var req CancelAuctionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}

	auction, err := c.engine.CancelAuction(ctx.Request.Context(), auctionID, req.RequesterID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, auction)
}

func (c *AuctionController) GetAuction(ctx *gin.Context) {
	auction, err := c.engine.GetAuction(ctx.Request.Context(), ctx.Param("auctionId"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, auction)
}

func (c *AuctionController) GetActiveAuctions(ctx *gin.Context) {
	auctions, err := c.engine.GetActiveAuctions(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"auctions": auctions})
}

func (c *AuctionController) GetUserAuctions(ctx *gin.Context) {
	auctions, err := c.engine.GetUserAuctions(ctx.Request.Context(), ctx.Param("accountId"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, auctions)
}

func (c *AuctionController) GetHistory(ctx *gin.Context) {
	role := models.HistoryRole(ctx.DefaultQuery("role", string(models.HistoryRoleSell)))
	if role != models.HistoryRoleSell && role != models.HistoryRoleBuy {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: "role must be sell or buy"})
		return
	}

	records, err := c.engine.GetHistory(ctx.Request.Context(), ctx.Param("accountId"), role, limitQuery(ctx, 0))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": ctx.Param("accountId"),
		"role":       role,
		"records":    records,
	})
}

// RegisterRoutes mounts the auction endpoints.
func (c *AuctionController) RegisterRoutes(router gin.IRouter) {
	auctions := router.Group("/auctions")
	{
		auctions.POST("", c.CreateAuction)
		auctions.GET("", c.GetActiveAuctions)
		auctions.GET("/:auctionId", c.GetAuction)
		auctions.POST("/:auctionId/bids", c.PlaceBid)
		auctions.POST("/:auctionId/complete", c.CompleteAuction)
		auctions.POST("/:auctionId/cancel", c.CancelAuction)
	}

	users := router.Group("/users")
	{
		users.GET("/:accountId/auctions", c.GetUserAuctions)
		users.GET("/:accountId/auction-history", c.GetHistory)
	}
}
