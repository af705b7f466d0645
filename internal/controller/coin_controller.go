package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"economy-api/internal/service"
	"economy-api/internal/tradeerrors"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusFor maps domain errors onto HTTP statuses: caller mistakes are
// 400s, state conflicts 409, missing records 404, storage trouble 503.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tradeerrors.ErrAuctionNotFound):
		return http.StatusNotFound
	case tradeerrors.IsValidation(err):
		return http.StatusBadRequest
	case tradeerrors.IsBusiness(err):
		return http.StatusConflict
	case tradeerrors.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(ctx *gin.Context, err error) {
	ctx.JSON(statusFor(err), ErrorResponse{
		Error:   http.StatusText(statusFor(err)),
		Message: err.Error(),
	})
}

func limitQuery(ctx *gin.Context, fallback int) int {
	raw := ctx.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

type CoinController struct {
	ledger       service.CoinLedger
	initialGrant int64
}

// NewCoinController builds the ledger controller. initialGrant is the
// starting balance used when an initialize request omits an amount.
func NewCoinController(ledger service.CoinLedger, initialGrant int64) *CoinController {
	return &CoinController{ledger: ledger, initialGrant: initialGrant}
}

type AmountRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

type TransferRequest struct {
	FromAccountID string `json:"from_account_id" binding:"required"`
	ToAccountID   string `json:"to_account_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	Reason        string `json:"reason"`
}

type InitializeRequest struct {
	Amount int64 `json:"amount"`
}

func (c *CoinController) GetBalance(ctx *gin.Context) {
	accountID := ctx.Param("accountId")

	balance, err := c.ledger.GetBalance(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (c *CoinController) Credit(ctx *gin.Context) {
	accountID := ctx.Param("accountId")

	var req AmountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}

	balance, err := c.ledger.Credit(ctx.Request.Context(), accountID, req.Amount, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (c *CoinController) Debit(ctx *gin.Context) {
	accountID := ctx.Param("accountId")

	var req AmountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}

	balance, err := c.ledger.Debit(ctx.Request.Context(), accountID, req.Amount, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (c *CoinController) Transfer(ctx *gin.Context) {
	var req TransferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}

	result, err := c.ledger.Transfer(ctx.Request.Context(), req.FromAccountID, req.ToAccountID, req.Amount, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (c *CoinController) GetHistory(ctx *gin.Context) {
	accountID := ctx.Param("accountId")

	history, err := c.ledger.GetHistory(ctx.Request.Context(), accountID, limitQuery(ctx, 0))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id":   accountID,
		"transactions": history,
	})
}

func (c *CoinController) GetStats(ctx *gin.Context) {
	accountID := ctx.Param("accountId")

	stats, err := c.ledger.GetStats(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func (c *CoinController) GetRanking(ctx *gin.Context) {
	ranking, err := c.ledger.GetRanking(ctx.Request.Context(), limitQuery(ctx, 10))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ranking": ranking})
}

func (c *CoinController) Initialize(ctx *gin.Context) {
	accountID := ctx.Param("accountId")

	var req InitializeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format", Message: err.Error()})
		return
	}
	if req.Amount == 0 {
		req.Amount = c.initialGrant
	}

	balance, created, err := c.ledger.Initialize(ctx.Request.Context(), accountID, req.Amount)
	if err != nil {
		respondError(ctx, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ctx.JSON(status, gin.H{
		"account_id": accountID,
		"balance":    balance,
		"created":    created,
	})
}

// RegisterRoutes mounts the ledger endpoints.
func (c *CoinController) RegisterRoutes(router gin.IRouter) {
	coins := router.Group("/coins")
	{
		coins.GET("/ranking", c.GetRanking)
		coins.POST("/transfer", c.Transfer)
		coins.GET("/:accountId/balance", c.GetBalance)
		coins.POST("/:accountId/credit", c.Credit)
		coins.POST("/:accountId/debit", c.Debit)
		coins.GET("/:accountId/history", c.GetHistory)
		coins.GET("/:accountId/stats", c.GetStats)
		coins.POST("/:accountId/initialize", c.Initialize)
	}
}
