package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"marketplace_wallet/internal/domain"
	"marketplace_wallet/internal/middleware"
	"marketplace_wallet/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentService is the slice of the transfer engine the handlers need.
type PaymentService interface {
	Transfer(ctx context.Context, senderUserID, receiverUserID uint, amount decimal.Decimal, idempotencyKey string) (*domain.Transaction, error)
	AddMoney(ctx context.Context, userID uint, amount decimal.Decimal) (*domain.Wallet, error)
	Wallet(ctx context.Context, userID uint) (*domain.Wallet, error)
}

// TransferRequest is the transfer body. The sender is always the
// authenticated caller.
type TransferRequest struct {
	ReceiverUserID uint            `json:"receiver_user_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
}

// AddMoneyRequest is the topup body.
type AddMoneyRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// TransferHandler moves funds from the caller's wallet to another user's
// wallet. The Idempotency-Key header is required; retrying with the same
// key returns the original Transaction without a second debit.
func TransferHandler(engine PaymentService, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		senderID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key header required"})
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		txn, err := engine.Transfer(c.Request.Context(), senderID, req.ReceiverUserID, req.Amount, idempotencyKey)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"sender_user_id":   senderID,
				"receiver_user_id": req.ReceiverUserID,
				"amount":           req.Amount.String(),
				"error":            err.Error(),
			}).Warn("Transfer failed")
			respondPaymentError(c, err)
			return
		}

		logrus.WithFields(logrus.Fields{
			"sender_user_id":   senderID,
			"receiver_user_id": req.ReceiverUserID,
			"amount":           txn.Amount.String(),
			"transaction_id":   txn.ID,
		}).Info("Transfer completed")
		utils.InvalidateWalletCaches(c.Request.Context(), rdb, senderID, req.ReceiverUserID)
		c.JSON(http.StatusOK, gin.H{"transaction": txn})
	}
}

// AddMoneyHandler credits the caller's wallet.
func AddMoneyHandler(engine PaymentService, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req AddMoneyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}

		wallet, err := engine.AddMoney(c.Request.Context(), userID, req.Amount)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"amount":  req.Amount.String(),
				"error":   err.Error(),
			}).Warn("Topup failed")
			respondPaymentError(c, err)
			return
		}

		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  req.Amount.String(),
			"balance": wallet.Balance.String(),
		}).Info("Topup completed")
		utils.InvalidateWalletCaches(c.Request.Context(), rdb, userID)
		c.JSON(http.StatusOK, gin.H{"wallet": wallet})
	}
}

// GetBalanceHandler returns the caller's wallet, read through the Redis
// cache. The wallet is created lazily on first access.
func GetBalanceHandler(engine PaymentService, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.WalletCacheKey(userID)
		if rdb != nil {
			var cached domain.Wallet
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{"wallet": cached, "cached": true})
				return
			}
		}
		wallet, err := engine.Wallet(ctx, userID)
		if err != nil {
			respondPaymentError(c, err)
			return
		}
		if rdb != nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, wallet, 60*time.Second)
		}
		c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": false})
	}
}

// GetTransactionHistoryHandler returns the caller's slice of the ledger,
// newest first, paginated and cached.
func GetTransactionHistoryHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var wallet domain.Wallet
		if err := db.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
			return
		}
		page, pageSize := pagination(c)
		ctx := c.Request.Context()
		cacheKey := utils.HistoryCacheKey(userID, page, pageSize)
		if rdb != nil {
			var cached historyPage
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{
					"transactions": cached.Transactions,
					"page":         cached.Page,
					"page_size":    cached.PageSize,
					"total":        cached.Total,
					"total_pages":  cached.TotalPages,
					"cached":       true,
				})
				return
			}
		}
		var total int64
		if err := db.Model(&domain.Transaction{}).
			Where("sender_wallet_id = ? OR receiver_wallet_id = ?", wallet.ID, wallet.ID).
			Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count transactions"})
			return
		}
		var transactions []domain.Transaction
		if err := db.Where("sender_wallet_id = ? OR receiver_wallet_id = ?", wallet.ID, wallet.ID).
			Order("created_at desc").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&transactions).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		resp := historyPage{
			Transactions: transactions,
			Page:         page,
			PageSize:     pageSize,
			Total:        total,
			TotalPages:   (int(total) + pageSize - 1) / pageSize,
		}
		if rdb != nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": resp.Transactions,
			"page":         resp.Page,
			"page_size":    resp.PageSize,
			"total":        resp.Total,
			"total_pages":  resp.TotalPages,
			"cached":       false,
		})
	}
}

type historyPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
}

// respondPaymentError maps engine error kinds to status codes. DuplicateKey
// never reaches here: the engine converts it into the winner's record.
func respondPaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
	case errors.Is(err, domain.ErrSelfTransfer):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot transfer to yourself"})
	case errors.Is(err, domain.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
	case errors.Is(err, domain.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
	case errors.Is(err, domain.ErrTransferTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Transfer timed out, retry with the same Idempotency-Key"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Transfer failed"})
	}
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, pageSize = 1, 20
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
