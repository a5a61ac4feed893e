package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"affiliate-service/internal/jobs"
)

const internalKeyHeader = "X-Internal-Key"

// InternalKeyMiddleware admits only callers presenting the shared internal key.
// An empty key disables the internal routes entirely.
func InternalKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(internalKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// BillingHandler receives payment events from the billing collaborator.
type BillingHandler struct {
	dispatcher *jobs.ChargeDispatcher
	log        *zap.Logger
}

func NewBillingHandler(dispatcher *jobs.ChargeDispatcher, log *zap.Logger) *BillingHandler {
	return &BillingHandler{
		dispatcher: dispatcher,
		log:        log.Named("billing_handler"),
	}
}

// RecordCharge accepts a successful payment of a user
// POST /internal/billing/charges
func (h *BillingHandler) RecordCharge(c *gin.Context) {
	var req struct {
		UserID    string           `json:"userId" binding:"required"`
		Amount    *decimal.Decimal `json:"amount" binding:"required"`
		Reference string           `json:"reference" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), jobs.ChargePayload{
		UserID:    userID,
		Amount:    *req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusOK
	if outcome == jobs.OutcomeQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"status": outcome})
}
