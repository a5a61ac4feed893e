package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"affiliate-service/internal/services"
)

type AdminHandler struct {
	payouts *services.PayoutService
	log     *zap.Logger
}

func NewAdminHandler(payouts *services.PayoutService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		payouts: payouts,
		log:     log.Named("admin_handler"),
	}
}

// MarkPayoutPaid records that a payout was disbursed
// POST /api/admin/payouts/:id/paid
func (h *AdminHandler) MarkPayoutPaid(c *gin.Context) {
	payoutID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payout ID"})
		return
	}

	payout, err := h.payouts.MarkPayoutPaid(c.Request.Context(), payoutID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payout": newPayoutView(payout)})
}
