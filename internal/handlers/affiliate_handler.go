package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"affiliate-service/internal/auth"
	"affiliate-service/internal/models"
	"affiliate-service/internal/services"
	"affiliate-service/internal/throttle"
)

const (
	visitorCookie    = "aff_visitor"
	visitorHeader    = "X-Visitor-Id"
	visitorCookieAge = 30 * 24 * 60 * 60
)

type AffiliateHandler struct {
	users       *services.UserService
	ledger      *services.ReferralLedger
	stats       *services.StatsService
	payouts     *services.PayoutService
	throttle    *throttle.ClickThrottle
	frontendURL string
	log         *zap.Logger
}

func NewAffiliateHandler(
	users *services.UserService,
	ledger *services.ReferralLedger,
	stats *services.StatsService,
	payouts *services.PayoutService,
	clickThrottle *throttle.ClickThrottle,
	frontendURL string,
	log *zap.Logger,
) *AffiliateHandler {
	return &AffiliateHandler{
		users:       users,
		ledger:      ledger,
		stats:       stats,
		payouts:     payouts,
		throttle:    clickThrottle,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		log:         log.Named("affiliate_handler"),
	}
}

// visitorKey identifies the anonymous browser behind a request, if known.
func visitorKey(c *gin.Context) string {
	if v, err := c.Cookie(visitorCookie); err == nil && v != "" {
		return v
	}
	return c.GetHeader(visitorHeader)
}

// ensureVisitor returns the visitor key, issuing a cookie when the browser has none.
func ensureVisitor(c *gin.Context) string {
	if v := visitorKey(c); v != "" {
		return v
	}
	v := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookie, v, visitorCookieAge, "/", "", false, true)
	return v
}

// TrackClick records a click on an affiliate link. Public.
// POST /api/affiliate/track-click
func (h *AffiliateHandler) TrackClick(c *gin.Context) {
	var req struct {
		AffiliateCode string `json:"affiliateCode" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "affiliateCode is required"})
		return
	}

	ctx := c.Request.Context()
	affiliate, err := h.users.LookupByAffiliateCode(ctx, req.AffiliateCode)
	if err != nil {
		if errors.Is(err, services.ErrUnknownAffiliateCode) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Invalid affiliate code"})
			return
		}
		h.log.Error("failed to resolve affiliate code", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to track click"})
		return
	}

	visitor := ensureVisitor(c)
	allowed, err := h.throttle.Allow(ctx, affiliate.AffiliateCode, visitor)
	if err != nil {
		h.log.Warn("click throttle unavailable", zap.Error(err))
	}
	if !allowed {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if err := h.ledger.RecordClickFor(ctx, affiliate, visitor); err != nil {
		h.log.Error("failed to record click", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to track click"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStats returns the caller's aggregate affiliate stats
// GET /api/affiliate/stats
func (h *AffiliateHandler) GetStats(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, err := h.stats.GetAffiliateStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalEarnings":    stats.TotalEarnings.StringFixed(2),
		"totalReferrals":   stats.TotalReferrals,
		"totalConversions": stats.TotalConversions,
		"totalClicks":      stats.TotalClicks,
	})
}

// GetSummary returns stats plus conversion rate and payout position
// GET /api/affiliate/summary
func (h *AffiliateHandler) GetSummary(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	summary, err := h.stats.GetAffiliateSummary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalEarnings":    summary.TotalEarnings.StringFixed(2),
		"totalReferrals":   summary.TotalReferrals,
		"totalConversions": summary.TotalConversions,
		"totalClicks":      summary.TotalClicks,
		"conversionRate":   summary.ConversionRate.StringFixed(1),
		"paidOut":          summary.PaidOut.StringFixed(2),
		"availableBalance": summary.AvailableBalance.StringFixed(2),
		"payoutThreshold":  summary.PayoutThreshold.StringFixed(2),
		"canRequestPayout": summary.CanRequestPayout,
	})
}

// GetCode returns the caller's affiliate code and shareable link
// GET /api/affiliate/code
func (h *AffiliateHandler) GetCode(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"affiliateCode": user.AffiliateCode,
		"referralLink":  h.frontendURL + "/auth?ref=" + user.AffiliateCode,
	})
}

type referralView struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Clicks      int64     `json:"clicks"`
	Signups     int64     `json:"signups"`
	Conversions int64     `json:"conversions"`
	Commission  string    `json:"commission"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newReferralView(r *models.ReferralTracking) referralView {
	v := referralView{
		ID:          r.ID,
		Clicks:      r.Clicks,
		Signups:     r.Signups,
		Conversions: r.Conversions,
		Commission:  r.Commission.StringFixed(2),
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
	}
	if r.ReferredUserID != nil {
		v.UserID = *r.ReferredUserID
	}
	if r.ReferredUser != nil {
		v.Email = r.ReferredUser.Email
		v.Name = r.ReferredUser.Name
	}
	return v
}

// GetReferrals lists the users the caller referred
// GET /api/affiliate/referrals
func (h *AffiliateHandler) GetReferrals(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	records, err := h.ledger.ListReferrals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	views := make([]referralView, 0, len(records))
	for _, r := range records {
		views = append(views, newReferralView(r))
	}
	c.JSON(http.StatusOK, gin.H{"referrals": views})
}

type payoutView struct {
	ID          uuid.UUID  `json:"id"`
	Amount      string     `json:"amount"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
}

func newPayoutView(p *models.Payout) payoutView {
	return payoutView{
		ID:          p.ID,
		Amount:      p.Amount.StringFixed(2),
		Status:      p.Status,
		RequestedAt: p.RequestedAt,
		PaidAt:      p.PaidAt,
	}
}

// GetPayouts lists the caller's payout requests
// GET /api/affiliate/payouts
func (h *AffiliateHandler) GetPayouts(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	payouts, err := h.payouts.ListPayouts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	views := make([]payoutView, 0, len(payouts))
	for _, p := range payouts {
		views = append(views, newPayoutView(p))
	}
	c.JSON(http.StatusOK, gin.H{"payouts": views})
}

// RequestPayout opens a payout request for the caller's available balance
// POST /api/affiliate/payouts
func (h *AffiliateHandler) RequestPayout(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	payout, err := h.payouts.RequestPayout(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payout": newPayoutView(payout)})
}
