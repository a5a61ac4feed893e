package repository

import (
	"context"
	"strings"
	"time"

	"affiliate-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn against a repository bound to a single database transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// AffiliateTotals is the raw aggregate over an affiliate's tracking records.
type AffiliateTotals struct {
	TotalEarnings    decimal.Decimal
	TotalReferrals   int64
	TotalConversions int64
	TotalClicks      int64
}

// CreateUser inserts a new user
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByID retrieves a user by ID
func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by normalized email
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByAffiliateCode retrieves the owner of an affiliate code
func (r *Repository) GetUserByAffiliateCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("affiliate_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) exists(ctx context.Context, column string, value interface{}) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value).Count(&count).Error
	return count > 0, err
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username", username)
}

func (r *Repository) AffiliateCodeExists(ctx context.Context, code string) (bool, error) {
	return r.exists(ctx, "affiliate_code", code)
}

// UpsertClick creates the click record for attributionKey or bumps its click counter.
func (r *Repository) UpsertClick(ctx context.Context, affiliateID uuid.UUID, attributionKey string, now time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO referral_tracking
			(id, affiliate_id, attribution_key, clicks, signups, conversions, commission, status, created_at, updated_at)
		VALUES (?, ?, ?, 1, 0, 0, 0, ?, ?, ?)
		ON CONFLICT (affiliate_id, attribution_key)
		DO UPDATE SET clicks = referral_tracking.clicks + 1, updated_at = excluded.updated_at`,
		uuid.New(), affiliateID, attributionKey, models.TrackingStatusPending, now, now,
	).Error
}

// ClaimClickForSignup attaches referredUserID to an unclaimed click record and counts the signup.
// Returns false when no such click record exists.
func (r *Repository) ClaimClickForSignup(
	ctx context.Context,
	affiliateID uuid.UUID,
	clickKey string,
	referredUserID uuid.UUID,
	userKey string,
	now time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ReferralTracking{}).
		Where("affiliate_id = ? AND attribution_key = ? AND referred_user_id IS NULL", affiliateID, clickKey).
		Updates(map[string]interface{}{
			"referred_user_id": referredUserID,
			"attribution_key":  userKey,
			"signups":          gorm.Expr("signups + ?", 1),
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateTracking inserts a tracking record
func (r *Repository) CreateTracking(ctx context.Context, record *models.ReferralTracking) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// IncrementConversion adds one conversion and the given commission to the referral record.
// Returns the number of rows touched; zero means no signup was recorded for the pair.
func (r *Repository) IncrementConversion(
	ctx context.Context,
	affiliateID, referredUserID uuid.UUID,
	commission decimal.Decimal,
	now time.Time,
) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ReferralTracking{}).
		Where("affiliate_id = ? AND referred_user_id = ?", affiliateID, referredUserID).
		Updates(map[string]interface{}{
			"conversions": gorm.Expr("conversions + ?", 1),
			"commission":  gorm.Expr("commission + ?", commission),
			"updated_at":  now,
		})
	return result.RowsAffected, result.Error
}

// CreateProcessedCharge records a credited billing reference; a repeat reference is a duplicate key.
func (r *Repository) CreateProcessedCharge(ctx context.Context, charge *models.ProcessedCharge) error {
	return r.db.WithContext(ctx).Create(charge).Error
}

// SumAffiliateTotals aggregates all tracking records of an affiliate in one query.
func (r *Repository) SumAffiliateTotals(ctx context.Context, affiliateID uuid.UUID) (*AffiliateTotals, error) {
	var totals AffiliateTotals
	err := r.db.WithContext(ctx).
		Model(&models.ReferralTracking{}).
		Select(`COALESCE(SUM(commission), 0) AS total_earnings,
			COALESCE(SUM(signups), 0) AS total_referrals,
			COALESCE(SUM(conversions), 0) AS total_conversions,
			COALESCE(SUM(clicks), 0) AS total_clicks`).
		Where("affiliate_id = ?", affiliateID).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// ListReferrals returns an affiliate's records that have a referred user, newest first.
func (r *Repository) ListReferrals(ctx context.Context, affiliateID uuid.UUID) ([]*models.ReferralTracking, error) {
	var records []*models.ReferralTracking
	err := r.db.WithContext(ctx).
		Preload("ReferredUser").
		Where("affiliate_id = ? AND referred_user_id IS NOT NULL", affiliateID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// MarkTrackingPaid flags the affiliate's pending records that carry commission as paid.
func (r *Repository) MarkTrackingPaid(ctx context.Context, affiliateID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ReferralTracking{}).
		Where("affiliate_id = ? AND status = ? AND commission > 0", affiliateID, models.TrackingStatusPending).
		Updates(map[string]interface{}{
			"status":     models.TrackingStatusPaid,
			"updated_at": now,
		}).Error
}

// SumPayouts returns the total amount of every payout request of an affiliate, open or paid.
func (r *Repository) SumPayouts(ctx context.Context, affiliateID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ?", affiliateID).
		Row().Scan(&total)
	return total, err
}

// HasOpenPayout reports whether the affiliate has a payout awaiting payment.
func (r *Repository) HasOpenPayout(ctx context.Context, affiliateID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, models.PayoutStatusRequested).
		Count(&count).Error
	return count > 0, err
}

// CreatePayout inserts a payout request
func (r *Repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// GetPayoutByID retrieves a payout by ID
func (r *Repository) GetPayoutByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Where("id = ?", payoutID).First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// SettlePayout moves a requested payout to paid and frees the affiliate's open slot.
// Returns the number of rows touched; zero means the payout was not awaiting payment.
func (r *Repository) SettlePayout(ctx context.Context, payoutID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", payoutID, models.PayoutStatusRequested).
		Updates(map[string]interface{}{
			"status":    models.PayoutStatusPaid,
			"open_slot": gorm.Expr("NULL"),
			"paid_at":   now,
		})
	return result.RowsAffected, result.Error
}

// ListPayouts returns the payouts of an affiliate, newest first.
func (r *Repository) ListPayouts(ctx context.Context, affiliateID uuid.UUID) ([]*models.Payout, error) {
	var payouts []*models.Payout
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("requested_at DESC").
		Find(&payouts).Error
	return payouts, err
}
