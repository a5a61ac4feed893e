package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"affiliate-service/internal/database"
	"affiliate-service/internal/metrics"
	"affiliate-service/internal/models"
	"affiliate-service/internal/repository"
)

const (
	clickKeyPrefix = "click:"
	userKeyPrefix  = "user:"
)

// ReferralLedger records clicks, signups and conversions against affiliates.
// Every counter change is a single atomic statement; no in-process locking.
type ReferralLedger struct {
	repo        *repository.Repository
	users       *UserService
	defaultRate decimal.Decimal
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// NewReferralLedger creates a new ReferralLedger
func NewReferralLedger(
	repo *repository.Repository,
	users *UserService,
	defaultRate decimal.Decimal,
	m *metrics.Metrics,
	log *zap.Logger,
) *ReferralLedger {
	return &ReferralLedger{
		repo:        repo,
		users:       users,
		defaultRate: defaultRate,
		metrics:     m,
		log:         log.Named("ledger"),
		now:         time.Now,
	}
}

// WithRepo returns a copy of the ledger bound to repo, typically a transaction.
func (l *ReferralLedger) WithRepo(repo *repository.Repository) *ReferralLedger {
	clone := *l
	clone.repo = repo
	clone.users = l.users.WithRepo(repo)
	return &clone
}

func clickKey(visitorKey string) string {
	return clickKeyPrefix + visitorKey
}

func userKey(userID uuid.UUID) string {
	return userKeyPrefix + userID.String()
}

// RecordClick resolves the affiliate code and counts one click for the visitor.
// Every call increments; de-duplication is up to the caller.
func (l *ReferralLedger) RecordClick(ctx context.Context, affiliateCode, visitorKey string) (*models.User, error) {
	affiliate, err := l.users.LookupByAffiliateCode(ctx, affiliateCode)
	if err != nil {
		return nil, err
	}
	if err := l.RecordClickFor(ctx, affiliate, visitorKey); err != nil {
		return nil, err
	}
	return affiliate, nil
}

// RecordClickFor counts one click for an affiliate the caller already resolved.
func (l *ReferralLedger) RecordClickFor(ctx context.Context, affiliate *models.User, visitorKey string) error {
	visitorKey = strings.TrimSpace(visitorKey)
	if visitorKey == "" {
		visitorKey = "anonymous"
	}

	if err := l.repo.UpsertClick(ctx, affiliate.ID, clickKey(visitorKey), l.now()); err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}

	l.metrics.Click()
	l.log.Debug("click recorded",
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.String("visitor", visitorKey))
	return nil
}

// RecordSignup attributes referredUserID to the affiliate. A click record left by the same
// visitor is claimed when present, otherwise a new record is created.
func (l *ReferralLedger) RecordSignup(ctx context.Context, affiliateID, referredUserID uuid.UUID, visitorKey string) error {
	if affiliateID == referredUserID {
		return ErrSelfReferral
	}

	now := l.now()
	key := userKey(referredUserID)

	if visitorKey = strings.TrimSpace(visitorKey); visitorKey != "" {
		claimed, err := l.repo.ClaimClickForSignup(ctx, affiliateID, clickKey(visitorKey), referredUserID, key, now)
		if err != nil {
			if database.IsDuplicateKeyErr(err) {
				return ErrDuplicateSignupAttribution
			}
			return fmt.Errorf("failed to claim click: %w", err)
		}
		if claimed {
			l.signupRecorded(affiliateID, referredUserID, true)
			return nil
		}
	}

	record := &models.ReferralTracking{
		ID:             uuid.New(),
		AffiliateID:    affiliateID,
		ReferredUserID: &referredUserID,
		AttributionKey: key,
		Signups:        1,
		Commission:     decimal.Zero,
		Status:         models.TrackingStatusPending,
	}
	if err := l.repo.CreateTracking(ctx, record); err != nil {
		if database.IsDuplicateKeyErr(err) {
			return ErrDuplicateSignupAttribution
		}
		return fmt.Errorf("failed to record signup: %w", err)
	}

	l.signupRecorded(affiliateID, referredUserID, false)
	return nil
}

func (l *ReferralLedger) signupRecorded(affiliateID, referredUserID uuid.UUID, fromClick bool) {
	l.metrics.Signup()
	l.log.Info("signup attributed",
		zap.String("affiliate_id", affiliateID.String()),
		zap.String("referred_user_id", referredUserID.String()),
		zap.Bool("from_click", fromClick))
}

// RecordConversion credits commission for one payment of a referred user.
// Each payment counts, so recurring subscriptions accrue recurring commission.
func (l *ReferralLedger) RecordConversion(
	ctx context.Context,
	affiliateID, referredUserID uuid.UUID,
	chargeAmount decimal.Decimal,
) (decimal.Decimal, error) {
	if chargeAmount.IsNegative() {
		return decimal.Zero, ErrInvalidChargeAmount
	}

	rate, err := l.rateFor(ctx, affiliateID)
	if err != nil {
		return decimal.Zero, err
	}

	commission, err := ComputeCommission(chargeAmount, rate)
	if err != nil {
		return decimal.Zero, err
	}

	rows, err := l.repo.IncrementConversion(ctx, affiliateID, referredUserID, commission, l.now())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to record conversion: %w", err)
	}
	if rows == 0 {
		return decimal.Zero, ErrUnknownReferral
	}

	l.metrics.Conversion(commission)
	l.log.Info("conversion recorded",
		zap.String("affiliate_id", affiliateID.String()),
		zap.String("referred_user_id", referredUserID.String()),
		zap.String("charge", chargeAmount.StringFixed(2)),
		zap.String("commission", commission.StringFixed(2)))
	return commission, nil
}

// rateFor returns the affiliate's own commission rate when set, the program default otherwise.
func (l *ReferralLedger) rateFor(ctx context.Context, affiliateID uuid.UUID) (decimal.Decimal, error) {
	affiliate, err := l.repo.GetUserByID(ctx, affiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrUnknownAffiliate
		}
		return decimal.Zero, fmt.Errorf("failed to load affiliate: %w", err)
	}
	if affiliate.CommissionRate != nil {
		return *affiliate.CommissionRate, nil
	}
	return l.defaultRate, nil
}

// ProcessCharge credits the referrer of the paying user, if any. A non-empty reference is
// stored with the conversion in one transaction, so a charge delivered twice is credited once
// and the repeat returns ErrDuplicateCharge.
func (l *ReferralLedger) ProcessCharge(
	ctx context.Context,
	userID uuid.UUID,
	chargeAmount decimal.Decimal,
	reference string,
) (decimal.Decimal, error) {
	if chargeAmount.IsNegative() {
		return decimal.Zero, ErrInvalidChargeAmount
	}

	user, err := l.users.GetUserByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if user.ReferredBy == nil {
		return decimal.Zero, ErrNotReferred
	}

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return l.RecordConversion(ctx, *user.ReferredBy, user.ID, chargeAmount)
	}

	var commission decimal.Decimal
	err = l.repo.Transaction(ctx, func(tx *repository.Repository) error {
		err := tx.CreateProcessedCharge(ctx, &models.ProcessedCharge{
			Reference:   reference,
			UserID:      user.ID,
			AffiliateID: *user.ReferredBy,
			Amount:      chargeAmount,
			ProcessedAt: l.now(),
		})
		if err != nil {
			if database.IsDuplicateKeyErr(err) {
				return ErrDuplicateCharge
			}
			return fmt.Errorf("failed to record charge reference: %w", err)
		}

		commission, err = l.WithRepo(tx).RecordConversion(ctx, *user.ReferredBy, user.ID, chargeAmount)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCharge) {
			l.log.Info("duplicate charge ignored", zap.String("reference", reference))
		}
		return decimal.Zero, err
	}
	return commission, nil
}

// ListReferrals returns the affiliate's attributed signups with the referred users loaded.
func (l *ReferralLedger) ListReferrals(ctx context.Context, affiliateID uuid.UUID) ([]*models.ReferralTracking, error) {
	records, err := l.repo.ListReferrals(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return records, nil
}
