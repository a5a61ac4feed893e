package services

import (
	"context"
	"errors"
	"fmt"
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

// DefaultPayoutThreshold is the minimum balance an affiliate needs before requesting a payout.
var DefaultPayoutThreshold = decimal.RequireFromString("50.00")

// CanRequestPayout reports whether totalEarnings reaches minimumThreshold.
func CanRequestPayout(totalEarnings, minimumThreshold decimal.Decimal) bool {
	return totalEarnings.GreaterThanOrEqual(minimumThreshold)
}

// PayoutService manages payout requests: requested -> paid.
// Disbursement happens outside the service; an admin marks the request paid afterwards.
type PayoutService struct {
	repo      *repository.Repository
	threshold decimal.Decimal
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewPayoutService(
	repo *repository.Repository,
	threshold decimal.Decimal,
	m *metrics.Metrics,
	log *zap.Logger,
) *PayoutService {
	return &PayoutService{
		repo:      repo,
		threshold: threshold,
		metrics:   m,
		log:       log.Named("payouts"),
		now:       time.Now,
	}
}

// RequestPayout opens a payout request for the affiliate's whole available balance.
func (ps *PayoutService) RequestPayout(ctx context.Context, affiliateID uuid.UUID) (*models.Payout, error) {
	open, err := ps.repo.HasOpenPayout(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open payouts: %w", err)
	}
	if open {
		return nil, ErrPayoutAlreadyRequested
	}

	totals, err := ps.repo.SumAffiliateTotals(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate earnings: %w", err)
	}
	paid, err := ps.repo.SumPayouts(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payouts: %w", err)
	}

	available := totals.TotalEarnings.Sub(paid).Round(2)
	if !CanRequestPayout(available, ps.threshold) {
		return nil, ErrBelowPayoutThreshold
	}

	openSlot := 1
	payout := &models.Payout{
		ID:          uuid.New(),
		AffiliateID: affiliateID,
		Amount:      available,
		Status:      models.PayoutStatusRequested,
		OpenSlot:    &openSlot,
		RequestedAt: ps.now(),
	}
	if err := ps.repo.CreatePayout(ctx, payout); err != nil {
		if database.IsDuplicateKeyErr(err) {
			return nil, ErrPayoutAlreadyRequested
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	ps.metrics.Payout(models.PayoutStatusRequested)
	ps.log.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("affiliate_id", affiliateID.String()),
		zap.String("amount", payout.Amount.StringFixed(2)))
	return payout, nil
}

// MarkPayoutPaid settles a requested payout and marks the affiliate's accrued records paid.
func (ps *PayoutService) MarkPayoutPaid(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	var settled *models.Payout
	err := ps.repo.Transaction(ctx, func(tx *repository.Repository) error {
		payout, err := tx.GetPayoutByID(ctx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPayoutNotFound
			}
			return err
		}

		now := ps.now()
		rows, err := tx.SettlePayout(ctx, payoutID, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidPayoutTransition
		}

		if err := tx.MarkTrackingPaid(ctx, payout.AffiliateID, now); err != nil {
			return err
		}

		payout.Status = models.PayoutStatusPaid
		payout.OpenSlot = nil
		payout.PaidAt = &now
		settled = payout
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPayoutNotFound) || errors.Is(err, ErrInvalidPayoutTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to mark payout paid: %w", err)
	}

	ps.metrics.Payout(models.PayoutStatusPaid)
	ps.log.Info("payout paid",
		zap.String("payout_id", settled.ID.String()),
		zap.String("affiliate_id", settled.AffiliateID.String()),
		zap.String("amount", settled.Amount.StringFixed(2)))
	return settled, nil
}

// ListPayouts returns the affiliate's payout history, newest first.
func (ps *PayoutService) ListPayouts(ctx context.Context, affiliateID uuid.UUID) ([]*models.Payout, error) {
	payouts, err := ps.repo.ListPayouts(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, nil
}
