package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"affiliate-service/internal/repository"
)

// AffiliateStats is the aggregate of an affiliate's tracking records.
type AffiliateStats struct {
	TotalEarnings    decimal.Decimal
	TotalReferrals   int64
	TotalConversions int64
	TotalClicks      int64
}

// AffiliateSummary extends the stats with conversion rate and payout position.
type AffiliateSummary struct {
	AffiliateStats
	ConversionRate   decimal.Decimal
	PaidOut          decimal.Decimal
	AvailableBalance decimal.Decimal
	PayoutThreshold  decimal.Decimal
	CanRequestPayout bool
}

// StatsService reads affiliate aggregates. Results may trail concurrent writers.
type StatsService struct {
	repo      *repository.Repository
	threshold decimal.Decimal
}

// NewStatsService creates a new StatsService
func NewStatsService(repo *repository.Repository, payoutThreshold decimal.Decimal) *StatsService {
	return &StatsService{repo: repo, threshold: payoutThreshold}
}

// GetAffiliateStats sums the affiliate's records in one query; no records means all zeros.
func (s *StatsService) GetAffiliateStats(ctx context.Context, affiliateID uuid.UUID) (*AffiliateStats, error) {
	totals, err := s.repo.SumAffiliateTotals(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate affiliate stats: %w", err)
	}
	return &AffiliateStats{
		TotalEarnings:    totals.TotalEarnings.Round(2),
		TotalReferrals:   totals.TotalReferrals,
		TotalConversions: totals.TotalConversions,
		TotalClicks:      totals.TotalClicks,
	}, nil
}

// GetAffiliateSummary returns the stats plus what the affiliate can still withdraw.
func (s *StatsService) GetAffiliateSummary(ctx context.Context, affiliateID uuid.UUID) (*AffiliateSummary, error) {
	stats, err := s.GetAffiliateStats(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	paid, err := s.repo.SumPayouts(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payouts: %w", err)
	}
	paid = paid.Round(2)
	available := stats.TotalEarnings.Sub(paid)

	return &AffiliateSummary{
		AffiliateStats:   *stats,
		ConversionRate:   ComputeConversionRate(stats.TotalConversions, stats.TotalReferrals),
		PaidOut:          paid,
		AvailableBalance: available,
		PayoutThreshold:  s.threshold,
		CanRequestPayout: CanRequestPayout(available, s.threshold),
	}, nil
}

var hundred = decimal.NewFromInt(100)

// ComputeConversionRate returns conversions as a percentage of referrals, one decimal place.
// Zero referrals yields 0.
func ComputeConversionRate(conversions, referrals int64) decimal.Decimal {
	if referrals == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(conversions).Mul(hundred).Div(decimal.NewFromInt(referrals)).Round(1)
}
