package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-service/internal/models"
)

// earn gives the affiliate exactly amount of commission through one conversion.
func earn(t *testing.T, env *testEnv, affiliateID, referredID uuid.UUID, charge string) {
	t.Helper()
	_, err := env.ledger.RecordConversion(context.Background(), affiliateID, referredID, dec(charge))
	require.NoError(t, err)
}

func TestGetAffiliateStatsWithoutRecords(t *testing.T) {
	env := newTestEnv(t)
	affiliate := env.createUser(t, "new@example.com", "REFNEW00001")

	stats, err := env.stats.GetAffiliateStats(context.Background(), affiliate.ID)
	require.NoError(t, err)
	assert.True(t, stats.TotalEarnings.IsZero())
	assert.Zero(t, stats.TotalReferrals)
	assert.Zero(t, stats.TotalConversions)
	assert.Zero(t, stats.TotalClicks)
}

func TestRequestPayoutBelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	affiliate, referred := env.referredPair(t)
	earn(t, env, affiliate.ID, referred.ID, "249.95") // 49.99

	_, err := env.payouts.RequestPayout(context.Background(), affiliate.ID)
	assert.ErrorIs(t, err, ErrBelowPayoutThreshold)
}

func TestPayoutLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	affiliate, referred := env.referredPair(t)
	earn(t, env, affiliate.ID, referred.ID, "250.00") // 50.00

	payout, err := env.payouts.RequestPayout(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusRequested, payout.Status)
	assert.Equal(t, "50.00", payout.Amount.StringFixed(2))

	_, err = env.payouts.RequestPayout(ctx, affiliate.ID)
	assert.ErrorIs(t, err, ErrPayoutAlreadyRequested)

	summary, err := env.stats.GetAffiliateSummary(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", summary.AvailableBalance.StringFixed(2))
	assert.False(t, summary.CanRequestPayout)

	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.payouts.now = fixedClock(paidAt)

	paid, err := env.payouts.MarkPayoutPaid(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paidAt.Equal(*paid.PaidAt))

	_, err = env.payouts.MarkPayoutPaid(ctx, payout.ID)
	assert.ErrorIs(t, err, ErrInvalidPayoutTransition)

	var pending int64
	require.NoError(t, env.db.Model(&models.ReferralTracking{}).
		Where("affiliate_id = ? AND status = ?", affiliate.ID, models.TrackingStatusPending).
		Count(&pending).Error)
	assert.Zero(t, pending)

	// lifetime earnings are not reset by a payout
	stats, err := env.stats.GetAffiliateStats(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", stats.TotalEarnings.StringFixed(2))

	// the slot is free again once more commission accrues
	earn(t, env, affiliate.ID, referred.ID, "300.00") // 60.00
	next, err := env.payouts.RequestPayout(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, "60.00", next.Amount.StringFixed(2))

	history, err := env.payouts.ListPayouts(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMarkPayoutPaidUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.payouts.MarkPayoutPaid(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPayoutNotFound)
}

func TestAffiliateSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	affiliate, referred := env.referredPair(t)
	_, err := env.ledger.RecordClick(ctx, affiliate.AffiliateCode, "v1")
	require.NoError(t, err)

	second, err := env.users.CreateUser(ctx, CreateUserRequest{Email: "second@example.com", PasswordHash: "x", ReferredBy: &affiliate.ID})
	require.NoError(t, err)
	require.NoError(t, env.ledger.RecordSignup(ctx, affiliate.ID, second.ID, ""))

	earn(t, env, affiliate.ID, referred.ID, "300.00")

	summary, err := env.stats.GetAffiliateSummary(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalReferrals)
	assert.Equal(t, int64(1), summary.TotalConversions)
	assert.Equal(t, "50.0", summary.ConversionRate.StringFixed(1))
	assert.Equal(t, "60.00", summary.AvailableBalance.StringFixed(2))
	assert.True(t, summary.CanRequestPayout)
}

func TestMarkPayoutPaidLeavesCancelledRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	affiliate, referred := env.referredPair(t)
	earn(t, env, affiliate.ID, referred.ID, "250.00")

	other, err := env.users.CreateUser(ctx, CreateUserRequest{
		Email:        "other@example.com",
		PasswordHash: "x",
		ReferredBy:   &affiliate.ID,
	})
	require.NoError(t, err)
	require.NoError(t, env.ledger.RecordSignup(ctx, affiliate.ID, other.ID, ""))
	earn(t, env, affiliate.ID, other.ID, "10.00")
	require.NoError(t, env.db.Model(&models.ReferralTracking{}).
		Where("affiliate_id = ? AND referred_user_id = ?", affiliate.ID, other.ID).
		Update("status", models.TrackingStatusCancelled).Error)

	payout, err := env.payouts.RequestPayout(ctx, affiliate.ID)
	require.NoError(t, err)
	_, err = env.payouts.MarkPayoutPaid(ctx, payout.ID)
	require.NoError(t, err)

	var cancelled models.ReferralTracking
	require.NoError(t, env.db.Where("affiliate_id = ? AND referred_user_id = ?", affiliate.ID, other.ID).
		First(&cancelled).Error)
	assert.Equal(t, models.TrackingStatusCancelled, cancelled.Status)

	var settled models.ReferralTracking
	require.NoError(t, env.db.Where("affiliate_id = ? AND referred_user_id = ?", affiliate.ID, referred.ID).
		First(&settled).Error)
	assert.Equal(t, models.TrackingStatusPaid, settled.Status)
}
