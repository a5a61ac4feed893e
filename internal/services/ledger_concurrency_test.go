package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"affiliate-service/internal/database"
	"affiliate-service/internal/models"
	"affiliate-service/internal/repository"
)

const concurrentCallers = 16

// newConcurrentTestEnv backs the services with a WAL file database and a multi-connection
// pool so calls from different goroutines overlap; writers wait on the busy timeout.
func newConcurrentTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate",
		filepath.Join(t.TempDir(), "ledger.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(concurrentCallers)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	log := zap.NewNop()
	repo := repository.NewRepository(db)
	users := NewUserService(repo, "REF", log)
	ledger := NewReferralLedger(repo, users, DefaultCommissionRate, nil, log)
	return &testEnv{
		db:     db,
		repo:   repo,
		users:  users,
		ledger: ledger,
		stats:  NewStatsService(repo, DefaultPayoutThreshold),
	}
}

// runConcurrently starts n callers together and collects their errors.
func runConcurrently(n int, call func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = call(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentClicksAreAllCounted(t *testing.T) {
	env := newConcurrentTestEnv(t)
	ctx := context.Background()
	affiliate := env.createUser(t, "affiliate@example.com", "REFCONCUR01")

	errs := runConcurrently(concurrentCallers, func(i int) error {
		visitor := "shared-visitor"
		if i%2 == 1 {
			visitor = fmt.Sprintf("visitor-%d", i)
		}
		_, err := env.ledger.RecordClick(ctx, affiliate.AffiliateCode, visitor)
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	stats, err := env.stats.GetAffiliateStats(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(concurrentCallers), stats.TotalClicks)

	var shared models.ReferralTracking
	require.NoError(t, env.db.Where("affiliate_id = ? AND attribution_key = ?", affiliate.ID, "click:shared-visitor").
		First(&shared).Error)
	assert.Equal(t, int64(concurrentCallers/2), shared.Clicks)
}

func TestConcurrentDuplicateSignupsCountOnce(t *testing.T) {
	for _, visitor := range []string{"", "visitor-1"} {
		t.Run(fmt.Sprintf("visitor=%q", visitor), func(t *testing.T) {
			env := newConcurrentTestEnv(t)
			ctx := context.Background()
			affiliate := env.createUser(t, "affiliate@example.com", "REFCONCUR02")
			referred := env.createUser(t, "referred@example.com", "REFCONCUR03")

			if visitor != "" {
				_, err := env.ledger.RecordClick(ctx, affiliate.AffiliateCode, visitor)
				require.NoError(t, err)
			}

			errs := runConcurrently(concurrentCallers, func(int) error {
				return env.ledger.RecordSignup(ctx, affiliate.ID, referred.ID, visitor)
			})

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrDuplicateSignupAttribution)
			}
			assert.Equal(t, 1, succeeded)

			stats, err := env.stats.GetAffiliateStats(ctx, affiliate.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.TotalReferrals)
		})
	}
}

func TestConcurrentConversionsAccumulateExactly(t *testing.T) {
	env := newConcurrentTestEnv(t)
	ctx := context.Background()
	affiliate, referred := env.referredPair(t)

	errs := runConcurrently(concurrentCallers, func(int) error {
		_, err := env.ledger.RecordConversion(ctx, affiliate.ID, referred.ID, dec("79.00"))
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	stats, err := env.stats.GetAffiliateStats(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(concurrentCallers), stats.TotalConversions)
	assert.Equal(t, dec("15.80").Mul(dec(fmt.Sprint(concurrentCallers))).StringFixed(2), stats.TotalEarnings.StringFixed(2))
}

func TestConcurrentRedeliveredChargeIsCreditedOnce(t *testing.T) {
	env := newConcurrentTestEnv(t)
	ctx := context.Background()
	affiliate, referred := env.referredPair(t)

	errs := runConcurrently(concurrentCallers, func(int) error {
		_, err := env.ledger.ProcessCharge(ctx, referred.ID, dec("79.00"), "ch_storm")
		return err
	})

	credited := 0
	for _, err := range errs {
		if err == nil {
			credited++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateCharge)
	}
	assert.Equal(t, 1, credited)

	stats, err := env.stats.GetAffiliateStats(ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalConversions)
	assert.Equal(t, "15.80", stats.TotalEarnings.StringFixed(2))
}
