package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"affiliate-service/internal/database"
	"affiliate-service/internal/models"
	"affiliate-service/internal/repository"
)

// setupTestDB opens a private in-memory database for one test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

type testEnv struct {
	db      *gorm.DB
	repo    *repository.Repository
	users   *UserService
	ledger  *ReferralLedger
	stats   *StatsService
	payouts *PayoutService
	auth    *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	log := zap.NewNop()
	repo := repository.NewRepository(db)
	users := NewUserService(repo, "REF", log)
	ledger := NewReferralLedger(repo, users, DefaultCommissionRate, nil, log)

	return &testEnv{
		db:      db,
		repo:    repo,
		users:   users,
		ledger:  ledger,
		stats:   NewStatsService(repo, DefaultPayoutThreshold),
		payouts: NewPayoutService(repo, DefaultPayoutThreshold, nil, log),
		auth:    NewAuthService(repo, users, ledger, log),
	}
}

// createUser stores a user directly, bypassing code generation.
func (e *testEnv) createUser(t *testing.T, email, code string) *models.User {
	t.Helper()

	user := &models.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  "x",
		Role:          models.RoleUser,
		Plan:          models.PlanStarter,
		AffiliateCode: code,
		IsActive:      true,
	}
	require.NoError(t, e.repo.CreateUser(context.Background(), user))
	return user
}

// referredPair creates an affiliate and a user attributed to it.
func (e *testEnv) referredPair(t *testing.T) (affiliate, referred *models.User) {
	t.Helper()
	ctx := context.Background()

	affiliate, err := e.users.CreateUser(ctx, CreateUserRequest{Email: "affiliate@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	referred, err = e.users.CreateUser(ctx, CreateUserRequest{
		Email:        "referred@example.com",
		PasswordHash: "x",
		ReferredBy:   &affiliate.ID,
	})
	require.NoError(t, err)
	require.NoError(t, e.ledger.RecordSignup(ctx, affiliate.ID, referred.ID, ""))
	return affiliate, referred
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
