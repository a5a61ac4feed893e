package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"affiliate-service/internal/models"
	"affiliate-service/internal/repository"
)

// RegisterRequest is a signup, optionally arriving through an affiliate link.
type RegisterRequest struct {
	Email      string
	Password   string
	Name       string
	Username   string
	RefCode    string
	VisitorKey string
}

// AuthService handles authentication business logic
type AuthService struct {
	repo       *repository.Repository
	users      *UserService
	ledger     *ReferralLedger
	bcryptCost int
	log        *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(repo *repository.Repository, users *UserService, ledger *ReferralLedger, log *zap.Logger) *AuthService {
	return &AuthService{
		repo:       repo,
		users:      users,
		ledger:     ledger,
		bcryptCost: bcrypt.DefaultCost,
		log:        log.Named("auth"),
	}
}

// Register creates the account and attributes it to the affiliate behind RefCode.
// An unknown RefCode is ignored. Once the referrer resolves, the user and the signup
// attribution are written in one transaction so a referred user always has a tracking record.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var referrer *models.User
	if code := strings.TrimSpace(req.RefCode); code != "" {
		referrer, err = s.users.LookupByAffiliateCode(ctx, code)
		if err != nil {
			s.log.Warn("ignoring referral code", zap.String("code", code), zap.Error(err))
			referrer = nil
		}
	}

	create := CreateUserRequest{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Username:     req.Username,
	}
	if referrer == nil {
		return s.users.CreateUser(ctx, create)
	}
	create.ReferredBy = &referrer.ID

	var user *models.User
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		created, err := s.users.WithRepo(tx).CreateUser(ctx, create)
		if err != nil {
			return err
		}
		if err := s.ledger.WithRepo(tx).RecordSignup(ctx, referrer.ID, created.ID, req.VisitorKey); err != nil {
			return fmt.Errorf("failed to attribute signup: %w", err)
		}
		user = created
		return nil
	})
	if err != nil {
		s.log.Warn("registration failed",
			zap.String("affiliate_id", referrer.ID.String()),
			zap.Error(err))
		return nil, err
	}

	return user, nil
}

// Login checks the credentials and returns the matching active user.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
