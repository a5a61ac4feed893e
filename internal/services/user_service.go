package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"affiliate-service/internal/database"
	"affiliate-service/internal/models"
	"affiliate-service/internal/repository"
)

const (
	affiliateCodeLength   = 8
	maxCodeAttempts       = 5
	affiliateCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CreateUserRequest carries everything needed to create an identity record.
type CreateUserRequest struct {
	Email        string `validate:"required,email,max=255"`
	PasswordHash string `validate:"required"`
	Name         string `validate:"max=255"`
	Username     string `validate:"omitempty,min=3,max=50"`
	Role         string
	ReferredBy   *uuid.UUID
}

// UserService handles identity records and affiliate code assignment
type UserService struct {
	repo       *repository.Repository
	validate   *validator.Validate
	codePrefix string
	log        *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo *repository.Repository, codePrefix string, log *zap.Logger) *UserService {
	if codePrefix == "" {
		codePrefix = "REF"
	}
	return &UserService{
		repo:       repo,
		validate:   validator.New(),
		codePrefix: strings.ToUpper(codePrefix),
		log:        log.Named("users"),
	}
}

// WithRepo returns a copy of the service that reads and writes through repo.
func (s *UserService) WithRepo(repo *repository.Repository) *UserService {
	clone := *s
	clone.repo = repo
	return &clone
}

// CreateUser validates the request, assigns a fresh affiliate code and persists the user.
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Email" {
			return nil, ErrInvalidEmail
		}
		return nil, fmt.Errorf("invalid user: %w", err)
	}

	if exists, err := s.repo.EmailExists(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	} else if exists {
		return nil, ErrDuplicateEmail
	}

	if req.Username != "" {
		if exists, err := s.repo.UsernameExists(ctx, req.Username); err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		} else if exists {
			return nil, ErrDuplicateUsername
		}
	}

	if req.ReferredBy != nil {
		if _, err := s.repo.GetUserByID(ctx, *req.ReferredBy); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUnknownAffiliate
			}
			return nil, fmt.Errorf("failed to load referrer: %w", err)
		}
	}

	id := uuid.New()
	code, err := s.generateAffiliateCode(ctx, id)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}

	user := &models.User{
		ID:            id,
		Email:         req.Email,
		Name:          req.Name,
		PasswordHash:  req.PasswordHash,
		Role:          role,
		Plan:          models.PlanStarter,
		AffiliateCode: code,
		ReferredBy:    req.ReferredBy,
		IsActive:      true,
	}
	if req.Username != "" {
		username := req.Username
		user.Username = &username
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if database.IsDuplicateKeyErr(err) {
			return nil, s.classifyDuplicate(ctx, user)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("affiliate_code", user.AffiliateCode),
		zap.Bool("referred", user.ReferredBy != nil))
	return user, nil
}

// classifyDuplicate maps a unique violation that slipped past the pre-checks.
func (s *UserService) classifyDuplicate(ctx context.Context, user *models.User) error {
	if exists, _ := s.repo.EmailExists(ctx, user.Email); exists {
		return ErrDuplicateEmail
	}
	if user.Username != nil {
		if exists, _ := s.repo.UsernameExists(ctx, *user.Username); exists {
			return ErrDuplicateUsername
		}
	}
	return ErrCodeGenerationExhausted
}

// generateAffiliateCode derives the code from the user id and falls back to random
// alphanumerics when the derived code is taken.
func (s *UserService) generateAffiliateCode(ctx context.Context, id uuid.UUID) (string, error) {
	hex := strings.ReplaceAll(id.String(), "-", "")
	candidate := s.codePrefix + strings.ToUpper(hex[:affiliateCodeLength])

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		exists, err := s.repo.AffiliateCodeExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check affiliate code: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		s.log.Warn("affiliate code collision", zap.String("code", candidate), zap.Int("attempt", attempt))
		candidate = s.codePrefix + uniuri.NewLenChars(affiliateCodeLength, []byte(affiliateCodeAlphabet))
	}
	return "", ErrCodeGenerationExhausted
}

// LookupByAffiliateCode resolves the owner of an affiliate code.
func (s *UserService) LookupByAffiliateCode(ctx context.Context, code string) (*models.User, error) {
	code = NormalizeAffiliateCode(code)
	if code == "" {
		return nil, ErrUnknownAffiliateCode
	}
	user, err := s.repo.GetUserByAffiliateCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAffiliateCode
		}
		return nil, fmt.Errorf("failed to look up affiliate code: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// NormalizeAffiliateCode upper-cases and trims a code taken from user input.
func NormalizeAffiliateCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
