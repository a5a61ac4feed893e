package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Roles
const (
	RoleUser      = "user"
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"
)

// Plan tiers
const (
	PlanStarter  = "starter"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// User represents a user in the system.
// AffiliateCode and ReferredBy are create-only: gorm never writes them on update.
type User struct {
	ID             uuid.UUID        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email          string           `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Username       *string          `gorm:"uniqueIndex;size:50" json:"username,omitempty"`
	Name           string           `gorm:"size:255" json:"name"`
	PasswordHash   string           `gorm:"size:255;not null" json:"-"`
	Role           string           `gorm:"size:20;not null;default:user" json:"role"`
	Plan           string           `gorm:"size:20;not null;default:starter" json:"plan"`
	AffiliateCode  string           `gorm:"<-:create;uniqueIndex;size:32;not null" json:"affiliate_code"`
	ReferredBy     *uuid.UUID       `gorm:"<-:create;type:varchar(36);index" json:"referred_by,omitempty"`
	Referrer       *User            `gorm:"foreignKey:ReferredBy" json:"referrer,omitempty"`
	CommissionRate *decimal.Decimal `gorm:"type:decimal(5,4)" json:"commission_rate,omitempty"`
	IsActive       bool             `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
