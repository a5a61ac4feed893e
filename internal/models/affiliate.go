package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tracking record statuses. Cancelled is reserved for manual corrections: the service
// never writes it, and payout settlement leaves cancelled records untouched.
const (
	TrackingStatusPending   = "pending"
	TrackingStatusPaid      = "paid"
	TrackingStatusCancelled = "cancelled"
)

// Payout statuses
const (
	PayoutStatusRequested = "requested"
	PayoutStatusPaid      = "paid"
)

// ReferralTracking holds the running counters for one affiliate attribution.
// AttributionKey is "click:<visitor>" until a referred user is attached, then "user:<id>".
type ReferralTracking struct {
	ID             uuid.UUID       `gorm:"type:varchar(36);primaryKey" json:"id"`
	AffiliateID    uuid.UUID       `gorm:"type:varchar(36);not null;uniqueIndex:idx_tracking_attribution,priority:1;uniqueIndex:idx_tracking_referred,priority:1" json:"affiliate_id"`
	Affiliate      *User           `gorm:"foreignKey:AffiliateID" json:"-"`
	ReferredUserID *uuid.UUID      `gorm:"type:varchar(36);uniqueIndex:idx_tracking_referred,priority:2" json:"referred_user_id,omitempty"`
	ReferredUser   *User           `gorm:"foreignKey:ReferredUserID" json:"referred_user,omitempty"`
	AttributionKey string          `gorm:"size:128;not null;uniqueIndex:idx_tracking_attribution,priority:2" json:"-"`
	Clicks         int64           `gorm:"not null;default:0" json:"clicks"`
	Signups        int64           `gorm:"not null;default:0" json:"signups"`
	Conversions    int64           `gorm:"not null;default:0" json:"conversions"`
	Commission     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"commission"`
	Status         string          `gorm:"size:20;not null;default:pending;index" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (ReferralTracking) TableName() string {
	return "referral_tracking"
}

// Payout is a manual payout request made by an affiliate.
// OpenSlot is 1 while the request is open and NULL once settled; the unique index on
// (affiliate_id, open_slot) allows many settled payouts but only one open request.
type Payout struct {
	ID          uuid.UUID       `gorm:"type:varchar(36);primaryKey" json:"id"`
	AffiliateID uuid.UUID       `gorm:"type:varchar(36);not null;uniqueIndex:idx_payout_open,priority:1" json:"affiliate_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status      string          `gorm:"size:20;not null;default:requested;index" json:"status"`
	OpenSlot    *int            `gorm:"uniqueIndex:idx_payout_open,priority:2" json:"-"`
	RequestedAt time.Time       `gorm:"not null" json:"requested_at"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
}

func (Payout) TableName() string {
	return "affiliate_payouts"
}

// ProcessedCharge marks a billing reference as credited. The primary key makes a
// redelivered charge fail instead of earning commission twice.
type ProcessedCharge struct {
	Reference   string          `gorm:"size:128;primaryKey" json:"reference"`
	UserID      uuid.UUID       `gorm:"type:varchar(36);not null;index" json:"user_id"`
	AffiliateID uuid.UUID       `gorm:"type:varchar(36);not null;index" json:"affiliate_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	ProcessedAt time.Time       `gorm:"not null" json:"processed_at"`
}

func (ProcessedCharge) TableName() string {
	return "processed_charges"
}
