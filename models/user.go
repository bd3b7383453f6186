package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the ledger-bearing account record. Created once by the onboarding
// flow when the identity provider reports a new signup; balance fields are
// mutated only through the ledger service.
type User struct {
	ID            string     `gorm:"primaryKey" json:"id"` // identity provider uid
	Email         string     `gorm:"index" json:"email"`
	DisplayName   string     `json:"display_name"`
	PhotoURL      string     `json:"photo_url"`
	IsPremium     bool       `gorm:"default:false" json:"is_premium"`
	PremiumExpiry *time.Time `json:"premium_expiry,omitempty"`

	// Balances. Invariants: AvailableBalance >= 0, TotalEarnings never decreases.
	TotalEarnings    float64 `gorm:"default:0" json:"total_earnings"`
	PendingCashout   float64 `gorm:"default:0" json:"pending_cashout"`
	AvailableBalance float64 `gorm:"default:0" json:"available_balance"`

	CurrentStreak int   `gorm:"default:0" json:"current_streak"` // consecutive qualifying days, capped at 7
	LifetimeSteps int64 `gorm:"default:0" json:"lifetime_steps"`

	ReferralCode  string   `gorm:"uniqueIndex;size:8" json:"referral_code"`
	ReferredUsers []string `gorm:"serializer:json" json:"referred_users"`
	ReferredBy    *string  `gorm:"index" json:"referred_by,omitempty"`

	HasCompletedOnboarding bool       `gorm:"default:false" json:"has_completed_onboarding"`
	LastActive             *time.Time `json:"last_active,omitempty"`

	Timestamps
}

// Admin is the allow-list record consulted for admin-only operations.
type Admin struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	GrantedBy string    `json:"granted_by,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
