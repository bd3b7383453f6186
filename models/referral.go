package models

import "time"

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

// Referral tracks a referred signup until the referee's lifetime earnings
// reach the completion threshold, at which point the referrer is paid the
// referral bonus. The pending -> completed transition happens exactly once.
type Referral struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string         `gorm:"index;not null" json:"referrer_id"`
	RefereeID  string         `gorm:"index;not null" json:"referee_id"`
	Status     ReferralStatus `gorm:"not null;default:'pending';index" json:"status"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
