package models

import "time"

// StepRecord holds one day of step activity for one user.
// Date is day-granularity (midnight in the reference timezone); the
// (user_id, date) pair is unique. IsValidated is terminal: once the
// validation workflow has processed a record it is never reprocessed,
// even if the row is rewritten afterwards.
type StepRecord struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"not null;index;uniqueIndex:idx_steps_user_date" json:"user_id"`
	Date        time.Time `gorm:"not null;uniqueIndex:idx_steps_user_date" json:"date"`
	StepCount   int64     `gorm:"default:0" json:"step_count"`
	Earnings    float64   `gorm:"default:0" json:"earnings"`
	Multiplier  float64   `gorm:"default:1" json:"multiplier"` // 1.0 + 0.1 per streak day
	IsValidated bool      `gorm:"default:false;index" json:"is_validated"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
