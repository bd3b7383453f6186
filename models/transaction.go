package models

import "time"

// TransactionType categorizes ledger entries
type TransactionType string

const (
	TransactionTypeStepsEarnings   TransactionType = "steps_earnings"
	TransactionTypeCashout         TransactionType = "cashout"
	TransactionTypeTournamentPrize TransactionType = "tournament_prize"
	TransactionTypeReferralBonus   TransactionType = "referral_bonus"
	TransactionTypeBonus           TransactionType = "bonus"
)

// Transaction is the immutable audit record paired with every balance
// mutation. Rows are append-only: never updated, never deleted.
type Transaction struct {
	ID           string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string          `gorm:"index;not null" json:"user_id"`
	Amount       float64         `gorm:"not null" json:"amount"` // signed: negative for debits
	Type         TransactionType `gorm:"not null;index" json:"type"`
	Description  string          `json:"description"`
	TournamentID *string         `gorm:"index" json:"tournament_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}
