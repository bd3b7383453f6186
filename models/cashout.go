package models

import "time"

// CashoutStatus is the cashout request state machine:
// pending -> approved | rejected | completed, approved -> completed.
// rejected and completed are terminal.
type CashoutStatus string

const (
	CashoutStatusPending   CashoutStatus = "pending"
	CashoutStatusApproved  CashoutStatus = "approved"
	CashoutStatusRejected  CashoutStatus = "rejected"
	CashoutStatusCompleted CashoutStatus = "completed"
)

// Cashout is a request to pay out part of a user's available balance.
// The requested amount is moved into the user's pending_cashout at
// creation time; the workflow resolves it to completed (debit) or
// rejected (refund).
type Cashout struct {
	ID              string        `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string        `gorm:"index;not null" json:"user_id"`
	Amount          float64       `gorm:"not null" json:"amount"`
	PaypalEmail     string        `gorm:"not null" json:"paypal_email"`
	Status          CashoutStatus `gorm:"not null;default:'pending';index" json:"status"`
	RejectionReason string        `json:"rejection_reason,omitempty"`

	// IntakeAt marks the request as seen by the intake workflow
	// (minimum check, premium auto-approval, operator notification).
	IntakeAt    *time.Time `gorm:"index" json:"intake_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ProcessedBy string     `json:"processed_by,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
