package services

import (
	"context"
	"errors"
	"log"
	"time"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient available balance")
)

// LedgerService owns every mutation of the user balance fields. Each call
// commits one transaction record alongside the matching balance delta, in a
// single database transaction, so a reader never sees one without the other.
// Increments are expression updates, never read-modify-write, so concurrent
// credits for the same user interleave safely in any order.
type LedgerService struct {
	DB     *gorm.DB
	Config *config.Config

	// Referrals handles the earnings-threshold hook. Set after construction
	// because the two services reference each other.
	Referrals *ReferralService
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{DB: db, Config: cfg}
}

// ApplyCredit adds amount to the user's available balance and lifetime
// earnings and appends the matching transaction record. Returns the
// transaction id.
func (s *LedgerService) ApplyCredit(ctx context.Context, userID string, amount float64, txType models.TransactionType, description string) (string, error) {
	return s.apply(ctx, userID, amount, txType, description, nil)
}

// ApplyPrizeCredit is ApplyCredit with the originating tournament recorded
// on the transaction.
func (s *LedgerService) ApplyPrizeCredit(ctx context.Context, userID string, amount float64, tournamentID, description string) (string, error) {
	return s.apply(ctx, userID, amount, models.TransactionTypeTournamentPrize, description, &tournamentID)
}

func (s *LedgerService) apply(ctx context.Context, userID string, amount float64, txType models.TransactionType, description string, tournamentID *string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	txID := uuid.NewString()
	var user models.User
	crossed := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "referred_by", "display_name").
			First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"total_earnings":    gorm.Expr("total_earnings + ?", amount),
			"last_active":       time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		entry := models.Transaction{
			ID:           txID,
			UserID:       userID,
			Amount:       amount,
			Type:         txType,
			Description:  description,
			TournamentID: tournamentID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		// The crossing check uses the post-increment value read back inside
		// the same transaction. Concurrent credits serialize on the row
		// update, so exactly one of them observes the crossing; a pre-update
		// read can go stale under two in-flight credits and miss it entirely.
		var after float64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Pluck("total_earnings", &after).Error; err != nil {
			return err
		}
		threshold := s.Config.Rewards.ReferralThreshold
		crossed = after-amount < threshold && after >= threshold
		return nil
	})
	if err != nil {
		return "", err
	}

	// Referral completion is best-effort: a failure here must not undo the
	// credit. The pending->completed guard in ReferralService keeps retries
	// from paying the bonus twice.
	if crossed && user.ReferredBy != nil && s.Referrals != nil {
		if err := s.Referrals.CompleteReferral(ctx, userID, *user.ReferredBy, user.DisplayName); err != nil {
			log.Printf("[LEDGER] referral completion for %s failed: %v", userID, err)
		}
	}

	return txID, nil
}

// ApplyDebit removes amount from the user's available balance and appends a
// negative transaction record. Fails without mutation if the balance would
// go negative.
func (s *LedgerService) ApplyDebit(ctx context.Context, userID string, amount float64, txType models.TransactionType, description string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	txID := uuid.NewString()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUserNotFound
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND available_balance >= ?", userID, amount).
			Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance - ?", amount),
				"last_active":       time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		entry := models.Transaction{
			ID:          txID,
			UserID:      userID,
			Amount:      -amount,
			Type:        txType,
			Description: description,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return "", err
	}
	return txID, nil
}

// SettleCashout books a completed cashout: the amount leaves the user's
// pending reservation and the negative transaction is appended. The
// available balance is untouched; it was already reduced when the request
// reserved the funds.
func (s *LedgerService) SettleCashout(ctx context.Context, userID string, amount float64, description string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	txID := uuid.NewString()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.settleCashout(tx, txID, userID, amount, description)
	})
	if err != nil {
		return "", err
	}
	return txID, nil
}

// settleCashout is the tx-scoped body of SettleCashout, for callers that
// need the settlement inside a larger transaction.
func (s *LedgerService) settleCashout(tx *gorm.DB, txID, userID string, amount float64, description string) error {
	res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"pending_cashout": gorm.Expr("pending_cashout - ?", amount),
		"last_active":     time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	entry := models.Transaction{
		ID:          txID,
		UserID:      userID,
		Amount:      -amount,
		Type:        models.TransactionTypeCashout,
		Description: description,
	}
	return tx.Create(&entry).Error
}
