package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"gorm.io/gorm"
)

// ReferralService completes pending referrals once the referee's lifetime
// earnings cross the threshold. The ledger invokes it after every
// earnings-changing credit, so the check fires no matter which workflow
// produced the earnings.
type ReferralService struct {
	DB     *gorm.DB
	Config *config.Config
	Ledger *LedgerService
}

func NewReferralService(db *gorm.DB, cfg *config.Config, ledger *LedgerService) *ReferralService {
	return &ReferralService{DB: db, Config: cfg, Ledger: ledger}
}

// CompleteReferral marks the pending referral for (referrer, referee) as
// completed and credits the referrer the bonus. The conditional update on
// status is the exactly-once guard: redelivered or concurrent calls find no
// pending row and no-op.
func (s *ReferralService) CompleteReferral(ctx context.Context, refereeID, referrerID, refereeName string) error {
	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&models.Referral{}).
		Where("referee_id = ? AND referrer_id = ? AND status = ?", refereeID, referrerID, models.ReferralStatusPending).
		Updates(map[string]interface{}{
			"status":       models.ReferralStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Already completed, or the referral never existed.
		return nil
	}

	if refereeName == "" {
		refereeName = "new user"
	}
	_, err := s.Ledger.ApplyCredit(ctx, referrerID, s.Config.Rewards.ReferralBonus,
		models.TransactionTypeReferralBonus, fmt.Sprintf("Referral bonus for %s", refereeName))
	if err != nil {
		return err
	}

	log.Printf("[REFERRAL] completed referral %s -> %s, bonus $%.2f credited", referrerID, refereeID, s.Config.Rewards.ReferralBonus)
	return nil
}
