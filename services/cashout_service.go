package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// cashoutTransitions lists the statuses a cashout may move FROM for each
// requested target. rejected and completed are terminal.
var cashoutTransitions = map[models.CashoutStatus][]models.CashoutStatus{
	models.CashoutStatusApproved:  {models.CashoutStatusPending},
	models.CashoutStatusRejected:  {models.CashoutStatusPending, models.CashoutStatusApproved},
	models.CashoutStatusCompleted: {models.CashoutStatusPending, models.CashoutStatusApproved},
}

// CashoutService runs the cashout request lifecycle: reservation at request
// time, intake (minimum check, premium auto-approval, operator alert), and
// the admin-reviewed status transitions.
type CashoutService struct {
	DB       *gorm.DB
	Config   *config.Config
	Ledger   *LedgerService
	Notifier Notifier
}

func NewCashoutService(db *gorm.DB, cfg *config.Config, ledger *LedgerService, notifier Notifier) *CashoutService {
	return &CashoutService{DB: db, Config: cfg, Ledger: ledger, Notifier: notifier}
}

// RequestCashout creates a cashout request for the authenticated user,
// moving the amount from available balance into the pending reservation.
// The conditional update guards the available_balance >= 0 invariant under
// concurrent requests. Below-minimum amounts are refused here, before any
// reservation, so nothing can strand funds in pending.
func (s *CashoutService) RequestCashout(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Amount      float64 `json:"amount"`
		PaypalEmail string  `json:"paypal_email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.PaypalEmail == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "paypal_email is required"})
	}
	if req.Amount < s.Config.Rewards.MinCashoutAmount {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Minimum cashout amount is $%.2f", s.Config.Rewards.MinCashoutAmount),
		})
	}

	cashout := models.Cashout{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      req.Amount,
		PaypalEmail: req.PaypalEmail,
		Status:      models.CashoutStatusPending,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND available_balance >= ?", userID, req.Amount).
			Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance - ?", req.Amount),
				"pending_cashout":   gorm.Expr("pending_cashout + ?", req.Amount),
				"last_active":       time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}
		return tx.Create(&cashout).Error
	})
	if errors.Is(err, ErrInsufficientBalance) {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "Insufficient available balance"})
	}
	if err != nil {
		log.Printf("[CASHOUT] failed to create request for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create cashout request"})
	}

	return c.Status(fiber.StatusCreated).JSON(cashout)
}

// ProcessNewRequests is the intake workflow over freshly created cashouts.
// The intake_at claim makes redelivery a no-op.
func (s *CashoutService) ProcessNewRequests(ctx context.Context) error {
	var cashouts []models.Cashout
	if err := s.DB.WithContext(ctx).
		Where("intake_at IS NULL AND status = ?", models.CashoutStatusPending).
		Find(&cashouts).Error; err != nil {
		return err
	}
	for i := range cashouts {
		if err := s.processIntake(ctx, &cashouts[i]); err != nil {
			log.Printf("[CASHOUT] intake of %s failed: %v", cashouts[i].ID, err)
		}
	}
	return nil
}

func (s *CashoutService) processIntake(ctx context.Context, cashout *models.Cashout) error {
	now := time.Now()

	// Claim the request first; a concurrent intake run loses and no-ops.
	res := s.DB.WithContext(ctx).Model(&models.Cashout{}).
		Where("id = ? AND intake_at IS NULL", cashout.ID).
		Update("intake_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	// Requests below the minimum normally never reach intake (RequestCashout
	// refuses them before reserving funds); this rejection covers records
	// written by other paths and has no ledger effect.
	if cashout.Amount < s.Config.Rewards.MinCashoutAmount {
		return s.DB.WithContext(ctx).Model(&models.Cashout{}).Where("id = ?", cashout.ID).
			Updates(map[string]interface{}{
				"status":           models.CashoutStatusRejected,
				"rejection_reason": fmt.Sprintf("Minimum cashout amount is $%.2f", s.Config.Rewards.MinCashoutAmount),
				"processed_at":     now,
			}).Error
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", cashout.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.DB.WithContext(ctx).Model(&models.Cashout{}).Where("id = ?", cashout.ID).
				Updates(map[string]interface{}{
					"status":           models.CashoutStatusRejected,
					"rejection_reason": "User not found",
					"processed_at":     now,
				}).Error
		}
		return err
	}

	logNotify("operator cashout alert", s.Notifier.CashoutRequested(&user, cashout))

	// Premium users skip manual review. An admin still performs the actual
	// transfer and marks the request completed.
	if user.IsPremium {
		res := s.DB.WithContext(ctx).Model(&models.Cashout{}).
			Where("id = ? AND status = ?", cashout.ID, models.CashoutStatusPending).
			Updates(map[string]interface{}{
				"status":       models.CashoutStatusApproved,
				"processed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		// An admin may have resolved the request between the intake claim
		// and this update; only announce an approval that actually landed.
		if res.RowsAffected == 1 {
			logNotify("cashout approved", s.Notifier.CashoutApproved(&user, cashout))
		}
	}

	return nil
}

// UpdateCashoutStatus is the admin-only transition operation. Only admins
// reach this handler (allow-list middleware); the state machine is enforced
// with a conditional update so terminal states stay terminal and a
// redelivered "completed" cannot debit twice.
func (s *CashoutService) UpdateCashoutStatus(c *fiber.Ctx) error {
	adminID := c.Locals("user_id").(string)
	cashoutID := c.Params("id")

	var req struct {
		Status          models.CashoutStatus `json:"status"`
		RejectionReason string               `json:"rejection_reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	allowedFrom, ok := cashoutTransitions[req.Status]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Status must be one of: approved, rejected, completed"})
	}

	var cashout models.Cashout
	if err := s.DB.First(&cashout, "id = ?", cashoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Cashout request not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       req.Status,
		"processed_at": now,
		"processed_by": adminID,
	}
	if req.Status == models.CashoutStatusRejected && req.RejectionReason != "" {
		updates["rejection_reason"] = req.RejectionReason
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Cashout{}).
			Where("id = ? AND status IN ?", cashout.ID, allowedFrom).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrInvalidData // state machine refused the transition
		}

		switch req.Status {
		case models.CashoutStatusCompleted:
			// Amount leaves the pending reservation, negative transaction
			// appended. Available balance was already reduced at request time.
			return s.Ledger.settleCashout(tx, uuid.NewString(), cashout.UserID,
				cashout.Amount, fmt.Sprintf("Cashout to PayPal (%s)", cashout.PaypalEmail))

		case models.CashoutStatusRejected:
			// Return the reservation to the available balance.
			res := tx.Model(&models.User{}).Where("id = ?", cashout.UserID).Updates(map[string]interface{}{
				"available_balance": gorm.Expr("available_balance + ?", cashout.Amount),
				"pending_cashout":   gorm.Expr("pending_cashout - ?", cashout.Amount),
				"last_active":       now,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrUserNotFound
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrInvalidData) {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{
			"error": fmt.Sprintf("Cashout in status %q cannot transition to %q", cashout.Status, req.Status),
		})
	}
	if err != nil {
		log.Printf("[CASHOUT] status update of %s failed: %v", cashout.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error updating cashout status"})
	}

	// Notifications after the transition commits: best-effort side channel.
	var user models.User
	if err := s.DB.First(&user, "id = ?", cashout.UserID).Error; err == nil {
		switch req.Status {
		case models.CashoutStatusApproved:
			logNotify("cashout approved", s.Notifier.CashoutApproved(&user, &cashout))
		case models.CashoutStatusRejected:
			logNotify("cashout rejected", s.Notifier.CashoutRejected(&user, &cashout, req.RejectionReason))
		case models.CashoutStatusCompleted:
			logNotify("cashout completed", s.Notifier.CashoutCompleted(&user, &cashout))
		}
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListCashouts returns cashout requests for admin review, optionally
// filtered by status.
func (s *CashoutService) ListCashouts(c *fiber.Ctx) error {
	status := c.Query("status", string(models.CashoutStatusPending))

	query := s.DB.Order("created_at ASC")
	if status != "all" {
		query = query.Where("status = ?", status)
	}

	var cashouts []models.Cashout
	if err := query.Find(&cashouts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch cashouts"})
	}
	return c.JSON(cashouts)
}
