package services

import (
	"errors"
	"log"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
)

// EarningsService serves the transaction history and the ad-bonus credit
// path.
type EarningsService struct {
	Config *config.Config
	Ledger *LedgerService
}

func NewEarningsService(cfg *config.Config, ledger *LedgerService) *EarningsService {
	return &EarningsService{Config: cfg, Ledger: ledger}
}

// GetEarningsHistory returns the authenticated user's 50 most recent
// transactions, newest first.
func (s *EarningsService) GetEarningsHistory(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var transactions []models.Transaction
	if err := s.Ledger.DB.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(50).
		Find(&transactions).Error; err != nil {
		log.Printf("[EARNINGS] failed to load history for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error retrieving earnings history"})
	}

	return c.JSON(fiber.Map{"transactions": transactions})
}

// AddBonus credits a small bonus (ads etc.) to the authenticated user.
// The amount is capped to prevent abuse.
func (s *EarningsService) AddBonus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Amount      float64 `json:"amount"`
		Type        string  `json:"type"`
		Description string  `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be a positive number"})
	}
	if req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Bonus type must be specified"})
	}

	amount := req.Amount
	if amount > s.Config.Rewards.MaxBonusAmount {
		amount = s.Config.Rewards.MaxBonusAmount
	}
	description := req.Description
	if description == "" {
		description = "Bonus earnings"
	}

	_, err := s.Ledger.ApplyCredit(c.UserContext(), userID, amount, models.TransactionType(req.Type), description)
	if errors.Is(err, ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	if err != nil {
		log.Printf("[EARNINGS] failed to add bonus for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error adding bonus earnings"})
	}

	return c.JSON(fiber.Map{"success": true, "amount": amount})
}
