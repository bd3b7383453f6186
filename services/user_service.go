package services

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"log"
	"strings"

	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService bootstraps account records when the identity provider reports
// a new signup, and serves the caller's own profile.
type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// GenerateReferralCode derives the stable 8-char referral code from a uid.
func GenerateReferralCode(uid string) string {
	sum := md5.Sum([]byte(uid))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// BootstrapUser handles the identity-created event. Called by the identity
// provider (behind the service-token guard), once per signup; redelivery is
// a no-op because the uid is the primary key.
func (s *UserService) BootstrapUser(c *fiber.Ctx) error {
	var req struct {
		UID            string `json:"uid"`
		Email          string `json:"email"`
		DisplayName    string `json:"display_name"`
		PhotoURL       string `json:"photo_url"`
		ReferredByCode string `json:"referred_by_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "uid is required"})
	}

	var existing models.User
	err := s.DB.First(&existing, "id = ?", req.UID).Error
	if err == nil {
		// Redelivered identity-created event.
		return c.JSON(existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	user := models.User{
		ID:            req.UID,
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		PhotoURL:      req.PhotoURL,
		ReferralCode:  GenerateReferralCode(req.UID),
		ReferredUsers: []string{},
	}

	// Resolve the referrer before creating anything; a bad code just means
	// an unreferred signup.
	var referrer *models.User
	if req.ReferredByCode != "" {
		var r models.User
		if err := s.DB.First(&r, "referral_code = ?", strings.ToUpper(req.ReferredByCode)).Error; err == nil {
			referrer = &r
			user.ReferredBy = &r.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		} else {
			log.Printf("[ONBOARDING] unknown referral code %q for new user %s", req.ReferredByCode, req.UID)
		}
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		referrer.ReferredUsers = append(referrer.ReferredUsers, user.ID)
		if err := tx.Model(&models.User{}).Where("id = ?", referrer.ID).
			Select("referred_users").
			Updates(&models.User{ReferredUsers: referrer.ReferredUsers}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Referral{
			ID:         uuid.NewString(),
			ReferrerID: referrer.ID,
			RefereeID:  user.ID,
			Status:     models.ReferralStatusPending,
		}).Error
	})
	if err != nil {
		log.Printf("[ONBOARDING] failed to create user record %s: %v", req.UID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create user record"})
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

// GetMe returns the authenticated user's own record.
func (s *UserService) GetMe(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(user)
}
