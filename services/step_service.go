package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StepService records daily step counts, validates them into earnings, and
// runs the midnight streak reset. Validation is idempotent under duplicate
// and reordered delivery: is_validated is a terminal flag, claimed with a
// conditional update.
type StepService struct {
	DB     *gorm.DB
	Config *config.Config
	Ledger *LedgerService

	loc *time.Location
}

func NewStepService(db *gorm.DB, cfg *config.Config, ledger *LedgerService) *StepService {
	loc, err := time.LoadLocation(cfg.Rewards.Timezone)
	if err != nil {
		log.Printf("[STEPS] unknown timezone %q, falling back to UTC", cfg.Rewards.Timezone)
		loc = time.UTC
	}
	return &StepService{DB: db, Config: cfg, Ledger: ledger, loc: loc}
}

// dayStart truncates t to midnight in the reference timezone.
func (s *StepService) dayStart(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// roundCents rounds half-up to two decimals.
func roundCents(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// RecordSteps upserts today's step record for the authenticated user.
// step_count is the device's running total for the day; the stored count is
// monotonic, so redelivered or out-of-order reports never lower it. The
// validation worker picks the record up afterwards.
func (s *StepService) RecordSteps(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		StepCount int64 `json:"step_count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.StepCount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "step_count must be a positive number"})
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	today := s.dayStart(time.Now())
	var rec models.StepRecord

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND date = ?", userID, today).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = models.StepRecord{
				ID:         uuid.NewString(),
				UserID:     userID,
				Date:       today,
				StepCount:  req.StepCount,
				Multiplier: 1.0 + float64(user.CurrentStreak)*0.1,
			}
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}
		if req.StepCount > rec.StepCount {
			rec.StepCount = req.StepCount
			return tx.Model(&models.StepRecord{}).Where("id = ?", rec.ID).
				Update("step_count", req.StepCount).Error
		}
		return nil
	})
	if err != nil {
		log.Printf("[STEPS] failed to record steps for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record steps"})
	}

	return c.JSON(rec)
}

// ValidateStepRecord runs the validation workflow for one step record:
// apply the anti-cheat cap, compute earnings, credit the incremental amount
// and update tournament standings. Safe to call any number of times; only
// the call that claims the terminal flag does any work.
func (s *StepService) ValidateStepRecord(ctx context.Context, recordID string) error {
	var rec models.StepRecord
	if err := s.DB.WithContext(ctx).First(&rec, "id = ?", recordID).Error; err != nil {
		return err
	}
	if rec.IsValidated {
		return nil
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", rec.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[STEPS] user %s not found for step record %s", rec.UserID, rec.ID)
			return nil
		}
		return err
	}

	rules := s.Config.Rewards
	maxSteps := rules.MaxDailyStepsFree
	maxEarnings := rules.MaxDailyEarningsFree
	if user.IsPremium {
		maxSteps = rules.MaxDailyStepsPremium
		maxEarnings = rules.MaxDailyEarningsPrem
	}

	cappedSteps := rec.StepCount
	if cappedSteps > maxSteps {
		cappedSteps = maxSteps
	}

	earnings := float64(cappedSteps) / float64(rules.StepsPerDollar) * rec.Multiplier
	if earnings > maxEarnings {
		earnings = maxEarnings
	}
	earnings = roundCents(earnings)

	// Claim the record. The is_validated guard in the WHERE clause makes a
	// concurrent or redelivered validation lose the race and no-op.
	res := s.DB.WithContext(ctx).Model(&models.StepRecord{}).
		Where("id = ? AND is_validated = ?", rec.ID, false).
		Updates(map[string]interface{}{
			"step_count":   cappedSteps,
			"earnings":     earnings,
			"is_validated": true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	// Incremental credit: the difference against whatever this record had
	// already earned. Never negative — a recomputation that lowers earnings
	// does not claw back the balance. A record is claimed exactly once, so
	// the whole capped count is new lifetime steps.
	incremental := roundCents(earnings - rec.Earnings)
	stepDelta := cappedSteps

	if incremental > 0 {
		if _, err := s.Ledger.ApplyCredit(ctx, rec.UserID, incremental,
			models.TransactionTypeStepsEarnings, fmt.Sprintf("Earnings from %d steps", cappedSteps)); err != nil {
			log.Printf("[STEPS] failed to credit earnings for %s: %v", rec.UserID, err)
			return err
		}
		if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", rec.UserID).
			Update("lifetime_steps", gorm.Expr("lifetime_steps + ?", stepDelta)).Error; err != nil {
			log.Printf("[STEPS] failed to update lifetime steps for %s: %v", rec.UserID, err)
		}
	}

	if err := s.updateTournamentStandings(ctx, &user, cappedSteps); err != nil {
		log.Printf("[STEPS] failed to update tournament standings for %s: %v", rec.UserID, err)
	}
	return nil
}

// updateTournamentStandings upserts the user's participant row in every
// tournament currently active and in-window. StepCount is monotonic: the
// stored value only moves up.
func (s *StepService) updateTournamentStandings(ctx context.Context, user *models.User, stepCount int64) error {
	today := s.dayStart(time.Now())

	var tournaments []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, today, today).
		Find(&tournaments).Error; err != nil {
		return err
	}
	if len(tournaments) == 0 {
		return nil
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tournaments {
			var participant models.TournamentParticipant
			err := tx.Where("tournament_id = ? AND user_id = ?", t.ID, user.ID).First(&participant).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				participant = models.TournamentParticipant{
					ID:           uuid.NewString(),
					TournamentID: t.ID,
					UserID:       user.ID,
					DisplayName:  user.DisplayName,
					PhotoURL:     user.PhotoURL,
					StepCount:    stepCount,
				}
				if err := tx.Create(&participant).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Model(&models.TournamentParticipant{}).
				Where("id = ? AND step_count < ?", participant.ID, stepCount).
				Update("step_count", stepCount).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ValidatePending validates every unprocessed step record with activity.
// The polling worker calls this; at-least-once delivery is fine because
// ValidateStepRecord is idempotent.
func (s *StepService) ValidatePending(ctx context.Context) error {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.StepRecord{}).
		Where("is_validated = ? AND step_count > 0", false).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.ValidateStepRecord(ctx, id); err != nil {
			log.Printf("[STEPS] validation of record %s failed: %v", id, err)
		}
	}
	return nil
}

// RunDailyReset runs once per day at midnight in the reference timezone:
// roll streaks forward from yesterday's activity and seed today's zero
// record for every user. The whole run commits as one batch; a failed run
// is logged, not retried — the next run self-heals because the check is
// always yesterday-vs-today.
func (s *StepService) RunDailyReset(ctx context.Context) error {
	now := time.Now()
	today := s.dayStart(now)
	yesterday := today.AddDate(0, 0, -1)

	var users []models.User
	if err := s.DB.WithContext(ctx).Find(&users).Error; err != nil {
		return err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range users {
			user := &users[i]

			var yRec models.StepRecord
			err := tx.Where("user_id = ? AND date = ?", user.ID, yesterday).First(&yRec).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				user.CurrentStreak = 0
			case err != nil:
				return err
			case yRec.StepCount >= s.Config.Rewards.StreakMinSteps:
				user.CurrentStreak++
				if user.CurrentStreak > s.Config.Rewards.StreakMaxDays {
					user.CurrentStreak = s.Config.Rewards.StreakMaxDays
				}
			default:
				user.CurrentStreak = 0
			}

			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
				Update("current_streak", user.CurrentStreak).Error; err != nil {
				return err
			}

			rec := models.StepRecord{
				ID:         uuid.NewString(),
				UserID:     user.ID,
				Date:       today,
				StepCount:  0,
				Earnings:   0,
				Multiplier: 1.0 + float64(user.CurrentStreak)*0.1,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
				DoNothing: true,
			}).Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[RESET] daily reset failed: %v", err)
		return err
	}

	log.Printf("[RESET] processed %d users for streak updates", len(users))
	return nil
}

// GetStepStats returns the authenticated user's 30-day daily series plus
// aggregate stats.
func (s *StepService) GetStepStats(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	since := s.dayStart(time.Now()).AddDate(0, 0, -30)

	var records []models.StepRecord
	if err := s.DB.Where("user_id = ? AND date >= ?", userID, since).
		Order("date ASC").Find(&records).Error; err != nil {
		log.Printf("[STEPS] failed to load step stats for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error retrieving step statistics"})
	}

	type dayStats struct {
		ID        string    `json:"id"`
		Date      time.Time `json:"date"`
		StepCount int64     `json:"step_count"`
		Earnings  float64   `json:"earnings"`
	}

	daily := make([]dayStats, len(records))
	var totalSteps int64
	var totalEarnings float64
	best := dayStats{}

	for i, r := range records {
		daily[i] = dayStats{ID: r.ID, Date: r.Date, StepCount: r.StepCount, Earnings: r.Earnings}
		totalSteps += r.StepCount
		totalEarnings += r.Earnings
		if r.StepCount > best.StepCount {
			best = daily[i]
		}
	}

	avgSteps := 0.0
	if len(records) > 0 {
		avgSteps = float64(totalSteps) / float64(len(records))
	}

	return c.JSON(fiber.Map{
		"daily_data": daily,
		"stats": fiber.Map{
			"total_steps":    totalSteps,
			"total_earnings": roundCents(totalEarnings),
			"avg_steps":      avgSteps,
			"best_day":       best,
		},
	})
}
