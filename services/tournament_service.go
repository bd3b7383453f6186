package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"step-rewards-system/config"
	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

const leaderboardSize = 10

// TournamentService manages tournament creation, joining, the hourly
// leaderboard snapshot, and the terminal prize distribution.
type TournamentService struct {
	DB     *gorm.DB
	Config *config.Config
	Ledger *LedgerService

	loc *time.Location
}

func NewTournamentService(db *gorm.DB, cfg *config.Config, ledger *LedgerService) *TournamentService {
	loc, err := time.LoadLocation(cfg.Rewards.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &TournamentService{DB: db, Config: cfg, Ledger: ledger, loc: loc}
}

// CreateTournament creates a new tournament (admin only; enforced by the
// allow-list middleware on the route).
func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	var req struct {
		Name          string             `json:"name"`
		Description   string             `json:"description"`
		StartDate     *time.Time         `json:"start_date"`
		EndDate       *time.Time         `json:"end_date"`
		PrizePool     float64            `json:"prize_pool"`
		Prizes        map[string]float64 `json:"prizes"`
		IsActive      *bool              `json:"is_active"`
		IsPremiumOnly bool               `json:"is_premium_only"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.StartDate == nil || req.EndDate == nil || req.PrizePool <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing required tournament fields"})
	}
	if !req.EndDate.After(*req.StartDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be after start_date"})
	}
	for rank := range req.Prizes {
		if n, err := strconv.Atoi(rank); err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("invalid prize rank %q", rank)})
		}
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	prizes := req.Prizes
	if prizes == nil {
		prizes = map[string]float64{}
	}

	tournament := models.Tournament{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Slug:            slug.Make(req.Name),
		Description:     req.Description,
		StartDate:       *req.StartDate,
		EndDate:         *req.EndDate,
		PrizePool:       req.PrizePool,
		Prizes:          prizes,
		TopParticipants: []models.RankedParticipant{},
		IsActive:        isActive,
		IsPremiumOnly:   req.IsPremiumOnly,
	}
	if err := s.DB.Create(&tournament).Error; err != nil {
		log.Printf("[TOURNAMENT] create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error creating tournament"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "tournament_id": tournament.ID})
}

// ListActiveTournaments returns tournaments that are active and currently
// in their window.
func (s *TournamentService) ListActiveTournaments(c *fiber.Ctx) error {
	now := time.Now()
	var tournaments []models.Tournament
	if err := s.DB.
		Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Order("end_date ASC").
		Find(&tournaments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch tournaments"})
	}
	return c.JSON(tournaments)
}

// GetTournament returns one tournament with its current leaderboard
// snapshot.
func (s *TournamentService) GetTournament(c *fiber.Ctx) error {
	id := c.Params("id")

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tournament not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(tournament)
}

// JoinTournament enrolls the authenticated user. Joining twice is a
// successful no-op; participants_count moves once per distinct user.
func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	tournamentID := c.Params("id")
	if tournamentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Tournament ID must be specified"})
	}

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tournament not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now()
	if !tournament.IsActive {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "Tournament is not active"})
	}
	if tournament.StartDate.After(now) {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "Tournament has not started yet"})
	}
	if tournament.EndDate.Before(now) {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "Tournament has already ended"})
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if tournament.IsPremiumOnly && !user.IsPremium {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "This tournament is for premium users only"})
	}

	var count int64
	if err := s.DB.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Count(&count).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if count > 0 {
		return c.JSON(fiber.Map{"success": true, "message": "Already joined this tournament"})
	}

	// Seed the entry with today's validated step count, if any.
	today := time.Date(now.In(s.loc).Year(), now.In(s.loc).Month(), now.In(s.loc).Day(), 0, 0, 0, 0, s.loc)
	var stepCount int64
	var rec models.StepRecord
	if err := s.DB.Where("user_id = ? AND date = ?", userID, today).First(&rec).Error; err == nil {
		stepCount = rec.StepCount
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		participant := models.TournamentParticipant{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			UserID:       userID,
			DisplayName:  user.DisplayName,
			PhotoURL:     user.PhotoURL,
			StepCount:    stepCount,
		}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		return tx.Model(&models.Tournament{}).Where("id = ?", tournamentID).
			Update("participants_count", gorm.Expr("participants_count + 1")).Error
	})
	if err != nil {
		log.Printf("[TOURNAMENT] join %s by %s failed: %v", tournamentID, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error joining tournament"})
	}

	return c.JSON(fiber.Map{"success": true, "message": "Successfully joined tournament"})
}

// rankedParticipants loads participants for a tournament ordered by step
// count descending, created_at ascending as the stable tie-break.
func (s *TournamentService) rankedParticipants(ctx context.Context, tournamentID string, limit int) ([]models.TournamentParticipant, error) {
	query := s.DB.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("step_count DESC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var participants []models.TournamentParticipant
	err := query.Find(&participants).Error
	return participants, err
}

// RefreshLeaderboards recomputes the top-10 snapshot and the live
// participant count for every active in-window tournament. Runs hourly.
func (s *TournamentService) RefreshLeaderboards(ctx context.Context) error {
	now := time.Now()
	var tournaments []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Find(&tournaments).Error; err != nil {
		return err
	}
	if len(tournaments) == 0 {
		return nil
	}

	for _, t := range tournaments {
		top, err := s.rankedParticipants(ctx, t.ID, leaderboardSize)
		if err != nil {
			log.Printf("[TOURNAMENT] leaderboard query for %s failed: %v", t.ID, err)
			continue
		}

		var liveCount int64
		if err := s.DB.WithContext(ctx).Model(&models.TournamentParticipant{}).
			Where("tournament_id = ?", t.ID).Count(&liveCount).Error; err != nil {
			log.Printf("[TOURNAMENT] participant count for %s failed: %v", t.ID, err)
			continue
		}

		snapshot := make([]models.RankedParticipant, len(top))
		for i, p := range top {
			snapshot[i] = models.RankedParticipant{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				PhotoURL:    p.PhotoURL,
				StepCount:   p.StepCount,
				Rank:        i + 1,
			}
		}

		if err := s.DB.WithContext(ctx).Model(&models.Tournament{}).Where("id = ?", t.ID).
			Select("top_participants", "participants_count").
			Updates(&models.Tournament{TopParticipants: snapshot, ParticipantsCount: liveCount}).Error; err != nil {
			log.Printf("[TOURNAMENT] leaderboard update for %s failed: %v", t.ID, err)
		}
	}

	log.Printf("[TOURNAMENT] refreshed %d tournament leaderboards", len(tournaments))
	return nil
}

// EndDueTournaments sweeps tournaments whose end date fell within the last
// hour and distributes prizes. The is_active false claim is checked-and-set
// before any prize credit: a replayed or concurrent sweep finds the claim
// already taken and never credits winners twice.
func (s *TournamentService) EndDueTournaments(ctx context.Context) error {
	now := time.Now()
	oneHourAgo := now.Add(-time.Hour)

	var tournaments []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("is_active = ? AND end_date >= ? AND end_date <= ?", true, oneHourAgo, now).
		Find(&tournaments).Error; err != nil {
		return err
	}

	for i := range tournaments {
		if err := s.distributePrizes(ctx, &tournaments[i]); err != nil {
			log.Printf("[TOURNAMENT] ending %s failed: %v", tournaments[i].ID, err)
		}
	}
	return nil
}

func (s *TournamentService) distributePrizes(ctx context.Context, t *models.Tournament) error {
	now := time.Now()

	// Distribution claim.
	res := s.DB.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ? AND is_active = ?", t.ID, true).
		Updates(map[string]interface{}{
			"is_active":    false,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil // another sweep owns this tournament
	}

	participants, err := s.rankedParticipants(ctx, t.ID, 0)
	if err != nil {
		return err
	}
	if len(participants) == 0 {
		log.Printf("[TOURNAMENT] %s ended with no participants", t.ID)
		return nil
	}

	winners := []models.TournamentWinner{}
	final := make([]models.RankedParticipant, 0, len(participants))

	for i, p := range participants {
		rank := i + 1
		final = append(final, models.RankedParticipant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
			StepCount:   p.StepCount,
			Rank:        rank,
		})

		prize, ok := t.Prizes[strconv.Itoa(rank)]
		if !ok || prize <= 0 {
			continue
		}

		if _, err := s.Ledger.ApplyPrizeCredit(ctx, p.UserID, prize, t.ID,
			fmt.Sprintf("Prize for %s (Rank: %d)", t.Name, rank)); err != nil {
			log.Printf("[TOURNAMENT] prize credit for %s rank %d failed: %v", p.UserID, rank, err)
			continue
		}
		winners = append(winners, models.TournamentWinner{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Rank:        rank,
			PrizeAmount: prize,
		})
	}

	top := final
	if len(top) > leaderboardSize {
		top = top[:leaderboardSize]
	}

	if err := s.DB.WithContext(ctx).Model(&models.Tournament{}).Where("id = ?", t.ID).
		Select("top_participants", "winners", "participants_count").
		Updates(&models.Tournament{
			TopParticipants:   top,
			Winners:           winners,
			ParticipantsCount: int64(len(participants)),
		}).Error; err != nil {
		return err
	}

	log.Printf("[TOURNAMENT] ended %s with %d winners", t.ID, len(winners))
	return nil
}
