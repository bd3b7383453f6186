package models

import "time"

// Tournament is a time-boxed step-count competition with a prize schedule.
// IsActive flips true -> false exactly once, when the end sweep claims the
// tournament for prize distribution.
type Tournament struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Slug        string    `gorm:"index" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	StartDate   time.Time `gorm:"not null;index" json:"start_date"`
	EndDate     time.Time `gorm:"not null;index" json:"end_date"`

	PrizePool float64            `gorm:"not null" json:"prize_pool"`
	Prizes    map[string]float64 `gorm:"serializer:json" json:"prizes"` // rank ("1", "2", ...) -> amount

	ParticipantsCount int64               `gorm:"default:0" json:"participants_count"`
	TopParticipants   []RankedParticipant `gorm:"serializer:json" json:"top_participants"`
	Winners           []TournamentWinner  `gorm:"serializer:json" json:"winners,omitempty"`

	IsActive      bool       `gorm:"default:true;index" json:"is_active"`
	IsPremiumOnly bool       `gorm:"default:false" json:"is_premium_only"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RankedParticipant is a leaderboard snapshot entry stored on the tournament.
type RankedParticipant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
	StepCount   int64  `json:"step_count"`
	Rank        int    `json:"rank"`
}

// TournamentWinner records a paid prize at tournament end.
type TournamentWinner struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Rank        int     `json:"rank"`
	PrizeAmount float64 `json:"prize_amount"`
}

// TournamentParticipant is one user's standing in one tournament.
// One row per (tournament, user); StepCount only ever increases
// (max of prior and new).
type TournamentParticipant struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	TournamentID string `gorm:"not null;uniqueIndex:idx_participant_tournament_user" json:"tournament_id"`
	UserID       string `gorm:"not null;uniqueIndex:idx_participant_tournament_user;index" json:"user_id"`
	DisplayName  string `json:"display_name"`
	PhotoURL     string `json:"photo_url"`
	StepCount    int64  `gorm:"default:0;index" json:"step_count"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
