package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Rewards RewardsConfig `mapstructure:"rewards"`
	Mail    MailConfig    `mapstructure:"mail"`
	Workers WorkersConfig `mapstructure:"workers"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RewardsConfig holds the earning, cap and payout rules.
type RewardsConfig struct {
	StepsPerDollar       int64   `mapstructure:"steps_per_dollar"`
	MaxDailyStepsFree    int64   `mapstructure:"max_daily_steps_free"`
	MaxDailyStepsPremium int64   `mapstructure:"max_daily_steps_premium"`
	MaxDailyEarningsFree float64 `mapstructure:"max_daily_earnings_free"`
	MaxDailyEarningsPrem float64 `mapstructure:"max_daily_earnings_premium"`

	MinCashoutAmount float64 `mapstructure:"min_cashout_amount"`
	MaxBonusAmount   float64 `mapstructure:"max_bonus_amount"`

	ReferralThreshold float64 `mapstructure:"referral_threshold"`
	ReferralBonus     float64 `mapstructure:"referral_bonus"`

	StreakMinSteps int64  `mapstructure:"streak_min_steps"`
	StreakMaxDays  int    `mapstructure:"streak_max_days"`
	Timezone       string `mapstructure:"timezone"` // reference timezone for day boundaries
}

type MailConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SupportEmail string `mapstructure:"support_email"`
	PayoutsEmail string `mapstructure:"payouts_email"` // operations inbox for cashout alerts
}

type WorkersConfig struct {
	StepPollInterval    time.Duration `mapstructure:"step_poll_interval"`
	CashoutPollInterval time.Duration `mapstructure:"cashout_poll_interval"`
}

// LoadConfig reads config.yaml and applies environment overrides
// (e.g. REWARDS_MIN_CASHOUT_AMOUNT).
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	// Unmarshal does not consult the environment on its own; bind every key
	// read from the file so rewards.min_cashout_amount can be overridden as
	// REWARDS_MIN_CASHOUT_AMOUNT.
	for _, key := range viper.AllKeys() {
		_ = viper.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	if cfg.Rewards.Timezone == "" {
		cfg.Rewards.Timezone = "America/New_York"
	}

	return cfg
}

// Default returns the shipped rule set. Tests and local runs use this
// instead of a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 5300},
		Rewards: RewardsConfig{
			StepsPerDollar:       10000,
			MaxDailyStepsFree:    20000,
			MaxDailyStepsPremium: 40000,
			MaxDailyEarningsFree: 2.0,
			MaxDailyEarningsPrem: 4.0,
			MinCashoutAmount:     10.0,
			MaxBonusAmount:       0.50,
			ReferralThreshold:    5.0,
			ReferralBonus:        1.0,
			StreakMinSteps:       1000,
			StreakMaxDays:        7,
			Timezone:             "America/New_York",
		},
		Workers: WorkersConfig{
			StepPollInterval:    10 * time.Second,
			CashoutPollInterval: 15 * time.Second,
		},
	}
}
