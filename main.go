package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"step-rewards-system/config"
	"step-rewards-system/handlers"
	"step-rewards-system/models"
	"step-rewards-system/services"
	"step-rewards-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg := config.LoadConfig(configPath)
	if pw := os.Getenv("MAIL_PASSWORD"); pw != "" {
		cfg.Mail.Password = pw
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	serviceToken := os.Getenv("REWARDS_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("REWARDS_SERVICE_TOKEN environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Admin{},
		&models.Transaction{},
		&models.StepRecord{},
		&models.Cashout{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Referral{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	notifier := services.NewMailNotifier(cfg.Mail)

	ledger := services.NewLedgerService(db, cfg)
	referrals := services.NewReferralService(db, cfg, ledger)
	ledger.Referrals = referrals

	userService := services.NewUserService(db)
	stepService := services.NewStepService(db, cfg, ledger)
	earningsService := services.NewEarningsService(cfg, ledger)
	cashoutService := services.NewCashoutService(db, cfg, ledger, notifier)
	tournamentService := services.NewTournamentService(db, cfg, ledger)

	app := fiber.New(fiber.Config{})

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-User-ID, X-Service-Token",
	}))

	handlers.SetupRoutes(app, db, serviceToken,
		userService, stepService, earningsService, cashoutService, tournamentService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollStepValidation(ctx, stepService, cfg.Workers.StepPollInterval)
	go workers.PollCashoutIntake(ctx, cashoutService, cfg.Workers.CashoutPollInterval)

	sched, err := services.StartScheduler(ctx, stepService, tournamentService)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on http://localhost%s", addr)
	log.Println("Step validation worker running")
	log.Println("Cashout intake worker running")
	log.Println("Scheduler running (daily reset, hourly tournaments)")

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
