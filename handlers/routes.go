package handlers

import (
	"step-rewards-system/middleware"
	"step-rewards-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupRoutes registers the callable surface. Service-to-service routes
// carry the shared token; everything else requires gateway auth context,
// and /admin additionally requires the allow-list grant.
func SetupRoutes(
	app *fiber.App,
	db *gorm.DB,
	serviceToken string,
	users *services.UserService,
	steps *services.StepService,
	earnings *services.EarningsService,
	cashouts *services.CashoutService,
	tournaments *services.TournamentService,
) {
	// Identity provider callback. Guarded per-route: a Use on "/" would
	// shadow every other route with the token check.
	app.Post("/users/bootstrap", middleware.ServiceAuthMiddleware(serviceToken), users.BootstrapUser)

	// Authenticated user routes. Registered after the bootstrap route so the
	// gateway-auth check never reaches it.
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Get("/users/me", users.GetMe)

	secured.Post("/steps", steps.RecordSteps)
	secured.Get("/steps/stats", steps.GetStepStats)

	secured.Get("/earnings/history", earnings.GetEarningsHistory)
	secured.Post("/earnings/bonus", earnings.AddBonus)

	secured.Post("/cashouts", cashouts.RequestCashout)

	secured.Get("/tournaments", tournaments.ListActiveTournaments)
	secured.Get("/tournaments/:id", tournaments.GetTournament)
	secured.Post("/tournaments/:id/join", tournaments.JoinTournament)

	// Admin routes
	admin := secured.Group("/admin", middleware.AdminOnly(db))
	admin.Get("/cashouts", cashouts.ListCashouts)
	admin.Patch("/cashouts/:id/status", cashouts.UpdateCashoutStatus)
	admin.Post("/tournaments", tournaments.CreateTournament)
}
