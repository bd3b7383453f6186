package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"step-rewards-system/config"
	"step-rewards-system/middleware"
	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testServiceToken = "test-service-token"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Admin{},
		&models.Transaction{},
		&models.StepRecord{},
		&models.Cashout{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Referral{},
	))
	return db
}

// stubNotifier records deliveries instead of sending mail.
type stubNotifier struct {
	Requested []string
	Approved  []string
	Rejected  []string
	Completed []string
}

func (n *stubNotifier) CashoutRequested(user *models.User, c *models.Cashout) error {
	n.Requested = append(n.Requested, c.ID)
	return nil
}

func (n *stubNotifier) CashoutApproved(user *models.User, c *models.Cashout) error {
	n.Approved = append(n.Approved, c.ID)
	return nil
}

func (n *stubNotifier) CashoutRejected(user *models.User, c *models.Cashout, reason string) error {
	n.Rejected = append(n.Rejected, c.ID)
	return nil
}

func (n *stubNotifier) CashoutCompleted(user *models.User, c *models.Cashout) error {
	n.Completed = append(n.Completed, c.ID)
	return nil
}

type testEnv struct {
	DB          *gorm.DB
	Config      *config.Config
	Notifier    *stubNotifier
	Ledger      *LedgerService
	Referrals   *ReferralService
	Users       *UserService
	Steps       *StepService
	Earnings    *EarningsService
	Cashouts    *CashoutService
	Tournaments *TournamentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	cfg := config.Default()
	notifier := &stubNotifier{}

	ledger := NewLedgerService(db, cfg)
	referrals := NewReferralService(db, cfg, ledger)
	ledger.Referrals = referrals

	return &testEnv{
		DB:          db,
		Config:      cfg,
		Notifier:    notifier,
		Ledger:      ledger,
		Referrals:   referrals,
		Users:       NewUserService(db),
		Steps:       NewStepService(db, cfg, ledger),
		Earnings:    NewEarningsService(cfg, ledger),
		Cashouts:    NewCashoutService(db, cfg, ledger, notifier),
		Tournaments: NewTournamentService(db, cfg, ledger),
	}
}

// newTestApp wires the env's services into a Fiber app with the production
// route layout so handler tests exercise the real middleware chain.
func (e *testEnv) newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New()

	app.Post("/users/bootstrap", middleware.ServiceAuthMiddleware(testServiceToken), e.Users.BootstrapUser)

	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Get("/users/me", e.Users.GetMe)
	secured.Post("/steps", e.Steps.RecordSteps)
	secured.Get("/steps/stats", e.Steps.GetStepStats)
	secured.Get("/earnings/history", e.Earnings.GetEarningsHistory)
	secured.Post("/earnings/bonus", e.Earnings.AddBonus)
	secured.Post("/cashouts", e.Cashouts.RequestCashout)
	secured.Get("/tournaments", e.Tournaments.ListActiveTournaments)
	secured.Get("/tournaments/:id", e.Tournaments.GetTournament)
	secured.Post("/tournaments/:id/join", e.Tournaments.JoinTournament)

	admin := secured.Group("/admin", middleware.AdminOnly(e.DB))
	admin.Get("/cashouts", e.Cashouts.ListCashouts)
	admin.Patch("/cashouts/:id/status", e.Cashouts.UpdateCashoutStatus)
	admin.Post("/tournaments", e.Tournaments.CreateTournament)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

// doJSONList is doJSON for endpoints that respond with a JSON array.
func doJSONList(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (*http.Response, []map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func asUser(userID string) map[string]string {
	return map[string]string{"X-User-ID": userID}
}

func createUser(t *testing.T, db *gorm.DB, id string, premium bool) *models.User {
	t.Helper()
	user := &models.User{
		ID:            id,
		Email:         id + "@example.com",
		DisplayName:   "User " + id,
		IsPremium:     premium,
		ReferralCode:  GenerateReferralCode(id),
		ReferredUsers: []string{},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func reloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return &user
}

func userTransactions(t *testing.T, db *gorm.DB, userID string) []models.Transaction {
	t.Helper()
	var txs []models.Transaction
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at ASC").Find(&txs).Error)
	return txs
}
