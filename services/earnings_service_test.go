package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"step-rewards-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBonusCreditsCappedAmount(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)
	createUser(t, env.DB, "alice", false)

	resp, body := doJSON(t, app, "POST", "/earnings/bonus", map[string]interface{}{
		"amount": 0.25,
		"type":   "bonus",
	}, asUser("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.25, body["amount"].(float64), 1e-9)

	// Over the cap: accepted, but clamped.
	resp, body = doJSON(t, app, "POST", "/earnings/bonus", map[string]interface{}{
		"amount": 3.00,
		"type":   "bonus",
	}, asUser("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.50, body["amount"].(float64), 1e-9)

	user := reloadUser(t, env.DB, "alice")
	assert.InDelta(t, 0.75, user.AvailableBalance, 1e-9)
	assert.InDelta(t, 0.75, user.TotalEarnings, 1e-9)

	txs := userTransactions(t, env.DB, "alice")
	require.Len(t, txs, 2)
	assert.Equal(t, models.TransactionTypeBonus, txs[0].Type)
	assert.Equal(t, "Bonus earnings", txs[0].Description)
}

func TestAddBonusValidation(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)
	createUser(t, env.DB, "alice", false)

	resp, _ := doJSON(t, app, "POST", "/earnings/bonus", map[string]interface{}{
		"amount": -1.0, "type": "bonus",
	}, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/earnings/bonus", map[string]interface{}{
		"amount": 0.25,
	}, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/earnings/bonus", map[string]interface{}{
		"amount": 0.25, "type": "bonus",
	}, asUser("ghost"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetEarningsHistoryNewestFirstCapped(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)
	createUser(t, env.DB, "alice", false)
	createUser(t, env.DB, "bob", false)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 55; i++ {
		require.NoError(t, env.DB.Create(&models.Transaction{
			ID:          uuid.NewString(),
			UserID:      "alice",
			Amount:      0.10,
			Type:        models.TransactionTypeStepsEarnings,
			Description: "steps",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	_, err := env.Ledger.ApplyCredit(context.Background(), "bob", 1.00, models.TransactionTypeBonus, "other user")
	require.NoError(t, err)

	resp, body := doJSON(t, app, "GET", "/earnings/history", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	transactions := body["transactions"].([]interface{})
	require.Len(t, transactions, 50)

	first := transactions[0].(map[string]interface{})
	last := transactions[49].(map[string]interface{})
	assert.True(t, first["created_at"].(string) > last["created_at"].(string))
	for _, raw := range transactions {
		assert.Equal(t, "alice", raw.(map[string]interface{})["user_id"])
	}
}
