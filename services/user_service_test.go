package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"step-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func svcHeaders() map[string]string {
	return map[string]string{"X-Service-Token": testServiceToken}
}

func TestGenerateReferralCodeStable(t *testing.T) {
	code := GenerateReferralCode("some-uid")
	assert.Len(t, code, 8)
	assert.Equal(t, code, GenerateReferralCode("some-uid"))
	assert.NotEqual(t, code, GenerateReferralCode("other-uid"))
	assert.Equal(t, code, strings.ToUpper(code))
}

func TestBootstrapUserCreatesRecord(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/users/bootstrap", map[string]interface{}{
		"uid":          "alice",
		"email":        "alice@example.com",
		"display_name": "Alice",
	}, svcHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	user := reloadUser(t, env.DB, "alice")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, GenerateReferralCode("alice"), user.ReferralCode)
	assert.Zero(t, user.TotalEarnings)
	assert.Nil(t, user.ReferredBy)
}

func TestBootstrapUserRequiresServiceToken(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/users/bootstrap", map[string]interface{}{"uid": "alice"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBootstrapUserIdempotentOnRedelivery(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)

	body := map[string]interface{}{"uid": "alice", "email": "alice@example.com"}
	resp, _ := doJSON(t, app, "POST", "/users/bootstrap", body, svcHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, app, "POST", "/users/bootstrap", body, svcHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var count int64
	require.NoError(t, env.DB.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestBootstrapUserLinksReferrer(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)
	referrer := createUser(t, env.DB, "bob", false)

	resp, _ := doJSON(t, app, "POST", "/users/bootstrap", map[string]interface{}{
		"uid":              "alice",
		"display_name":     "Alice",
		"referred_by_code": referrer.ReferralCode,
	}, svcHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	alice := reloadUser(t, env.DB, "alice")
	require.NotNil(t, alice.ReferredBy)
	assert.Equal(t, "bob", *alice.ReferredBy)

	bob := reloadUser(t, env.DB, "bob")
	assert.Contains(t, bob.ReferredUsers, "alice")

	var referral models.Referral
	require.NoError(t, env.DB.First(&referral, "referrer_id = ? AND referee_id = ?", "bob", "alice").Error)
	assert.Equal(t, models.ReferralStatusPending, referral.Status)
}

func TestBootstrapUserIgnoresUnknownReferralCode(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/users/bootstrap", map[string]interface{}{
		"uid":              "alice",
		"referred_by_code": "NOPE1234",
	}, svcHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	alice := reloadUser(t, env.DB, "alice")
	assert.Nil(t, alice.ReferredBy)

	var count int64
	require.NoError(t, env.DB.Model(&models.Referral{}).Count(&count).Error)
	assert.Zero(t, count)
}

// Referred signup, then a bonus credit pushes the referee's lifetime
// earnings over the threshold: the referral completes once and the referrer
// is paid exactly one $1.00 bonus.
func TestReferralCompletionOnThresholdCrossing(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)
	referrer := createUser(t, env.DB, "bob", false)

	resp, _ := doJSON(t, app, "POST", "/users/bootstrap", map[string]interface{}{
		"uid":              "alice",
		"display_name":     "Alice",
		"referred_by_code": referrer.ReferralCode,
	}, svcHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx := context.Background()

	// Bring the referee just under the threshold.
	_, err := env.Ledger.ApplyCredit(ctx, "alice", 4.99, models.TransactionTypeStepsEarnings, "steps")
	require.NoError(t, err)

	var referral models.Referral
	require.NoError(t, env.DB.First(&referral, "referee_id = ?", "alice").Error)
	assert.Equal(t, models.ReferralStatusPending, referral.Status)

	// Crossing credit.
	_, err = env.Ledger.ApplyCredit(ctx, "alice", 0.02, models.TransactionTypeBonus, "ad bonus")
	require.NoError(t, err)

	require.NoError(t, env.DB.First(&referral, "referee_id = ?", "alice").Error)
	assert.Equal(t, models.ReferralStatusCompleted, referral.Status)
	require.NotNil(t, referral.CompletedAt)

	bob := reloadUser(t, env.DB, "bob")
	assert.InDelta(t, 1.00, bob.AvailableBalance, 1e-9)
	assert.InDelta(t, 1.00, bob.TotalEarnings, 1e-9)

	var bonusCount int64
	require.NoError(t, env.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", "bob", models.TransactionTypeReferralBonus).
		Count(&bonusCount).Error)
	assert.EqualValues(t, 1, bonusCount)

	// Further credits must not pay the bonus again.
	_, err = env.Ledger.ApplyCredit(ctx, "alice", 2.00, models.TransactionTypeStepsEarnings, "steps")
	require.NoError(t, err)
	require.NoError(t, env.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", "bob", models.TransactionTypeReferralBonus).
		Count(&bonusCount).Error)
	assert.EqualValues(t, 1, bonusCount)
}

func TestCompleteReferralNoPendingRowIsNoop(t *testing.T) {
	env := newTestEnv(t)
	createUser(t, env.DB, "bob", false)

	// No referral record exists at all.
	require.NoError(t, env.Referrals.CompleteReferral(context.Background(), "alice", "bob", "Alice"))

	bob := reloadUser(t, env.DB, "bob")
	assert.Zero(t, bob.AvailableBalance)
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)
	app := env.newTestApp(t)
	createUser(t, env.DB, "alice", true)

	resp, body := doJSON(t, app, "GET", "/users/me", nil, asUser("alice"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["id"])
	assert.Equal(t, true, body["is_premium"])

	resp, _ = doJSON(t, app, "GET", "/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
