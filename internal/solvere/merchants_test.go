package solvere

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/models"
)

func TestResolveOrCreateMerchant(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	id, err := env.solvere.ResolveOrCreateMerchant(ctx, "0X"+merchantWallet)
	require.NoError(t, err)

	again, err := env.solvere.ResolveOrCreateMerchant(ctx, merchantWallet)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	m, err := env.db.GetMerchantByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, merchantWallet, m.Wallet)
	assert.Regexp(t, regexp.MustCompile(`^sk_[0-9a-f]{64}$`), m.APIKey)

	_, err = env.solvere.ResolveOrCreateMerchant(ctx, "0x12")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestResolveOrCreateMerchant_Cache(t *testing.T) {
	cache := &mapCache{ids: make(map[string]string)}
	env := setup(t, WithMerchantCache(cache))
	ctx := context.Background()

	id, err := env.solvere.ResolveOrCreateMerchant(ctx, merchantWallet)
	require.NoError(t, err)
	assert.Equal(t, id, cache.ids[merchantWallet])

	again, err := env.solvere.ResolveOrCreateMerchant(ctx, merchantWallet)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, cache.hits)

	m, err := env.solvere.GetMerchant(ctx, merchantWallet)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := generateAPIKey()
	require.NoError(t, err)
	b, err := generateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 3+64)
}

func TestGetMerchantByAPIKey(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	m := env.merchant(t, merchantWallet)

	found, err := env.solvere.GetMerchantByAPIKey(ctx, m.APIKey)
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	_, err = env.solvere.GetMerchantByAPIKey(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = env.solvere.GetMerchantByAPIKey(ctx, "sk_unknown")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSetMerchantWebhook(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	m := env.merchant(t, merchantWallet)

	require.NoError(t, env.solvere.SetMerchantWebhook(ctx, m.ID, "https://shop.example.com/hooks"))
	found, err := env.db.GetMerchantByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/hooks", found.WebhookURL)

	require.NoError(t, env.solvere.SetMerchantWebhook(ctx, m.ID, ""))

	for _, bad := range []string{"ftp://example.com", "/relative", "https://"} {
		assert.ErrorIs(t, env.solvere.SetMerchantWebhook(ctx, m.ID, bad), models.ErrValidation, bad)
	}

	assert.ErrorIs(t, env.solvere.SetMerchantWebhook(ctx, uuid.NewString(), "https://example.com"), models.ErrNotFound)
}

func TestPlans(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	m := env.merchant(t, merchantWallet)

	plan, err := env.solvere.CreatePlan(ctx, m.ID, " Pro ", "1000000", "monthly")
	require.NoError(t, err)
	assert.Equal(t, "Pro", plan.Name)

	cases := []struct{ name, amount, interval string }{
		{"", "1", "monthly"},
		{"Pro", "0", "monthly"},
		{"Pro", "0.5", "monthly"},
		{"Pro", "-3", "monthly"},
		{"Pro", "1", "daily"},
	}
	for _, c := range cases {
		_, err := env.solvere.CreatePlan(ctx, m.ID, c.name, c.amount, c.interval)
		assert.ErrorIs(t, err, models.ErrValidation, c)
	}

	plans, err := env.solvere.ListPlans(ctx, merchantWallet)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)
}
