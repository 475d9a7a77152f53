package solvere

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/core-coin/solvere/internal/billing"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/validation"
)

var _ models.SolvereI = (*Solvere)(nil)

const apiKeyPrefix = "sk_"

// ResolveOrCreateMerchant returns the id of the merchant owning wallet,
// creating the merchant on first sight.
func (s *Solvere) ResolveOrCreateMerchant(ctx context.Context, wallet string) (string, error) {
	wallet, err := validation.ValidateAndNormalizeAddress(wallet)
	if err != nil {
		return "", validationError("merchant: %s", err)
	}

	if id := s.cachedMerchantID(ctx, wallet); id != "" {
		return id, nil
	}

	merchant, err := s.repo.GetMerchantByWallet(ctx, wallet)
	if errors.Is(err, models.ErrNotFound) {
		merchant, err = s.createMerchant(ctx, wallet)
	}
	if err != nil {
		return "", err
	}

	s.cacheMerchantID(ctx, wallet, merchant.ID)
	return merchant.ID, nil
}

func (s *Solvere) createMerchant(ctx context.Context, wallet string) (*models.Merchant, error) {
	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	merchant := &models.Merchant{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		APIKey:    apiKey,
		CreatedAt: s.clock().UTC(),
	}
	err = s.repo.CreateMerchant(ctx, merchant)
	if errors.Is(err, models.ErrDuplicate) {
		// another request created it first
		return s.repo.GetMerchantByWallet(ctx, wallet)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Merchant created", "merchant_id", merchant.ID, "wallet", wallet)
	return merchant, nil
}

func (s *Solvere) cachedMerchantID(ctx context.Context, wallet string) string {
	if s.cache == nil {
		return ""
	}
	id, err := s.cache.GetMerchantID(ctx, wallet)
	if err != nil {
		s.logger.Warnw("Merchant cache lookup failed", "wallet", wallet, "error", err)
		return ""
	}
	return id
}

func (s *Solvere) cacheMerchantID(ctx context.Context, wallet, merchantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetMerchantID(ctx, wallet, merchantID); err != nil {
		s.logger.Warnw("Failed to cache merchant id", "wallet", wallet, "error", err)
	}
}

// generateAPIKey returns "sk_" followed by 32 random bytes in hex.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// GetMerchant accepts either a merchant id or a wallet address.
func (s *Solvere) GetMerchant(ctx context.Context, merchant string) (*models.Merchant, error) {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return nil, validationError("merchant is required")
	}

	if validation.ValidateUUID(merchant) == nil {
		return s.repo.GetMerchantByID(ctx, merchant)
	}

	wallet, err := validation.ValidateAndNormalizeAddress(merchant)
	if err != nil {
		return nil, validationError("merchant: %s", err)
	}
	if id := s.cachedMerchantID(ctx, wallet); id != "" {
		return s.repo.GetMerchantByID(ctx, id)
	}
	return s.repo.GetMerchantByWallet(ctx, wallet)
}

func (s *Solvere) GetMerchantByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return nil, fmt.Errorf("%w: missing or malformed api key", models.ErrUnauthorized)
	}

	merchant, err := s.repo.GetMerchantByAPIKey(ctx, apiKey)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown api key", models.ErrUnauthorized)
	}
	return merchant, err
}

// SetMerchantWebhook sets the merchant's webhook URL. An empty URL removes it.
func (s *Solvere) SetMerchantWebhook(ctx context.Context, merchantID, webhookURL string) error {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL != "" {
		u, err := url.Parse(webhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationError("webhook_url must be an absolute http(s) URL")
		}
	}

	if err := s.repo.UpdateMerchantWebhook(ctx, merchantID, webhookURL); err != nil {
		return err
	}
	s.logger.Infow("Merchant webhook updated", "merchant_id", merchantID, "webhook_url", webhookURL)
	return nil
}

func (s *Solvere) CreatePlan(ctx context.Context, merchantID, name, amount, interval string) (*models.Plan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	amount = strings.TrimSpace(amount)
	if v, ok := new(big.Int).SetString(amount, 10); !ok || v.Sign() <= 0 {
		return nil, validationError("amount must be a positive integer in the smallest unit")
	}
	if !billing.ValidInterval(interval) {
		return nil, validationError("interval must be one of weekly, monthly, yearly")
	}

	plan := &models.Plan{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Name:       name,
		Amount:     amount,
		Interval:   interval,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.repo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Solvere) ListPlans(ctx context.Context, merchant string) ([]*models.Plan, error) {
	m, err := s.GetMerchant(ctx, merchant)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPlans(ctx, m.ID)
}
