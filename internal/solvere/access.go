package solvere

import (
	"context"
	"errors"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/validation"
)

const (
	reasonMerchantNotFound     = "merchant not found"
	reasonNoActiveSubscription = "no active subscription"
)

// CheckAccess grants access when the wallet holds an active subscription
// with the merchant, on planID if one is given. Only the status is
// consulted; ageing out is the sweep's job.
func (s *Solvere) CheckAccess(ctx context.Context, wallet, merchant, planID string) (*models.AccessResult, error) {
	wallet, err := validation.ValidateAndNormalizeAddress(wallet)
	if err != nil {
		return nil, validationError("wallet: %s", err)
	}

	m, err := s.GetMerchant(ctx, merchant)
	if errors.Is(err, models.ErrNotFound) {
		return &models.AccessResult{Access: false, Reason: reasonMerchantNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	subscriptions, err := s.repo.ListSubscriptions(ctx, models.SubscriptionFilter{
		MerchantID:  m.ID,
		PayerWallet: wallet,
		PlanID:      planID,
		Status:      models.SubscriptionStatusActive,
	})
	if err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return &models.AccessResult{Access: false, Reason: reasonNoActiveSubscription}, nil
	}

	return &models.AccessResult{Access: true, Subscription: subscriptions[0]}, nil
}
