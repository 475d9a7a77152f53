package solvere

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/solvere/internal/billing"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/validation"
)

// CreateSubscription starts an active subscription on a plan of the merchant.
func (s *Solvere) CreateSubscription(ctx context.Context, params models.CreateSubscriptionParams) (*models.Subscription, error) {
	if params.MerchantID == "" {
		return nil, validationError("merchant is required")
	}
	if params.PlanID == "" {
		return nil, validationError("plan_id is required")
	}
	wallet, err := validation.ValidateAndNormalizeAddress(params.Wallet)
	if err != nil {
		return nil, validationError("wallet: %s", err)
	}
	txHash, err := optionalTxHash(params.TxHash)
	if err != nil {
		return nil, err
	}

	plan, err := s.merchantPlan(ctx, params.MerchantID, params.PlanID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.createSubscription(ctx, s.repo, plan, params.Customer, wallet, txHash)
	if err != nil {
		return nil, err
	}
	s.notify(subscription.MerchantID, models.EventSubscriptionCreated, subscriptionData(subscription))
	return subscription, nil
}

func (s *Solvere) createSubscription(ctx context.Context, repo models.Repository, plan *models.Plan, customer, wallet, txHash string) (*models.Subscription, error) {
	now := s.clock()
	customer = strings.TrimSpace(customer)
	if customer == "" {
		customer = wallet
	}

	subscription := &models.Subscription{
		ID:               uuid.NewString(),
		MerchantID:       plan.MerchantID,
		Customer:         customer,
		PayerWallet:      wallet,
		PlanID:           plan.ID,
		Plan:             plan,
		Status:           models.SubscriptionStatusActive,
		CurrentPeriodEnd: billing.NextPeriodEnd(plan.Interval, now.Unix()),
		LastPaymentTx:    txHash,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if err := repo.CreateSubscription(ctx, subscription); err != nil {
		return nil, err
	}

	s.metrics.AddSubscriptionTransitions(models.SubscriptionStatusActive, 1)
	s.logger.Infow("Subscription created", "subscription_id", subscription.ID, "plan_id", plan.ID, "wallet", wallet, "current_period_end", subscription.CurrentPeriodEnd)
	return subscription, nil
}

// subscribeFromPayment renews the payer's latest subscription to plan, in
// whatever state it is, or creates one. renewed reports which of the two
// happened.
func (s *Solvere) subscribeFromPayment(ctx context.Context, repo models.Repository, plan *models.Plan, event *models.PaymentEvent, customer string) (*models.Subscription, bool, error) {
	existing, err := repo.ListSubscriptions(ctx, models.SubscriptionFilter{
		MerchantID:  plan.MerchantID,
		PayerWallet: event.Payer,
		PlanID:      plan.ID,
	})
	if err != nil {
		return nil, false, err
	}

	if len(existing) > 0 {
		subscription := existing[0]
		subscription.Plan = plan
		subscription, err = s.renewSubscription(ctx, repo, subscription, event.TxHash)
		return subscription, true, err
	}

	subscription, err := s.createSubscription(ctx, repo, plan, customer, event.Payer, event.TxHash)
	return subscription, false, err
}

// RenewSubscription starts a new period from now. It is meant to run after
// the payment for the period was verified.
func (s *Solvere) RenewSubscription(ctx context.Context, subscriptionID, txHash string) (*models.Subscription, error) {
	if err := validation.ValidateUUID(subscriptionID); err != nil {
		return nil, validationError("subscription_id: %s", err)
	}
	txHash, err := optionalTxHash(txHash)
	if err != nil {
		return nil, err
	}

	subscription, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	subscription, err = s.renewSubscription(ctx, s.repo, subscription, txHash)
	if err != nil {
		return nil, err
	}
	s.metrics.AddSubscriptionTransitions(models.SubscriptionStatusActive, 1)
	s.notify(subscription.MerchantID, models.EventSubscriptionRenewed, subscriptionData(subscription))
	return subscription, nil
}

// renewSubscription expects subscription.Plan to be loaded.
func (s *Solvere) renewSubscription(ctx context.Context, repo models.Repository, subscription *models.Subscription, txHash string) (*models.Subscription, error) {
	if subscription.Plan == nil {
		return nil, fmt.Errorf("plan %s of subscription %s: %w", subscription.PlanID, subscription.ID, models.ErrNotFound)
	}

	now := s.clock()
	if txHash == "" {
		txHash = subscription.LastPaymentTx
	}
	periodEnd := billing.NextPeriodEnd(subscription.Plan.Interval, now.Unix())

	err := repo.UpdateSubscription(ctx, subscription.ID, map[string]interface{}{
		"status":             models.SubscriptionStatusActive,
		"current_period_end": periodEnd,
		"last_payment_tx":    txHash,
		"updated_at":         now.UTC(),
	})
	if err != nil {
		return nil, err
	}

	subscription.Status = models.SubscriptionStatusActive
	subscription.CurrentPeriodEnd = periodEnd
	subscription.LastPaymentTx = txHash
	subscription.UpdatedAt = now.UTC()

	s.logger.Infow("Subscription renewed", "subscription_id", subscription.ID, "current_period_end", periodEnd)
	return subscription, nil
}

// CancelSubscription moves the subscription to canceled whatever its current
// state is.
func (s *Solvere) CancelSubscription(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	if err := validation.ValidateUUID(subscriptionID); err != nil {
		return nil, validationError("subscription_id must be a UUID")
	}

	subscription, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	err = s.repo.UpdateSubscription(ctx, subscription.ID, map[string]interface{}{
		"status":     models.SubscriptionStatusCanceled,
		"updated_at": now,
	})
	if err != nil {
		return nil, err
	}
	subscription.Status = models.SubscriptionStatusCanceled
	subscription.UpdatedAt = now

	s.metrics.AddSubscriptionTransitions(models.SubscriptionStatusCanceled, 1)
	s.logger.Infow("Subscription canceled", "subscription_id", subscription.ID)
	s.notify(subscription.MerchantID, models.EventSubscriptionCanceled, subscriptionData(subscription))
	return subscription, nil
}

// ListSubscriptions filters by merchant (id or wallet) and customer wallet.
// Both are optional.
func (s *Solvere) ListSubscriptions(ctx context.Context, merchant, customer string) ([]*models.Subscription, error) {
	var filter models.SubscriptionFilter

	if strings.TrimSpace(merchant) != "" {
		m, err := s.GetMerchant(ctx, merchant)
		if errors.Is(err, models.ErrNotFound) {
			return []*models.Subscription{}, nil
		}
		if err != nil {
			return nil, err
		}
		filter.MerchantID = m.ID
	}

	if strings.TrimSpace(customer) != "" {
		wallet, err := validation.ValidateAndNormalizeAddress(customer)
		if err != nil {
			return nil, validationError("customer: %s", err)
		}
		filter.PayerWallet = wallet
	}

	return s.repo.ListSubscriptions(ctx, filter)
}

// SweepExpired moves active subscriptions whose period ended before now to
// expired. Subscriptions in any other state are left alone. A renewal that
// commits between the read and the update is not overwritten. The backlog is
// worked off in batches so its size never reaches the driver's bind limit.
func (s *Solvere) SweepExpired(ctx context.Context, now int64) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		due, err := s.repo.ListDueSubscriptions(ctx, now, s.sweepBatchSize)
		if err != nil {
			return total, err
		}
		if len(due) == 0 {
			break
		}

		expired, err := s.expireBatch(ctx, due, now)
		total += expired
		if err != nil {
			return total, err
		}
		// nothing moved, so the next read would return the same rows
		if expired == 0 || len(due) < s.sweepBatchSize {
			break
		}
	}

	if total > 0 {
		s.logger.Infow("Expiration sweep done", "expired", total)
	}
	return total, nil
}

func (s *Solvere) expireBatch(ctx context.Context, due []*models.Subscription, now int64) (int64, error) {
	ids := make([]string, 0, len(due))
	for _, subscription := range due {
		ids = append(ids, subscription.ID)
	}

	expired, err := s.repo.ExpireSubscriptions(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	s.metrics.AddSubscriptionTransitions(models.SubscriptionStatusExpired, int(expired))
	s.logger.Debugw("Expiration batch done", "candidates", len(due), "expired", expired)

	for _, subscription := range due {
		current, err := s.repo.GetSubscription(ctx, subscription.ID)
		if err != nil {
			s.logger.Warnw("Failed to reload swept subscription", "subscription_id", subscription.ID, "error", err)
			continue
		}
		if current.Status != models.SubscriptionStatusExpired {
			continue
		}
		s.notify(current.MerchantID, models.EventSubscriptionExpired, subscriptionData(current))
	}
	return expired, nil
}

// MarkPaymentRequired asks for a new payment and, at the same time, moves the
// period end to nextPeriodEnd.
func (s *Solvere) MarkPaymentRequired(ctx context.Context, subscriptionID string, nextPeriodEnd int64) error {
	subscription, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	now := s.clock().UTC()
	err = s.repo.UpdateSubscription(ctx, subscription.ID, map[string]interface{}{
		"status":             models.SubscriptionStatusPaymentRequired,
		"current_period_end": nextPeriodEnd,
		"updated_at":         now,
	})
	if err != nil {
		return err
	}
	subscription.Status = models.SubscriptionStatusPaymentRequired
	subscription.CurrentPeriodEnd = nextPeriodEnd
	subscription.UpdatedAt = now

	s.metrics.AddSubscriptionTransitions(models.SubscriptionStatusPaymentRequired, 1)
	s.logger.Infow("Subscription payment required", "subscription_id", subscription.ID, "current_period_end", nextPeriodEnd)
	s.notify(subscription.MerchantID, models.EventSubscriptionPaymentRequired, subscriptionData(subscription))
	return nil
}

// RunRenewalReminders picks active subscriptions past their period end and
// asks their customers to pay for the next period. It returns how many were
// marked.
func (s *Solvere) RunRenewalReminders(ctx context.Context, now int64) (int, error) {
	due, err := s.repo.ListDueSubscriptions(ctx, now, renewalBatchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, subscription := range due {
		if subscription.Plan == nil {
			s.logger.Warnw("Subscription without plan skipped", "subscription_id", subscription.ID, "plan_id", subscription.PlanID)
			continue
		}
		next := billing.NextPeriodEnd(subscription.Plan.Interval, now)
		if err := s.MarkPaymentRequired(ctx, subscription.ID, next); err != nil {
			s.logger.Errorw("Failed to mark payment required", "subscription_id", subscription.ID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

func optionalTxHash(txHash string) (string, error) {
	if strings.TrimSpace(txHash) == "" {
		return "", nil
	}
	normalized, err := validation.NormalizeTxHash(txHash)
	if err != nil {
		return "", validationError("txHash: %s", err)
	}
	return normalized, nil
}

func subscriptionData(subscription *models.Subscription) map[string]interface{} {
	return map[string]interface{}{
		"subscription_id":    subscription.ID,
		"merchant_id":        subscription.MerchantID,
		"customer":           subscription.Customer,
		"payer_wallet":       subscription.PayerWallet,
		"plan_id":            subscription.PlanID,
		"status":             subscription.Status,
		"current_period_end": subscription.CurrentPeriodEnd,
		"updated_at":         subscription.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
