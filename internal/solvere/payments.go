package solvere

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/validation"
)

// VerifyPayment proves the payment on chain, resolves the merchant and
// records the payment exactly once. With a plan id the payer's subscription
// to that plan is created or renewed in the same storage transaction.
// A transaction that is already recorded yields AlreadyRecorded and no side
// effects.
func (s *Solvere) VerifyPayment(ctx context.Context, req *models.VerifyRequest) (*models.VerifyResult, error) {
	result, err := s.verifyPayment(ctx, req)
	switch {
	case err == nil && result.AlreadyRecorded:
		s.metrics.IncPaymentVerified(metrics.VerifyReplayed)
	case err == nil:
		s.metrics.IncPaymentVerified(metrics.VerifyRecorded)
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrNotFound):
		s.metrics.IncPaymentVerified(metrics.VerifyRejected)
	default:
		s.metrics.IncPaymentVerified(metrics.VerifyFailed)
	}
	return result, err
}

func (s *Solvere) verifyPayment(ctx context.Context, req *models.VerifyRequest) (*models.VerifyResult, error) {
	txHash, err := validation.NormalizeTxHash(req.TxHash)
	if err != nil {
		return nil, validationError("txHash: %s", err)
	}
	merchant, err := validation.ValidateAndNormalizeAddress(req.Merchant)
	if err != nil {
		return nil, validationError("merchant: %s", err)
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, validationError("amount is required")
	}

	event, err := s.chain.VerifyPayment(ctx, txHash, merchant)
	if err != nil {
		s.logger.Infow("Payment not verified", "tx_hash", txHash, "merchant", merchant, "error", err)
		return nil, err
	}

	merchantID, err := s.ResolveOrCreateMerchant(ctx, event.Merchant)
	if err != nil {
		return nil, err
	}

	var plan *models.Plan
	if req.PlanID != "" {
		plan, err = s.merchantPlan(ctx, merchantID, req.PlanID)
		if err != nil {
			return nil, err
		}
		if err := paymentCoversPlan(event, plan); err != nil {
			s.logger.Infow("Payment does not cover plan", "tx_hash", txHash, "plan_id", plan.ID, "amount", event.Amount, "plan_amount", plan.Amount)
			return nil, err
		}
	}

	if plan == nil {
		payment, created, err := s.RecordPayment(ctx, merchantID, event)
		if err != nil {
			return nil, err
		}
		if !created {
			return &models.VerifyResult{AlreadyRecorded: true, Payment: payment, Event: event}, nil
		}
		s.notifyPayment(payment, event)
		return &models.VerifyResult{Payment: payment, Event: event}, nil
	}

	var (
		payment      *models.Payment
		subscription *models.Subscription
		renewed      bool
	)
	err = s.repo.Transaction(ctx, func(repo models.Repository) error {
		payment = s.newPayment(merchantID, event)
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		var subErr error
		subscription, renewed, subErr = s.subscribeFromPayment(ctx, repo, plan, event, req.Customer)
		return subErr
	})
	if errors.Is(err, models.ErrDuplicate) {
		// the insert aborted the transaction, look the row up outside of it
		existing, err := s.repo.GetPaymentByTxHash(ctx, txHash)
		if err != nil {
			return nil, err
		}
		return &models.VerifyResult{AlreadyRecorded: true, Payment: existing, Event: event}, nil
	}
	if err != nil {
		return nil, err
	}

	s.notifyPayment(payment, event)
	if renewed {
		s.metrics.AddSubscriptionTransitions(models.SubscriptionStatusActive, 1)
		s.notify(merchantID, models.EventSubscriptionRenewed, subscriptionData(subscription))
	} else {
		s.notify(merchantID, models.EventSubscriptionCreated, subscriptionData(subscription))
	}
	return &models.VerifyResult{Payment: payment, Event: event, Subscription: subscription}, nil
}

// merchantPlan loads a plan and makes sure it belongs to merchantID.
func (s *Solvere) merchantPlan(ctx context.Context, merchantID, planID string) (*models.Plan, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.MerchantID != merchantID {
		return nil, fmt.Errorf("plan %s: %w", planID, models.ErrNotFound)
	}
	return plan, nil
}

// paymentCoversPlan rejects an on-chain amount below the plan price. Nothing
// is recorded for such a payment.
func paymentCoversPlan(event *models.PaymentEvent, plan *models.Plan) error {
	paid, ok := new(big.Int).SetString(event.Amount, 10)
	if !ok {
		return fmt.Errorf("invalid payment amount %q: %w", event.Amount, models.ErrUpstream)
	}
	price, ok := new(big.Int).SetString(plan.Amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q of plan %s: %w", plan.Amount, plan.ID, models.ErrUpstream)
	}
	if paid.Cmp(price) < 0 {
		return validationError("payment amount below plan amount: paid %s, plan requires %s", paid, price)
	}
	return nil
}

// RecordPayment inserts a verified payment for event. When the transaction
// is already in the ledger it returns the existing row and created=false.
func (s *Solvere) RecordPayment(ctx context.Context, merchantID string, event *models.PaymentEvent) (*models.Payment, bool, error) {
	payment := s.newPayment(merchantID, event)
	err := s.repo.CreatePayment(ctx, payment)
	if errors.Is(err, models.ErrDuplicate) {
		existing, err := s.repo.GetPaymentByTxHash(ctx, event.TxHash)
		if err != nil {
			return nil, false, err
		}
		s.logger.Infow("Payment already recorded", "tx_hash", event.TxHash, "payment_id", existing.ID)
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.logger.Infow("Payment recorded", "tx_hash", event.TxHash, "payment_id", payment.ID, "merchant_id", merchantID, "amount", payment.Amount)
	return payment, true, nil
}

func (s *Solvere) newPayment(merchantID string, event *models.PaymentEvent) *models.Payment {
	return &models.Payment{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Payer:      event.Payer,
		Amount:     event.Amount,
		TxHash:     event.TxHash,
		Timestamp:  event.Timestamp,
		Status:     models.PaymentStatusVerified,
		CreatedAt:  s.clock().UTC(),
	}
}

func (s *Solvere) notifyPayment(payment *models.Payment, event *models.PaymentEvent) {
	s.notify(payment.MerchantID, models.EventPaymentSucceeded, map[string]interface{}{
		"payment_id":  payment.ID,
		"merchant_id": payment.MerchantID,
		"merchant":    event.Merchant,
		"payer":       payment.Payer,
		"amount":      payment.Amount,
		"tx_hash":     payment.TxHash,
		"timestamp":   payment.Timestamp,
	})
}

func (s *Solvere) ListPayments(ctx context.Context, merchant string) ([]*models.Payment, error) {
	m, err := s.GetMerchant(ctx, merchant)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, m.ID)
}

// ListPendingInvoices returns verified payments the invoicing side has not
// marked yet, oldest first.
func (s *Solvere) ListPendingInvoices(ctx context.Context, limit int) ([]*models.Payment, error) {
	if limit <= 0 {
		limit = defaultPendingInvoices
	}
	return s.repo.ListPaymentsPendingInvoice(ctx, limit)
}

func (s *Solvere) MarkInvoiceSent(ctx context.Context, paymentID string) error {
	if err := validation.ValidateUUID(paymentID); err != nil {
		return validationError("payment id: %s", err)
	}
	return s.repo.MarkInvoiceSent(ctx, paymentID)
}
