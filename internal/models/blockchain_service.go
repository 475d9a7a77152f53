package models

import "context"

// ChainVerifier proves that a payment event was emitted on chain.
type ChainVerifier interface {
	// VerifyPayment returns the PaymentReceived event emitted for merchant in
	// transaction txHash. Both arguments are in canonical form. It fails with
	// ErrNotFound when the transaction or a matching event does not exist.
	VerifyPayment(ctx context.Context, txHash, merchant string) (*PaymentEvent, error)
}
