package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/xcbclient"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

// Gocore owns the connection to the Core RPC node and the payment verifier
// built on top of it.
type Gocore struct {
	logger          *logger.Logger
	apiURL          string
	contractAddress string
	timeout         time.Duration

	mu       sync.RWMutex
	client   *xcbclient.Client
	verifier *PaymentVerifier
}

// NewGocore creates a new Gocore instance.
func NewGocore(apiURL, contractAddress string, timeout time.Duration, logger *logger.Logger) *Gocore {
	return &Gocore{
		apiURL:          apiURL,
		contractAddress: contractAddress,
		timeout:         timeout,
		logger:          logger,
	}
}

func (g *Gocore) Run() error {
	err := g.ConnectToRPC()
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	err = g.BuildBindings()
	if err != nil {
		return fmt.Errorf("failed to build bindings: %w", err)
	}
	return nil
}

func (g *Gocore) ConnectToRPC() error {
	client, err := xcbclient.Dial(g.apiURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	g.mu.Lock()
	g.client = client
	g.mu.Unlock()
	return nil
}

func (g *Gocore) BuildBindings() error {
	contractAddress, err := common.HexToAddress(g.contractAddress)
	if err != nil {
		return fmt.Errorf("failed to parse payments contract address: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	verifier, err := NewPaymentVerifier(g.client, contractAddress, g.timeout, g.logger)
	if err != nil {
		return err
	}
	g.verifier = verifier
	return nil
}

// VerifyPayment implements models.ChainVerifier.
func (g *Gocore) VerifyPayment(ctx context.Context, txHash, merchant string) (*models.PaymentEvent, error) {
	g.mu.RLock()
	verifier := g.verifier
	g.mu.RUnlock()

	if verifier == nil {
		return nil, fmt.Errorf("blockchain service is not running: %w", models.ErrUpstream)
	}
	return verifier.VerifyPayment(ctx, txHash, merchant)
}

func (g *Gocore) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		g.client.Close()
		g.client = nil
	}
	g.verifier = nil

	return nil
}
