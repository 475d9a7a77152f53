package blockchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	gocore "github.com/core-coin/go-core/v2"
	"github.com/core-coin/go-core/v2/accounts/abi"
	"github.com/core-coin/go-core/v2/accounts/abi/bind"
	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/core/types"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

// DefaultRPCTimeout bounds every single RPC call made by the verifier
const DefaultRPCTimeout = 10 * time.Second

// ChainReader is the read-only subset of the node API the verifier needs.
// *xcbclient.Client satisfies it.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q gocore.FilterQuery) ([]types.Log, error)
}

// paymentReceived mirrors the PaymentReceived event arguments.
type paymentReceived struct {
	Merchant  common.Address
	Payer     common.Address
	Amount    *big.Int
	Timestamp *big.Int
}

// PaymentVerifier proves PaymentReceived events against the chain.
type PaymentVerifier struct {
	logger  *logger.Logger
	reader  ChainReader
	timeout time.Duration

	contractAddress common.Address
	contractABI     abi.ABI
	contract        *bind.BoundContract
}

// NewPaymentVerifier creates a verifier for the payments contract at contractAddress.
func NewPaymentVerifier(reader ChainReader, contractAddress common.Address, timeout time.Duration, logger *logger.Logger) (*PaymentVerifier, error) {
	parsedABI, err := abi.JSON(strings.NewReader(PaymentsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse payments ABI: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultRPCTimeout
	}

	return &PaymentVerifier{
		logger:          logger,
		reader:          reader,
		timeout:         timeout,
		contractAddress: contractAddress,
		contractABI:     parsedABI,
		// only used for log decoding, so no caller/transactor/filterer
		contract: bind.NewBoundContract(contractAddress, parsedABI, nil, nil, nil),
	}, nil
}

// VerifyPayment looks up the receipt of txHash and returns the
// PaymentReceived event emitted in it for merchant. txHash and merchant must
// already be in canonical form.
func (v *PaymentVerifier) VerifyPayment(ctx context.Context, txHash, merchant string) (*models.PaymentEvent, error) {
	receipt, err := v.transactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}

	v.logger.Debugw("Transaction found", "tx_hash", txHash, "block", receipt.BlockNumber)

	logs, err := v.filterLogs(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, err
	}

	v.logger.Debugw("Payment logs in block", "block", receipt.BlockNumber, "count", len(logs))

	for _, log := range logs {
		if log.Removed || encodeHex(log.TxHash.Bytes()) != txHash {
			continue
		}

		var event paymentReceived
		if err := v.contract.UnpackLog(&event, paymentReceivedEvent, log); err != nil {
			v.logger.Warnw("Failed to decode payment log", "tx_hash", txHash, "index", log.Index, "error", err)
			continue
		}
		if encodeHex(event.Merchant.Bytes()) != merchant {
			continue
		}
		timestamp, err := bigInt64(event.Timestamp)
		if err != nil {
			v.logger.Warnw("Failed to decode payment log", "tx_hash", txHash, "index", log.Index, "error", err)
			continue
		}

		return &models.PaymentEvent{
			Merchant:    encodeHex(event.Merchant.Bytes()),
			Payer:       encodeHex(event.Payer.Bytes()),
			Amount:      bigString(event.Amount),
			Timestamp:   timestamp,
			TxHash:      txHash,
			BlockNumber: log.BlockNumber,
		}, nil
	}

	return nil, fmt.Errorf("payment event not found for this transaction: %w", models.ErrNotFound)
}

func (v *PaymentVerifier) transactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	receipt, err := v.reader.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, gocore.NotFound) {
			return nil, fmt.Errorf("transaction not found: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction receipt: %w: %s", models.ErrUpstream, err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, fmt.Errorf("transaction not found: %w", models.ErrNotFound)
	}
	return receipt, nil
}

func (v *PaymentVerifier) filterLogs(ctx context.Context, block *big.Int) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	query := gocore.FilterQuery{
		FromBlock: block,
		ToBlock:   block,
		Addresses: []common.Address{v.contractAddress},
		Topics:    [][]common.Hash{{v.contractABI.Events[paymentReceivedEvent].ID}},
	}
	logs, err := v.reader.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter payment logs: %w: %s", models.ErrUpstream, err)
	}
	return logs, nil
}

// encodeHex renders raw bytes in the canonical form used across the service.
func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigInt64(v *big.Int) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("missing integer value")
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("value %s overflows int64", v)
	}
	return v.Int64(), nil
}
