// Package chain wraps all blockchain interaction for the facilitator:
// read-only balance queries and submission of transferWithAuthorization
// settlements signed by the facilitator's settlement key.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Typed errors for programmatic handling.
var (
	ErrInvalidPrivateKey   = errors.New("chain: invalid private key")
	ErrRPCConnection       = errors.New("chain: RPC connection failed")
	ErrReverted            = errors.New("chain: transaction reverted")
	ErrConfirmationTimeout = errors.New("chain: confirmation not observed in time")
	ErrClosed              = errors.New("chain: settler closed")
)

// SubmitError wraps settlement submission failures with context.
type SubmitError struct {
	Op     string // operation that failed
	TxHash string // transaction hash if one was produced
	Err    error
}

func (e *SubmitError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain: %s failed: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Client abstracts the go-ethereum client so tests can stub the chain.
type Client interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dial connects to an RPC endpoint.
func Dial(rpcURL string) (Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
	}
	return client, nil
}
