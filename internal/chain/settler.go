package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/paygate/internal/x402"
)

// EIP-3009 transfer entry point. The contract re-verifies signer,
// window, and nonce atomically with the transfer, so a stale or forged
// authorization reverts on-chain even if it slipped past local checks.
const transferWithAuthorizationABI = `[{
	"type": "function",
	"name": "transferWithAuthorization",
	"inputs": [
		{"name": "from", "type": "address"},
		{"name": "to", "type": "address"},
		{"name": "value", "type": "uint256"},
		{"name": "validAfter", "type": "uint256"},
		{"name": "validBefore", "type": "uint256"},
		{"name": "nonce", "type": "bytes32"},
		{"name": "v", "type": "uint8"},
		{"name": "r", "type": "bytes32"},
		{"name": "s", "type": "bytes32"}
	],
	"outputs": []
}]`

const (
	// ReceiptPollInterval between receipt checks while confirming.
	ReceiptPollInterval = 2 * time.Second

	// gasBufferPercent padding over the gas estimate.
	gasBufferPercent = 120
)

// SettlerConfig configures the settlement submitter.
type SettlerConfig struct {
	ChainID      int64
	AssetAddress string
	PrivateKey   string // hex, 0x prefix optional
	GasLimitCap  uint64 // 0 = no cap
}

// Settler submits transferWithAuthorization settlements. It owns the
// facilitator's settlement key as a scoped resource: acquired once at
// construction, replaceable via Rotate, and zeroed on Close.
type Settler struct {
	mu      sync.Mutex
	client  Client
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	asset   common.Address
	abi     abi.ABI
	gasCap  uint64
	poll    time.Duration
	closed  bool
}

// NewSettler creates a Settler from the configured key.
func NewSettler(client Client, cfg SettlerConfig) (*Settler, error) {
	key, addr, err := parseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(strings.NewReader(transferWithAuthorizationABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse transferWithAuthorization ABI: %w", err)
	}

	return &Settler{
		client:  client,
		key:     key,
		address: addr,
		chainID: big.NewInt(cfg.ChainID),
		asset:   common.HexToAddress(cfg.AssetAddress),
		abi:     parsed,
		gasCap:  cfg.GasLimitCap,
		poll:    ReceiptPollInterval,
	}, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// Address returns the settlement account paying gas.
func (s *Settler) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address.Hex()
}

// Rotate swaps in a new settlement key.
func (s *Settler) Rotate(hexKey string) error {
	key, addr, err := parseKey(hexKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	zeroKey(s.key)
	s.key, s.address = key, addr
	return nil
}

// Close releases the settlement key and the RPC connection. The
// settler rejects submissions afterwards.
func (s *Settler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	zeroKey(s.key)
	s.key = nil
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func zeroKey(key *ecdsa.PrivateKey) {
	if key != nil && key.D != nil {
		key.D.SetInt64(0)
	}
}

// Submit sends the value transfer on-chain, presenting the payer's
// signature so the contract itself re-verifies the authorization.
// It returns as soon as the transaction is accepted by the mempool;
// use WaitForReceipt for confirmation.
func (s *Settler) Submit(ctx context.Context, auth x402.Authorization, signature string) (string, error) {
	// The lock is held from the account nonce read through send.
	// Concurrent submissions would otherwise fetch the same pending
	// nonce and sign colliding transactions.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	key := s.key
	from := s.address

	data, err := s.packCalldata(auth, signature)
	if err != nil {
		return "", err
	}

	txNonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", &SubmitError{Op: "nonce", Err: err}
	}

	gasTipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", &SubmitError{Op: "gas_tip", Err: err}
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", &SubmitError{Op: "head", Err: err}
	}
	if header.BaseFee == nil {
		return "", &SubmitError{Op: "head", Err: errors.New("no base fee: network may not support EIP-1559")}
	}

	// 2x base fee plus tip keeps the tx marketable across a few blocks.
	gasFeeCap := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), gasTipCap)

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &s.asset,
		Data: data,
	})
	if err != nil {
		return "", &SubmitError{Op: "estimate", Err: err}
	}
	gasLimit = gasLimit * gasBufferPercent / 100
	if s.gasCap > 0 && gasLimit > s.gasCap {
		return "", &SubmitError{Op: "estimate", Err: fmt.Errorf("gas limit %d exceeds cap %d", gasLimit, s.gasCap)}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     txNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &s.asset,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(s.chainID), key)
	if err != nil {
		return "", &SubmitError{Op: "sign", Err: err}
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", &SubmitError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForReceipt polls until the transaction is mined or the timeout
// elapses. A mined-but-reverted transaction returns ErrReverted; an
// unobserved one returns ErrConfirmationTimeout (chain state unknown,
// not negative).
func (s *Settler) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: tx %s", ErrConfirmationTimeout, txHash)
			}
			return nil, ctx.Err()

		case <-ticker.C:
			receipt, err := s.client.TransactionReceipt(ctx, hash)
			if err != nil {
				continue // not yet mined
			}
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: tx %s", ErrReverted, txHash)
			}
			return receipt, nil
		}
	}
}

func (s *Settler) packCalldata(auth x402.Authorization, signature string) ([]byte, error) {
	value, ok := auth.ValueBig()
	if !ok {
		return nil, &SubmitError{Op: "pack", Err: fmt.Errorf("invalid value %q", auth.Value)}
	}
	validAfter, validBefore, ok := auth.Window()
	if !ok {
		return nil, &SubmitError{Op: "pack", Err: errors.New("invalid validity window")}
	}

	nonceRaw, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceRaw) != 32 {
		return nil, &SubmitError{Op: "pack", Err: fmt.Errorf("invalid nonce %q", auth.Nonce)}
	}
	var nonce [32]byte
	copy(nonce[:], nonceRaw)

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, &SubmitError{Op: "pack", Err: errors.New("invalid signature encoding")}
	}

	var r, sv [32]byte
	copy(r[:], sig[0:32])
	copy(sv[:], sig[32:64])
	v := sig[64]
	if v == 0 || v == 1 {
		v += 27 // contract expects the legacy form
	}

	data, err := s.abi.Pack(
		"transferWithAuthorization",
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		value,
		big.NewInt(validAfter),
		big.NewInt(validBefore),
		nonce,
		v,
		r,
		sv,
	)
	if err != nil {
		return nil, &SubmitError{Op: "pack", Err: err}
	}
	return data, nil
}
