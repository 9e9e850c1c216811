package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/paygate/internal/x402"
)

// stubClient is a scripted chain client.
type stubClient struct {
	balance     *big.Int
	callErr     error
	nonce       uint64
	sendErr     error
	sentTx      *types.Transaction
	receipt     *types.Receipt
	receiptErr  error
	estimateGas uint64
}

func (s *stubClient) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	return common.LeftPadBytes(s.balance.Bytes(), 32), nil
}

func (s *stubClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return s.nonce, nil
}

func (s *stubClient) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (s *stubClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(50_000_000)}, nil
}

func (s *stubClient) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if s.estimateGas == 0 {
		return 60_000, nil
	}
	return s.estimateGas, nil
}

func (s *stubClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sentTx = tx
	return nil
}

func (s *stubClient) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	if s.receiptErr != nil {
		return nil, s.receiptErr
	}
	return s.receipt, nil
}

func (s *stubClient) Close() {}

const testAsset = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"

func testKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func testAuthorization() x402.Authorization {
	return x402.Authorization{
		From:        "0x1111111111111111111111111111111111111111",
		To:          "0x2222222222222222222222222222222222222222",
		Value:       "10000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       "0x0101010101010101010101010101010101010101010101010101010101010101",
	}
}

func testSignature() string {
	sig := make([]byte, crypto.SignatureLength)
	for i := range sig {
		sig[i] = byte(i)
	}
	sig[64] = 27
	return "0x" + hex.EncodeToString(sig)
}

// --- Oracle ---

func TestOracle_Sufficient(t *testing.T) {
	client := &stubClient{balance: big.NewInt(50_000)}
	oracle, err := NewOracle(client, testAsset)
	require.NoError(t, err)

	check := oracle.Sufficient(context.Background(), "0x1111111111111111111111111111111111111111", big.NewInt(10_000))
	assert.True(t, check.Sufficient)
	assert.False(t, check.Unavailable)
	assert.Equal(t, big.NewInt(50_000), check.Balance)
}

func TestOracle_Insufficient(t *testing.T) {
	client := &stubClient{balance: big.NewInt(5_000)}
	oracle, err := NewOracle(client, testAsset)
	require.NoError(t, err)

	check := oracle.Sufficient(context.Background(), "0x1111111111111111111111111111111111111111", big.NewInt(10_000))
	assert.False(t, check.Sufficient)
	assert.False(t, check.Unavailable)
	assert.NotEmpty(t, check.Detail)
}

func TestOracle_RPCFailureFailsClosed(t *testing.T) {
	client := &stubClient{callErr: errors.New("connection refused")}
	oracle, err := NewOracle(client, testAsset)
	require.NoError(t, err)

	check := oracle.Sufficient(context.Background(), "0x1111111111111111111111111111111111111111", big.NewInt(1))
	assert.False(t, check.Sufficient, "a degraded oracle must fail closed")
	assert.True(t, check.Unavailable)
}

func TestOracle_BadAccount(t *testing.T) {
	client := &stubClient{balance: big.NewInt(1)}
	oracle, err := NewOracle(client, testAsset)
	require.NoError(t, err)

	check := oracle.Sufficient(context.Background(), "not-an-address", big.NewInt(1))
	assert.False(t, check.Sufficient)
}

// --- Settler ---

func TestSettler_Submit(t *testing.T) {
	client := &stubClient{nonce: 7}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)

	txHash, err := settler.Submit(context.Background(), testAuthorization(), testSignature())
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)

	require.NotNil(t, client.sentTx)
	assert.Equal(t, uint64(7), client.sentTx.Nonce())
	assert.Equal(t, common.HexToAddress(testAsset), *client.sentTx.To())
	assert.Equal(t, int64(0), client.sentTx.Value().Int64())
	assert.Equal(t, uint64(72_000), client.sentTx.Gas(), "estimate plus 20 percent buffer")
	assert.Equal(t, txHash, client.sentTx.Hash().Hex())
}

// nonceTrackingClient advances the pending account nonce only when a
// transaction is accepted, like a real node.
type nonceTrackingClient struct {
	stubClient
	mu    sync.Mutex
	next  uint64
	seen  []uint64
}

func (c *nonceTrackingClient) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next, nil
}

func (c *nonceTrackingClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, tx.Nonce())
	c.next++
	return nil
}

func TestSettler_ConcurrentSubmitsUseDistinctNonces(t *testing.T) {
	client := &nonceTrackingClient{}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := settler.Submit(context.Background(), testAuthorization(), testSignature())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, client.seen, 4)
	used := make(map[uint64]bool)
	for _, n := range client.seen {
		assert.False(t, used[n], "account nonce %d signed twice", n)
		used[n] = true
	}
}

func TestSettler_SubmitGasCapExceeded(t *testing.T) {
	client := &stubClient{estimateGas: 200_000}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
		GasLimitCap:  100_000,
	})
	require.NoError(t, err)

	_, err = settler.Submit(context.Background(), testAuthorization(), testSignature())
	require.Error(t, err)
	var submitErr *SubmitError
	assert.ErrorAs(t, err, &submitErr)
}

func TestSettler_SubmitSendFailure(t *testing.T) {
	client := &stubClient{sendErr: errors.New("nonce too low")}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)

	_, err = settler.Submit(context.Background(), testAuthorization(), testSignature())
	require.Error(t, err)

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, "send", submitErr.Op)
	assert.NotEmpty(t, submitErr.TxHash, "send failures carry the tx hash")
}

func TestSettler_ClosedRejectsSubmit(t *testing.T) {
	client := &stubClient{}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)

	require.NoError(t, settler.Close())
	_, err = settler.Submit(context.Background(), testAuthorization(), testSignature())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSettler_Rotate(t *testing.T) {
	client := &stubClient{}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)

	before := settler.Address()
	require.NoError(t, settler.Rotate(testKeyHex(t)))
	assert.NotEqual(t, before, settler.Address())

	require.Error(t, settler.Rotate("zz"), "garbage key must be rejected")

	require.NoError(t, settler.Close())
	assert.ErrorIs(t, settler.Rotate(testKeyHex(t)), ErrClosed)
}

func TestSettler_WaitForReceipt(t *testing.T) {
	client := &stubClient{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
	}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)
	settler.poll = time.Millisecond

	receipt, err := settler.WaitForReceipt(context.Background(), "0xabc", time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}

func TestSettler_WaitForReceiptReverted(t *testing.T) {
	client := &stubClient{
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed},
	}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)
	settler.poll = time.Millisecond

	_, err = settler.WaitForReceipt(context.Background(), "0xabc", time.Second)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestSettler_WaitForReceiptTimeout(t *testing.T) {
	client := &stubClient{receiptErr: errors.New("not found")}
	settler, err := NewSettler(client, SettlerConfig{
		ChainID:      84532,
		AssetAddress: testAsset,
		PrivateKey:   testKeyHex(t),
	})
	require.NoError(t, err)
	settler.poll = time.Millisecond

	_, err = settler.WaitForReceipt(context.Background(), "0xabc", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}
