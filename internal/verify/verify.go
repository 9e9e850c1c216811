// Package verify implements server-side verification of EIP-3009
// transfer authorizations: it rebuilds the EIP-712 typed message and
// recovers the signer, confirming it matches the claimed payer.
//
// Verification here is a fast-reject optimization; the chain re-checks
// the same signature and window atomically at settlement time.
package verify

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mbd888/paygate/internal/x402"
)

// NonceBytes is the required length of a decoded authorization nonce.
const NonceBytes = 32

// Config binds the verifier to one asset contract on one network.
// The domain fields must match the client signer exactly.
type Config struct {
	ChainID      int64
	AssetName    string // EIP-712 domain name (asset display name)
	AssetVersion string // asset contract's authorization-scheme version
	AssetAddress string // verifying contract
}

// Result is the outcome of a verification. Verify never returns an
// error for malformed input; it reports Valid=false with a reason.
type Result struct {
	Valid  bool
	Payer  string // recovered signer, hex, when Valid
	Reason x402.Reason
	Detail string
}

// Verifier checks authorization signatures. It is pure CPU work with
// no I/O and is safe to call before any chain interaction.
type Verifier struct {
	cfg Config
	now func() time.Time
}

// New creates a Verifier for the given asset/network domain.
func New(cfg Config) *Verifier {
	return &Verifier{cfg: cfg, now: time.Now}
}

func invalid(reason x402.Reason, format string, args ...interface{}) Result {
	return Result{Valid: false, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Verify recovers the signer of the authorization and confirms it
// matches the claimed payer. It also enforces the validity window
// against the current clock.
func (v *Verifier) Verify(auth x402.Authorization, signature string) Result {
	validAfter, validBefore, ok := auth.Window()
	if !ok {
		return invalid(x402.ReasonInvalidSignature, "validity window is not numeric")
	}
	if validAfter >= validBefore {
		// Degenerate window: no instant satisfies it.
		return invalid(x402.ReasonPaymentExpired, "degenerate validity window: validAfter %d >= validBefore %d", validAfter, validBefore)
	}

	now := v.now().Unix()
	if now < validAfter {
		return invalid(x402.ReasonWindowNotYetValid, "authorization becomes valid at %d, now %d", validAfter, now)
	}
	if now >= validBefore {
		return invalid(x402.ReasonPaymentExpired, "authorization expired at %d, now %d", validBefore, now)
	}

	value, ok := auth.ValueBig()
	if !ok {
		return invalid(x402.ReasonInvalidSignature, "value is not a non-negative decimal integer")
	}

	if !common.IsHexAddress(auth.From) {
		return invalid(x402.ReasonInvalidSignature, "from is not a valid address")
	}
	if !common.IsHexAddress(auth.To) {
		return invalid(x402.ReasonInvalidSignature, "to is not a valid address")
	}
	from := common.HexToAddress(auth.From)

	nonce, err := decodeNonce(auth.Nonce)
	if err != nil {
		return invalid(x402.ReasonInvalidSignature, "nonce: %v", err)
	}

	sighash, err := v.sigHash(auth, value, validAfter, validBefore, nonce)
	if err != nil {
		return invalid(x402.ReasonInvalidSignature, "typed data: %v", err)
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return invalid(x402.ReasonInvalidSignature, "%v", err)
	}

	pubkey, err := crypto.Ecrecover(sighash, sig)
	if err != nil {
		return invalid(x402.ReasonInvalidSignature, "recovery failed: %v", err)
	}
	recovered, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return invalid(x402.ReasonInvalidSignature, "recovered key unusable: %v", err)
	}

	signer := crypto.PubkeyToAddress(*recovered)
	if signer != from {
		return invalid(x402.ReasonInvalidSignature, "recovered signer %s does not match payer %s", signer.Hex(), from.Hex())
	}

	return Result{Valid: true, Payer: signer.Hex()}
}

// sigHash builds the canonical EIP-712 hash for a
// TransferWithAuthorization message.
func (v *Verifier) sigHash(auth x402.Authorization, value *big.Int, validAfter, validBefore int64, nonce [NonceBytes]byte) ([]byte, error) {
	chainID := math.HexOrDecimal256(*big.NewInt(v.cfg.ChainID))

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              v.cfg.AssetName,
			Version:           v.cfg.AssetVersion,
			ChainId:           &chainID,
			VerifyingContract: v.cfg.AssetAddress,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       value,
			"validAfter":  big.NewInt(validAfter),
			"validBefore": big.NewInt(validBefore),
			"nonce":       nonce,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("domain hash: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("message hash: %w", err)
	}

	raw := append(append([]byte("\x19\x01"), domainSeparator...), messageHash...)
	return crypto.Keccak256(raw), nil
}

func decodeNonce(s string) ([NonceBytes]byte, error) {
	var nonce [NonceBytes]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nonce, fmt.Errorf("not hex: %v", err)
	}
	if len(raw) != NonceBytes {
		return nonce, fmt.Errorf("got %d bytes, want %d", len(raw), NonceBytes)
	}
	copy(nonce[:], raw)
	return nonce, nil
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signature is not hex: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	// Normalize V from 27/28 to 0/1 for Ecrecover. Copy first so the
	// caller's slice is not mutated.
	out := make([]byte, len(sig))
	copy(out, sig)
	if out[64] == 27 || out[64] == 28 {
		out[64] -= 27
	}
	return out, nil
}
