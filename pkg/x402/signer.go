package x402

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain binds a signer to one asset contract on one network. The
// fields must match the facilitator's verifier exactly or every
// signature is rejected.
type Domain struct {
	ChainID      int64
	AssetName    string // EIP-712 domain name (e.g. "USDC")
	AssetVersion string // asset contract's authorization-scheme version (e.g. "2")
	AssetAddress string // verifying contract
}

// Signer produces signed EIP-3009 transfer authorizations.
type Signer struct {
	key    *ecdsa.PrivateKey
	addr   string
	domain Domain
}

// NewSigner creates a Signer from a hex-encoded private key.
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		key:    key,
		addr:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		domain: domain,
	}, nil
}

// Address returns the payer account this signer authorizes from.
func (s *Signer) Address() string {
	return s.addr
}

// Authorize builds and signs a fresh authorization: value in asset base
// units (decimal string), valid from one minute ago until validFor from
// now, with a random 32-byte nonce. Returns the authorization and the
// 0x-prefixed 65-byte signature.
func (s *Signer) Authorize(to, value string, validFor time.Duration) (Authorization, string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Authorization{}, "", fmt.Errorf("nonce generation failed: %w", err)
	}

	now := time.Now()
	auth := Authorization{
		From:        s.addr,
		To:          to,
		Value:       value,
		ValidAfter:  fmt.Sprintf("%d", now.Add(-time.Minute).Unix()),
		ValidBefore: fmt.Sprintf("%d", now.Add(validFor).Unix()),
		Nonce:       "0x" + hex.EncodeToString(nonce[:]),
	}

	sig, err := s.Sign(auth)
	if err != nil {
		return Authorization{}, "", err
	}
	return auth, sig, nil
}

// Sign produces the EIP-712 signature over an existing authorization.
func (s *Signer) Sign(auth Authorization) (string, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return "", fmt.Errorf("value %q is not a decimal integer", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return "", fmt.Errorf("validAfter %q is not a decimal integer", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return "", fmt.Errorf("validBefore %q is not a decimal integer", auth.ValidBefore)
	}
	nonceRaw, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceRaw) != 32 {
		return "", fmt.Errorf("nonce must be 32 hex-encoded bytes")
	}
	var nonce [32]byte
	copy(nonce[:], nonceRaw)

	sighash, err := s.sigHash(auth, value, validAfter, validBefore, nonce)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(sighash, s.key)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}
	// Ethereum wallets transmit V as 27/28.
	sig[64] += 27

	return "0x" + hex.EncodeToString(sig), nil
}

func (s *Signer) sigHash(auth Authorization, value, validAfter, validBefore *big.Int, nonce [32]byte) ([]byte, error) {
	chainID := math.HexOrDecimal256(*big.NewInt(s.domain.ChainID))

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
			Name:              s.domain.AssetName,
			Version:           s.domain.AssetVersion,
			ChainId:           &chainID,
			VerifyingContract: s.domain.AssetAddress,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
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
