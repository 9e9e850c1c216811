// Package x402 defines the wire types for the x402 payment protocol:
// the 402 challenge body, the X-Payment proof header, and the
// settlement result returned to callers.
package x402

import (
	"math/big"
	"strconv"
)

// Version is the protocol version this facilitator speaks.
const Version = 1

// SchemeExact is the only payment scheme currently supported.
const SchemeExact = "exact"

// Header names used on the wire.
const (
	PaymentHeader         = "X-Payment"
	PaymentResponseHeader = "X-Payment-Response"
)

// PaymentRequirement describes what payment a resource demands.
// It is returned in the 402 response body under "accepts".
type PaymentRequirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"` // decimal string, smallest unit
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int64  `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
}

// PaymentRequired is the JSON body of a 402 challenge.
type PaymentRequired struct {
	X402Version int                  `json:"x402Version"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Error       string               `json:"error,omitempty"`
}

// Authorization is a signed statement of intent to transfer value.
// All numeric fields travel as decimal strings to avoid precision loss;
// the nonce is a 0x-prefixed hex encoding of 32 random bytes.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ValueBig parses the transfer amount. Returns (nil, false) if the
// value is not a non-negative decimal integer.
func (a Authorization) ValueBig() (*big.Int, bool) {
	v, ok := new(big.Int).SetString(a.Value, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// Window parses the validity window as Unix timestamps.
func (a Authorization) Window() (validAfter, validBefore int64, ok bool) {
	va, err := strconv.ParseInt(a.ValidAfter, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	vb, err := strconv.ParseInt(a.ValidBefore, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return va, vb, true
}

// ExactPayload carries the signature plus the authorization it covers.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the envelope transported base64-encoded in the
// X-Payment request header.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// SettleResult is the settlement outcome surfaced to the caller.
// Reconcile marks the irregular case where the resource was delivered
// but the final chain state is unknown or negative; it is never
// silently dropped.
type SettleResult struct {
	Paid      bool   `json:"paid"`
	Amount    string `json:"amount,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
	Network   string `json:"network,omitempty"`
	Payer     string `json:"payer,omitempty"`
	Reason    Reason `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Reconcile bool   `json:"reconcile,omitempty"`
}
