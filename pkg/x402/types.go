// Package x402 is the payer-side SDK: an HTTP client that answers 402
// challenges by signing EIP-3009 transfer authorizations and retrying
// with the X-Payment proof header.
package x402

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mbd888/paygate/internal/x402"
)

// Wire types shared with the facilitator.
type (
	PaymentRequirement = x402.PaymentRequirement
	PaymentRequired    = x402.PaymentRequired
	PaymentPayload     = x402.PaymentPayload
	ExactPayload       = x402.ExactPayload
	Authorization      = x402.Authorization
	SettleResult       = x402.SettleResult
)

// Header names used on the wire.
const (
	PaymentHeader         = x402.PaymentHeader
	PaymentResponseHeader = x402.PaymentResponseHeader
)

// Is402Response checks if an HTTP response is a 402 Payment Required
func Is402Response(resp *http.Response) bool {
	return resp.StatusCode == http.StatusPaymentRequired
}

// ParsePaymentRequired extracts the challenge from a 402 response body.
func ParsePaymentRequired(resp *http.Response) (*PaymentRequired, error) {
	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("not a 402 response: got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var challenge PaymentRequired
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, fmt.Errorf("failed to parse payment challenge: %w", err)
	}
	if len(challenge.Accepts) == 0 {
		return nil, fmt.Errorf("challenge lists no accepted payment kinds")
	}

	return &challenge, nil
}

// ParseSettleResult decodes the X-Payment-Response header of a paid
// response. Returns nil with no error when the header is absent.
func ParseSettleResult(resp *http.Response) (*SettleResult, error) {
	header := resp.Header.Get(PaymentResponseHeader)
	if header == "" {
		return nil, nil
	}
	return x402.DecodeSettleResult(header)
}

// AddPaymentToRequest encodes the payload into the X-Payment header.
func AddPaymentToRequest(req *http.Request, payload *PaymentPayload) error {
	header, err := x402.EncodePayment(payload)
	if err != nil {
		return err
	}
	req.Header.Set(PaymentHeader, header)
	return nil
}
