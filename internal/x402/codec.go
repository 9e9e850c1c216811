package x402

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedHeader    = errors.New("x402: malformed payment header")
	ErrUnsupportedVersion = errors.New("x402: unsupported x402 version")
)

// MissingFieldError reports a required field absent from the payment
// envelope.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("x402: missing required field %q", e.Field)
}

// DecodePayment decodes a base64(JSON) X-Payment header into a
// PaymentPayload. It has no side effects. Errors are one of
// ErrMalformedHeader, ErrUnsupportedVersion, or *MissingFieldError.
func DecodePayment(header string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	if payload.X402Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, payload.X402Version, Version)
	}

	if err := checkRequired(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// EncodePayment is the inverse of DecodePayment. The payer side uses it
// to build the X-Payment header; the formats must stay bit-compatible.
func EncodePayment(payload *PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("x402: marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodeSettleResult encodes a settlement outcome for the
// X-Payment-Response header.
func EncodeSettleResult(result *SettleResult) (string, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("x402: marshal settle result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeSettleResult decodes an X-Payment-Response header.
func DecodeSettleResult(header string) (*SettleResult, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	var result SettleResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return &result, nil
}

func checkRequired(p *PaymentPayload) error {
	auth := p.Payload.Authorization
	required := []struct {
		name  string
		value string
	}{
		{"scheme", p.Scheme},
		{"network", p.Network},
		{"payload.signature", p.Payload.Signature},
		{"payload.authorization.from", auth.From},
		{"payload.authorization.to", auth.To},
		{"payload.authorization.value", auth.Value},
		{"payload.authorization.validAfter", auth.ValidAfter},
		{"payload.authorization.validBefore", auth.ValidBefore},
		{"payload.authorization.nonce", auth.Nonce},
	}
	for _, f := range required {
		if f.value == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	return nil
}
