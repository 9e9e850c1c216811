package x402

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() *PaymentPayload {
	return &PaymentPayload{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     "base-sepolia",
		Payload: ExactPayload{
			Signature: "0x" + "ab" + "cd",
			Authorization: Authorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "10000",
				ValidAfter:  "1700000000",
				ValidBefore: "1700000600",
				Nonce:       "0x" + "11" + "22",
			},
		},
	}
}

func TestDecodePayment_RoundTrip(t *testing.T) {
	original := validPayload()

	header, err := EncodePayment(original)
	require.NoError(t, err)

	decoded, err := DecodePayment(header)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodePayment_NotBase64(t *testing.T) {
	_, err := DecodePayment("not base64 at all!!!")
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodePayment_NotJSON(t *testing.T) {
	header := base64.StdEncoding.EncodeToString([]byte("plainly not json"))
	_, err := DecodePayment(header)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodePayment_UnsupportedVersion(t *testing.T) {
	p := validPayload()
	p.X402Version = 99

	header, err := EncodePayment(p)
	require.NoError(t, err)

	_, err = DecodePayment(header)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodePayment_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PaymentPayload)
		field  string
	}{
		{"no signature", func(p *PaymentPayload) { p.Payload.Signature = "" }, "payload.signature"},
		{"no from", func(p *PaymentPayload) { p.Payload.Authorization.From = "" }, "payload.authorization.from"},
		{"no to", func(p *PaymentPayload) { p.Payload.Authorization.To = "" }, "payload.authorization.to"},
		{"no value", func(p *PaymentPayload) { p.Payload.Authorization.Value = "" }, "payload.authorization.value"},
		{"no validAfter", func(p *PaymentPayload) { p.Payload.Authorization.ValidAfter = "" }, "payload.authorization.validAfter"},
		{"no validBefore", func(p *PaymentPayload) { p.Payload.Authorization.ValidBefore = "" }, "payload.authorization.validBefore"},
		{"no nonce", func(p *PaymentPayload) { p.Payload.Authorization.Nonce = "" }, "payload.authorization.nonce"},
		{"no scheme", func(p *PaymentPayload) { p.Scheme = "" }, "scheme"},
		{"no network", func(p *PaymentPayload) { p.Network = "" }, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)

			header, err := EncodePayment(p)
			require.NoError(t, err)

			_, err = DecodePayment(header)
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing), "expected MissingFieldError, got %v", err)
			assert.Equal(t, tt.field, missing.Field)
		})
	}
}

func TestSettleResult_HeaderRoundTrip(t *testing.T) {
	result := &SettleResult{
		Paid:    true,
		Amount:  "10000",
		TxHash:  "0xdeadbeef",
		Network: "base-sepolia",
		Payer:   "0x1111111111111111111111111111111111111111",
	}

	header, err := EncodeSettleResult(result)
	require.NoError(t, err)

	decoded, err := DecodeSettleResult(header)
	require.NoError(t, err)
	assert.Equal(t, result, decoded)
}

func TestAuthorization_ValueBig(t *testing.T) {
	auth := Authorization{Value: "1000000"}
	v, ok := auth.ValueBig()
	require.True(t, ok)
	assert.Equal(t, "1000000", v.String())

	auth.Value = "-5"
	_, ok = auth.ValueBig()
	assert.False(t, ok)

	auth.Value = "1.5"
	_, ok = auth.ValueBig()
	assert.False(t, ok)
}

func TestReason_Messages(t *testing.T) {
	for reason, msg := range reasonMessages {
		assert.NotEmpty(t, msg)
		assert.NotEqual(t, string(reason), msg, "message must differ from the machine key")
	}
	assert.False(t, ReasonSettlementTimeout.Terminal())
	assert.False(t, ReasonSettlementRejected.Terminal())
	assert.True(t, ReasonServiceError.Terminal())
}
