package x402

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// defaultValidFor bounds the authorization window when the challenge
// does not state a timeout.
const defaultValidFor = 5 * time.Minute

// Client wraps http.Client with automatic 402 payment handling
type Client struct {
	httpClient *http.Client
	signer     *Signer

	// Configuration
	MaxRetries int    // Max payment retries (default: 1)
	AutoPay    bool   // Automatically pay 402s (default: true)
	MaxPayment string // Max payment in asset base units, decimal string (default: unlimited)

	// Hooks
	OnPayment func(req *PaymentRequirement, payload *PaymentPayload) // Called before each payment
}

// NewClient creates a new x402-enabled HTTP client
func NewClient(signer *Signer) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		signer:     signer,
		MaxRetries: 1,
		AutoPay:    true,
	}
}

// Do performs an HTTP request with automatic 402 payment handling
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoContext(req.Context(), req)
}

// DoContext performs an HTTP request with context and automatic 402 handling
func (c *Client) DoContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	// Clone the request body if present (we might need to retry)
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
	}

	req = req.WithContext(ctx)

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		// Reset body for retry
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		// Not a 402 - return response as-is
		if resp.StatusCode != http.StatusPaymentRequired {
			return resp, nil
		}

		// Don't auto-pay if disabled
		if !c.AutoPay {
			return resp, nil
		}

		// Parse the challenge and pick a requirement we can satisfy
		challenge, err := ParsePaymentRequired(resp)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse payment challenge: %w", err)
		}
		requirement, err := c.pickRequirement(challenge)
		if err != nil {
			return nil, err
		}

		// Check max payment limit
		if c.MaxPayment != "" {
			if err := c.checkPaymentLimit(requirement.MaxAmountRequired); err != nil {
				return nil, err
			}
		}

		// Sign a fresh authorization for this requirement
		payload, err := c.authorize(requirement)
		if err != nil {
			return nil, fmt.Errorf("payment authorization failed: %w", err)
		}

		// Call hook if set
		if c.OnPayment != nil {
			c.OnPayment(requirement, payload)
		}

		// Add proof to request and retry
		if err := AddPaymentToRequest(req, payload); err != nil {
			return nil, fmt.Errorf("failed to add payment header: %w", err)
		}
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// Get performs a GET request with automatic 402 handling
func (c *Client) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// pickRequirement selects the first challenge entry this client can
// satisfy. Only the exact scheme is supported.
func (c *Client) pickRequirement(challenge *PaymentRequired) (*PaymentRequirement, error) {
	for i := range challenge.Accepts {
		if challenge.Accepts[i].Scheme == "exact" {
			return &challenge.Accepts[i], nil
		}
	}
	return nil, fmt.Errorf("challenge offers no supported payment scheme")
}

// authorize signs a transfer authorization satisfying the requirement.
func (c *Client) authorize(requirement *PaymentRequirement) (*PaymentPayload, error) {
	validFor := defaultValidFor
	if requirement.MaxTimeoutSeconds > 0 {
		validFor = time.Duration(requirement.MaxTimeoutSeconds) * time.Second
	}

	auth, sig, err := c.signer.Authorize(requirement.PayTo, requirement.MaxAmountRequired, validFor)
	if err != nil {
		return nil, err
	}

	return &PaymentPayload{
		X402Version: 1,
		Scheme:      requirement.Scheme,
		Network:     requirement.Network,
		Payload: ExactPayload{
			Signature:     sig,
			Authorization: auth,
		},
	}, nil
}

// checkPaymentLimit verifies the payment doesn't exceed max
func (c *Client) checkPaymentLimit(amount string) error {
	maxAmount, ok := new(big.Int).SetString(c.MaxPayment, 10)
	if !ok {
		return fmt.Errorf("invalid max payment %q", c.MaxPayment)
	}

	reqAmount, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid challenge amount %q", amount)
	}

	if reqAmount.Cmp(maxAmount) > 0 {
		return fmt.Errorf("payment %s exceeds max %s", amount, c.MaxPayment)
	}

	return nil
}
