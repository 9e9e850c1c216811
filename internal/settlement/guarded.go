package settlement

import (
	"context"
	"fmt"

	"github.com/mbd888/paygate/internal/circuitbreaker"
)

// GuardedForwarder wraps a ServiceCaller with a per-endpoint circuit
// breaker. An open circuit short-circuits the call before any bytes
// reach the provider, so the payment voids the same way a transport
// failure would.
type GuardedForwarder struct {
	inner   ServiceCaller
	breaker *circuitbreaker.Breaker
}

// NewGuardedForwarder wraps inner with breaker.
func NewGuardedForwarder(inner ServiceCaller, breaker *circuitbreaker.Breaker) *GuardedForwarder {
	return &GuardedForwarder{inner: inner, breaker: breaker}
}

// Forward calls the inner forwarder unless the endpoint's circuit is
// open. Transport failures count against the circuit; HTTP-level
// failures do not, since the provider is up and answering.
func (g *GuardedForwarder) Forward(ctx context.Context, req ForwardRequest) (*ForwardResponse, error) {
	if !g.breaker.Allow(req.Endpoint) {
		return nil, fmt.Errorf("circuit open for %s", req.Endpoint)
	}

	resp, err := g.inner.Forward(ctx, req)
	if resp == nil {
		g.breaker.RecordFailure(req.Endpoint)
		return nil, err
	}
	g.breaker.RecordSuccess(req.Endpoint)
	return resp, err
}
