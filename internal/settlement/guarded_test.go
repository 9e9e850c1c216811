package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/paygate/internal/circuitbreaker"
)

type flakyCaller struct {
	calls int
	fail  bool
}

func (f *flakyCaller) Forward(_ context.Context, _ ForwardRequest) (*ForwardResponse, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return &ForwardResponse{StatusCode: 200, Body: map[string]interface{}{"ok": true}}, nil
}

func TestGuardedForwarder_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyCaller{fail: true}
	g := NewGuardedForwarder(inner, circuitbreaker.New(3, time.Minute))
	req := ForwardRequest{Endpoint: "https://wx.example/v1"}

	for i := 0; i < 3; i++ {
		_, err := g.Forward(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, 3, inner.calls)

	// Circuit is open now: the provider is no longer dialed.
	_, err := g.Forward(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 3, inner.calls)
}

func TestGuardedForwarder_SuccessKeepsCircuitClosed(t *testing.T) {
	inner := &flakyCaller{}
	g := NewGuardedForwarder(inner, circuitbreaker.New(2, time.Minute))
	req := ForwardRequest{Endpoint: "https://wx.example/v1"}

	for i := 0; i < 5; i++ {
		resp, err := g.Forward(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, resp)
	}
	assert.Equal(t, 5, inner.calls)
}

func TestGuardedForwarder_HTTPErrorDoesNotTrip(t *testing.T) {
	// A provider answering 500s is up; the breaker only guards reachability.
	inner := &statusCaller{status: 500}
	g := NewGuardedForwarder(inner, circuitbreaker.New(2, time.Minute))
	req := ForwardRequest{Endpoint: "https://wx.example/v1"}

	for i := 0; i < 4; i++ {
		resp, err := g.Forward(context.Background(), req)
		require.Error(t, err)
		require.NotNil(t, resp)
	}
	assert.Equal(t, 4, inner.calls)
}

type statusCaller struct {
	calls  int
	status int
}

func (s *statusCaller) Forward(_ context.Context, _ ForwardRequest) (*ForwardResponse, error) {
	s.calls++
	return &ForwardResponse{StatusCode: s.status}, errors.New("service returned failure status")
}
