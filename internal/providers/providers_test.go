package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer map[string]float64

func (s stubScorer) Score(id string) float64 {
	if v, ok := s[id]; ok {
		return v
	}
	return 1.0
}

func testRegistry(t *testing.T, scorer Scorer) *Registry {
	t.Helper()
	r := NewRegistry(scorer)
	require.NoError(t, r.Register(Provider{ID: "fast", Kind: "weather", Endpoint: "http://fast", Price: "0.01"}))
	require.NoError(t, r.Register(Provider{ID: "cheap", Kind: "weather", Endpoint: "http://cheap", Price: "0.001"}))
	require.NoError(t, r.Register(Provider{ID: "fx", Kind: "market-data", Endpoint: "http://fx", Price: "0.005"}))
	return r
}

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry(nil)
	assert.Error(t, r.Register(Provider{Kind: "weather", Endpoint: "http://x", Price: "0.01"}), "missing id")
	assert.Error(t, r.Register(Provider{ID: "a", Kind: "weather", Endpoint: "http://x", Price: "-1"}), "negative price")
}

func TestRegister_DefaultsTimeout(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(Provider{ID: "a", Kind: "weather", Endpoint: "http://x", Price: "0.01"}))

	p, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.Timeout)
}

func TestResolve_CheapestFirst(t *testing.T) {
	r := testRegistry(t, nil)

	candidates, err := r.Resolve("weather", "", StrategyCheapest)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "cheap", candidates[0].ID)
}

func TestResolve_ReliabilityFirst(t *testing.T) {
	r := testRegistry(t, stubScorer{"fast": 0.95, "cheap": 0.4})

	candidates, err := r.Resolve("weather", "", StrategyReliable)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "fast", candidates[0].ID)
	assert.Equal(t, 0.95, candidates[0].Score)
}

func TestResolve_BestValue(t *testing.T) {
	// cheap: 0.4/0.001 = 400, fast: 0.95/0.01 = 95
	r := testRegistry(t, stubScorer{"fast": 0.95, "cheap": 0.4})

	candidates, err := r.Resolve("weather", "", StrategyBestValue)
	require.NoError(t, err)
	assert.Equal(t, "cheap", candidates[0].ID)
}

func TestResolve_PriceCapFilters(t *testing.T) {
	r := testRegistry(t, nil)

	candidates, err := r.Resolve("weather", "0.005", StrategyCheapest)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "cheap", candidates[0].ID)
}

func TestResolve_NoCandidate(t *testing.T) {
	r := testRegistry(t, nil)

	_, err := r.Resolve("translation", "", StrategyCheapest)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestRemove(t *testing.T) {
	r := testRegistry(t, nil)
	r.Remove("fx")

	_, err := r.Get("fx")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve("market-data", "", StrategyCheapest)
	assert.ErrorIs(t, err, ErrNoCandidate)
}
