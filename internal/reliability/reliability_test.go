package reliability

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_NeutralWithNoObservations(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, 1.0, tr.Score("unknown"))
}

func TestScore_PerfectProviderAtLatencyCeiling(t *testing.T) {
	tr := NewTracker()
	tr.Record("svc", true, 5000)

	// successRate=1.0, avgLatency=5000 → 0.7*1.0 + 0.3*0 = 0.7
	assert.InDelta(t, 0.7, tr.Score("svc"), 1e-9)
}

func TestScore_FastPerfectProvider(t *testing.T) {
	tr := NewTracker()
	tr.Record("svc", true, 0)

	assert.InDelta(t, 1.0, tr.Score("svc"), 1e-9)
}

func TestScore_LatencyBeyondCeilingClampsToZero(t *testing.T) {
	tr := NewTracker()
	tr.Record("svc", true, 50_000)

	assert.InDelta(t, 0.7, tr.Score("svc"), 1e-9)
}

func TestScore_MixedOutcomes(t *testing.T) {
	tr := NewTracker()
	tr.Record("svc", true, 1000)
	tr.Record("svc", false, 1000)

	// successRate=0.5, avgLatency=1000 → 0.7*0.5 + 0.3*0.8 = 0.59
	assert.InDelta(t, 0.59, tr.Score("svc"), 1e-9)
}

func TestRecord_CountersMonotonic(t *testing.T) {
	tr := NewTracker()
	tr.Record("svc", true, 100)
	tr.Record("svc", false, 300)
	tr.Record("svc", true, 200)

	stat, ok := tr.Stat("svc")
	require.True(t, ok)
	assert.Equal(t, int64(2), stat.SuccessCount)
	assert.Equal(t, int64(1), stat.FailureCount)
	assert.Equal(t, int64(600), stat.TotalLatencyMs)
	assert.Equal(t, int64(3), stat.Observations())
}

func TestRecord_Concurrent(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Record("svc", true, 10)
		}()
		go func() {
			defer wg.Done()
			s := tr.Score("svc")
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}()
	}
	wg.Wait()

	stat, ok := tr.Stat("svc")
	require.True(t, ok)
	assert.Equal(t, int64(50), stat.SuccessCount)
	assert.Equal(t, int64(500), stat.TotalLatencyMs)
}

func TestRestore_SeedsFromSnapshot(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	tr := NewTracker()
	tr.Record("svc-a", true, 100)
	tr.Record("svc-b", false, 4000)
	require.NoError(t, store.Save(ctx, tr.All()))

	restored := NewTracker()
	stats, err := store.Load(ctx)
	require.NoError(t, err)
	restored.Restore(stats)

	assert.Equal(t, tr.Score("svc-a"), restored.Score("svc-a"))
	assert.Equal(t, tr.Score("svc-b"), restored.Score("svc-b"))
}
