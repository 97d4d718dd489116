package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpProbe, 10*time.Millisecond, false)
	c.RecordTiming(OpProbe, 30*time.Millisecond, true)

	snap := c.Snapshot()
	require.NotNil(t, snap.Probe)
	assert.Equal(t, int64(2), snap.Probe.Count)
	assert.Equal(t, int64(1), snap.Probe.Failures)
	assert.Equal(t, int64(10), snap.Probe.MinTimeMs)
	assert.Equal(t, int64(30), snap.Probe.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.Probe.AvgTimeMs, 0.001)
	assert.Nil(t, snap.Sample, "operations without data are omitted")
}

func TestCollectorClassifierTokens(t *testing.T) {
	c := NewCollector()
	c.RecordClassifierUsage(time.Second, false, 0, 0)

	snap := c.Snapshot()
	require.NotNil(t, snap.Classify)
	assert.Nil(t, snap.Classify.TotalInputTokens, "no tokens reported yet")

	c.RecordClassifierUsage(time.Second, false, 1200, 3)
	snap = c.Snapshot()
	require.NotNil(t, snap.Classify.TotalInputTokens)
	assert.Equal(t, int64(1200), *snap.Classify.TotalInputTokens)
	assert.Equal(t, int64(3), *snap.Classify.TotalOutputTokens)
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpSample, time.Millisecond, false)
	c.RecordClassifierUsage(time.Millisecond, true, 1, 1)
	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpStoreQuery, time.Millisecond, false)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.Snapshot().StoreQuery.Count)
}
