package cotp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyHistogram(t *testing.T) {
	h := NewLatencyHistogram()

	stats := h.Stats()
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.Min)

	h.Record(500 * time.Microsecond)
	h.Record(20 * time.Millisecond)
	h.Record(2 * time.Second)

	stats = h.Stats()
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, 500*time.Microsecond, stats.Min)
	assert.Equal(t, 2*time.Second, stats.Max)
	assert.Equal(t, int64(1), stats.Buckets[0])
	assert.Equal(t, int64(1), stats.Buckets[3])
	assert.Equal(t, int64(1), stats.Buckets[len(stats.Buckets)-1])

	h.Reset()
	assert.Zero(t, h.Stats().Count)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, m.startTime, m.LastActivity())

	m.FramesSent.Inc()
	m.BytesSent.Add(7)
	m.RecordActivity()

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.FramesSent)
	assert.Equal(t, int64(7), snap.BytesSent)
	assert.False(t, snap.LastActivity.Before(m.startTime))

	m.Reset()
	snap = m.Snapshot()
	assert.Zero(t, snap.FramesSent)
	assert.Zero(t, snap.BytesSent)
}
