package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordError_IncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues(ErrorTypeBroadcast, ErrorSeverityCritical))
	RecordError(ErrorTypeBroadcast, ErrorSeverityCritical)
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues(ErrorTypeBroadcast, ErrorSeverityCritical))
	assert.Equal(t, before+1, after)
}

func TestRecordDisconnect_IncrementsLabeledCounter(t *testing.T) {
	before := testutil.ToFloat64(DisconnectsTotal.WithLabelValues(DisconnectReasonSlowClient, "server"))
	RecordDisconnect(DisconnectReasonSlowClient, "server")
	after := testutil.ToFloat64(DisconnectsTotal.WithLabelValues(DisconnectReasonSlowClient, "server"))
	assert.Equal(t, before+1, after)
}

func TestRecordLockReleased(t *testing.T) {
	before := testutil.ToFloat64(LocksReleasedTotal.WithLabelValues(LockReleaseExpired))
	RecordLockReleased(LockReleaseExpired)
	after := testutil.ToFloat64(LocksReleasedTotal.WithLabelValues(LockReleaseExpired))
	assert.Equal(t, before+1, after)
}

func TestRecordThrottled(t *testing.T) {
	before := testutil.ToFloat64(ThrottledMessagesTotal.WithLabelValues("cursor"))
	RecordThrottled("cursor")
	after := testutil.ToFloat64(ThrottledMessagesTotal.WithLabelValues("cursor"))
	assert.Equal(t, before+1, after)
}

func TestRecordBroadcastDropped(t *testing.T) {
	before := testutil.ToFloat64(BroadcastsDroppedTotal.WithLabelValues("send_buffer_full"))
	RecordBroadcastDropped("send_buffer_full")
	after := testutil.ToFloat64(BroadcastsDroppedTotal.WithLabelValues("send_buffer_full"))
	assert.Equal(t, before+1, after)
}

func TestRecordCapacityRejection(t *testing.T) {
	before := testutil.ToFloat64(CapacityRejectionsTotal.WithLabelValues("at max connections"))
	RecordCapacityRejection("at max connections")
	after := testutil.ToFloat64(CapacityRejectionsTotal.WithLabelValues("at max connections"))
	assert.Equal(t, before+1, after)
}

func TestCollector_CollectUpdatesGauges(t *testing.T) {
	c := NewCollector(10*time.Millisecond,
		func() int64 { return 7 },
		func() float64 { return 33.3 },
		func() (int, int, int64) { return 2, 10, 0 },
	)
	c.collect()

	assert.Equal(t, float64(7), testutil.ToFloat64(ConnectionsActive))
	assert.Equal(t, 33.3, testutil.ToFloat64(CPUUsagePercent))
	assert.Equal(t, float64(2), testutil.ToFloat64(BroadcastQueueDepth))
	assert.Equal(t, float64(10), testutil.ToFloat64(BroadcastQueueCapacity))
}

func TestCollector_StartAndStop(t *testing.T) {
	c := NewCollector(5*time.Millisecond,
		func() int64 { return 1 },
		func() float64 { return 1.0 },
		nil,
	)
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	assert.Equal(t, float64(1), testutil.ToFloat64(ConnectionsActive))
}
