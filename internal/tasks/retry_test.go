package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	delay := RetryDelay(time.Second, time.Minute)
	boom := errors.New("boom")

	first := delay(0, boom, nil)
	require.GreaterOrEqual(t, first, 800*time.Millisecond)
	require.LessOrEqual(t, first, 1200*time.Millisecond)

	third := delay(2, boom, nil)
	require.GreaterOrEqual(t, third, 3200*time.Millisecond)
	require.LessOrEqual(t, third, 4800*time.Millisecond)

	require.Equal(t, time.Minute, delay(40, boom, nil))
}

func TestQueuesIncludeEveryTaskQueue(t *testing.T) {
	q := Queues()
	require.Contains(t, q, QueueDefault)
	require.Contains(t, q, QueueTelemetry)
	require.Greater(t, q[QueueDefault], q[QueueTelemetry])
}
