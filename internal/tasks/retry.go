package tasks

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/payform-api/internal/resilience"
)

const maxBackoffExponent = 16

// RetryDelay backs off exponentially from base with 20% jitter, never
// waiting longer than max.
func RetryDelay(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		attempt := n + 1
		if attempt > maxBackoffExponent {
			attempt = maxBackoffExponent
		}
		d := resilience.Backoff(base, attempt, 0.2)
		if d <= 0 || d > max {
			return max
		}
		return d
	}
}

// Queues weights the worker's queues; telemetry yields to webhook follow-ups.
func Queues() map[string]int {
	return map[string]int{
		QueueDefault:   6,
		QueueTelemetry: 2,
	}
}
