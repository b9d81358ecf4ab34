package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/tasks"
)

// LogObserver writes every processor outcome to the log.
type LogObserver struct {
	Logger zerolog.Logger
}

func (l LogObserver) BeforeIntent(_ context.Context, ev Event) error {
	l.Logger.Debug().
		Str("operation", string(ev.Operation)).
		Str("form_id", ev.FormID).
		Str("customer_id", ev.CustomerID).
		Bool("livemode", ev.Livemode).
		Msg("processor call starting")
	return nil
}

func (l LogObserver) AfterIntent(_ context.Context, ev Event) error {
	evt := l.Logger.Info()
	if ev.Outcome == OutcomeFailed || ev.Outcome == OutcomeInvalid {
		evt = l.Logger.Warn()
	}
	evt = evt.
		Str("operation", string(ev.Operation)).
		Str("form_id", ev.FormID).
		Str("customer_id", ev.CustomerID).
		Str("object_id", ev.ObjectID).
		Str("status", ev.Status).
		Str("outcome", string(ev.Outcome)).
		Bool("livemode", ev.Livemode).
		Dur("duration", ev.Duration)
	if ev.Error != "" {
		evt = evt.Str("error", ev.Error)
	}
	evt.Msg("processor call finished")
	return nil
}

// MetricsObserver updates the domain counters.
type MetricsObserver struct{}

func (MetricsObserver) BeforeIntent(context.Context, Event) error { return nil }

func (MetricsObserver) AfterIntent(_ context.Context, ev Event) error {
	if obs.IntentRequestsTotal != nil {
		obs.IntentRequestsTotal.WithLabelValues(string(ev.Operation), string(ev.Outcome)).Inc()
	}
	if obs.IntentStatusTotal != nil && ev.Status != "" {
		obs.IntentStatusTotal.WithLabelValues(ev.Status).Inc()
	}
	if obs.IntentDuration != nil && ev.Duration > 0 {
		obs.IntentDuration.WithLabelValues(string(ev.Operation)).Observe(obs.DurationMillis(ev.Duration))
	}
	return nil
}

// ErrTaskBacklog is returned when the task hand-off buffer is full or closed.
var ErrTaskBacklog = errors.New("hooks: task backlog full")

// TaskObserver queues an intent-attempt task after every processor call.
// AfterIntent only hands the task to a bounded buffer; a single goroutine
// talks to Redis, so a slow broker never delays a payment response. When the
// buffer is full the task is dropped and counted.
// Webhook events are skipped; the webhook handler queues its own task.
type TaskObserver struct {
	client  tasks.Enqueuer
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *asynq.Task
	done   chan struct{}
}

// TaskObserverConfig tunes NewTaskObserver.
type TaskObserverConfig struct {
	Client tasks.Enqueuer
	// Buffer bounds the tasks waiting for Redis. Defaults to 256.
	Buffer int
	// Timeout bounds one enqueue call. Defaults to 2s.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewTaskObserver starts the goroutine that drains the buffer. Close stops it.
func NewTaskObserver(cfg TaskObserverConfig) *TaskObserver {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	t := &TaskObserver{
		client:  cfg.Client,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		queue:   make(chan *asynq.Task, cfg.Buffer),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

func countEnqueue(result string) {
	if obs.TasksEnqueuedTotal != nil {
		obs.TasksEnqueuedTotal.WithLabelValues(tasks.TypeIntentAttempted, result).Inc()
	}
}

func (t *TaskObserver) run() {
	defer close(t.done)
	for task := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		_, err := t.client.EnqueueContext(ctx, task)
		cancel()
		if err != nil {
			countEnqueue("error")
			t.logger.Warn().Err(err).Str("type", task.Type()).Msg("task enqueue failed")
			continue
		}
		countEnqueue("ok")
	}
}

func (*TaskObserver) BeforeIntent(context.Context, Event) error { return nil }

func (t *TaskObserver) AfterIntent(_ context.Context, ev Event) error {
	if t == nil || t.client == nil || ev.FormID == "" || ev.Operation == OpWebhook {
		return nil
	}
	task, err := tasks.NewIntentAttemptedTask(tasks.IntentAttempt{
		Operation:  string(ev.Operation),
		FormID:     ev.FormID,
		CustomerID: ev.CustomerID,
		ObjectID:   ev.ObjectID,
		Status:     ev.Status,
		Outcome:    string(ev.Outcome),
		Livemode:   ev.Livemode,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		countEnqueue("dropped")
		return ErrTaskBacklog
	}
	select {
	case t.queue <- task:
		return nil
	default:
		countEnqueue("dropped")
		return ErrTaskBacklog
	}
}

// Close stops accepting tasks and waits until the buffer is drained or ctx ends.
func (t *TaskObserver) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hooks: drain task backlog: %w", ctx.Err())
	}
}
