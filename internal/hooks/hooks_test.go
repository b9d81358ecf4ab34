package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/tasks"
)

type recordingObserver struct {
	name  string
	calls *[]string
}

func (r recordingObserver) BeforeIntent(_ context.Context, ev Event) error {
	*r.calls = append(*r.calls, r.name+":before:"+ev.FormID)
	return nil
}

func (r recordingObserver) AfterIntent(_ context.Context, ev Event) error {
	*r.calls = append(*r.calls, r.name+":after:"+string(ev.Outcome))
	return nil
}

func TestObserversRunInOrder(t *testing.T) {
	var calls []string
	o := &Observers{List: []Observer{
		recordingObserver{name: "a", calls: &calls},
		nil,
		recordingObserver{name: "b", calls: &calls},
	}, Logger: zerolog.Nop()}

	o.Before(context.Background(), Event{FormID: "42"})
	o.After(context.Background(), Event{FormID: "42", Outcome: OutcomeSucceeded})

	require.Equal(t, []string{"a:before:42", "b:before:42", "a:after:succeeded", "b:after:succeeded"}, calls)
}

func TestObserverFailuresAreSwallowed(t *testing.T) {
	var buf bytes.Buffer
	var reached bool
	o := &Observers{List: []Observer{
		Funcs{After: func(context.Context, Event) error { panic("boom") }},
		Funcs{After: func(context.Context, Event) error { return errors.New("nope") }},
		Funcs{After: func(context.Context, Event) error { reached = true; return nil }},
	}, Logger: zerolog.New(&buf)}

	require.NotPanics(t, func() {
		o.After(context.Background(), Event{Operation: OpCreateIntent, FormID: "1"})
	})
	require.True(t, reached)
	require.Contains(t, buf.String(), "observer panic: boom")
	require.Contains(t, buf.String(), "nope")
}

func TestObserversCannotMutateCallerEvent(t *testing.T) {
	o := &Observers{List: []Observer{
		Funcs{Before: func(_ context.Context, ev Event) error {
			ev.FormID = "changed"
			return nil
		}},
	}}
	ev := Event{FormID: "42"}
	o.Before(context.Background(), ev)
	require.Equal(t, "42", ev.FormID)

	var nilObservers *Observers
	require.NotPanics(t, func() { nilObservers.After(context.Background(), ev) })
}

func TestLogObserverWritesOutcome(t *testing.T) {
	var buf bytes.Buffer
	l := LogObserver{Logger: zerolog.New(&buf)}
	require.NoError(t, l.AfterIntent(context.Background(), Event{
		Operation: OpCreateIntent,
		FormID:    "42",
		ObjectID:  "pi_1",
		Status:    "requires_payment_method",
		Outcome:   OutcomeFailed,
		Error:     "card_declined",
	}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "pi_1", line["object_id"])
	require.Equal(t, "card_declined", line["error"])
}

func TestMetricsObserverCounts(t *testing.T) {
	obs.MustRegisterDomainMetrics("payform", prometheus.NewRegistry())
	before := testutil.ToFloat64(obs.IntentRequestsTotal.WithLabelValues("create_intent", "succeeded"))

	require.NoError(t, MetricsObserver{}.AfterIntent(context.Background(), Event{
		Operation: OpCreateIntent,
		Status:    "succeeded",
		Outcome:   OutcomeSucceeded,
		Duration:  120 * time.Millisecond,
	}))
	require.Equal(t, before+1, testutil.ToFloat64(obs.IntentRequestsTotal.WithLabelValues("create_intent", "succeeded")))
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	tasks   []*asynq.Task
	err     error
	release chan struct{}
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.release != nil {
		<-f.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) queued() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.tasks...)
}

func TestTaskObserverEnqueuesAttempt(t *testing.T) {
	enq := &fakeEnqueuer{}
	observer := NewTaskObserver(TaskObserverConfig{Client: enq, Logger: zerolog.Nop()})

	// the request context is usually gone by the time the task is sent
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, observer.AfterIntent(ctx, Event{
		Operation: OpCreateIntent,
		FormID:    "42",
		ObjectID:  "pi_1",
		Status:    "succeeded",
		Outcome:   OutcomeSucceeded,
		Livemode:  true,
	}))
	require.NoError(t, observer.Close(context.Background()))

	queued := enq.queued()
	require.Len(t, queued, 1)
	require.Equal(t, tasks.TypeIntentAttempted, queued[0].Type())

	var payload tasks.IntentAttempt
	require.NoError(t, json.Unmarshal(queued[0].Payload(), &payload))
	require.Equal(t, "42", payload.FormID)
	require.Equal(t, "succeeded", payload.Outcome)
	require.True(t, payload.Livemode)
}

func TestTaskObserverDoesNotWaitForBroker(t *testing.T) {
	obs.MustRegisterDomainMetrics("payform", prometheus.NewRegistry())
	enq := &fakeEnqueuer{release: make(chan struct{})}
	observer := NewTaskObserver(TaskObserverConfig{Client: enq, Buffer: 1, Logger: zerolog.Nop()})
	dropped := testutil.ToFloat64(obs.TasksEnqueuedTotal.WithLabelValues(tasks.TypeIntentAttempted, "dropped"))

	ev := Event{Operation: OpConfirmIntent, FormID: "42", Outcome: OutcomeSucceeded}
	start := time.Now()
	// first is picked up by the drain goroutine and blocks there, second fills the buffer
	require.NoError(t, observer.AfterIntent(context.Background(), ev))
	require.Eventually(t, func() bool { return len(observer.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, observer.AfterIntent(context.Background(), ev))
	require.ErrorIs(t, observer.AfterIntent(context.Background(), ev), ErrTaskBacklog)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, dropped+1, testutil.ToFloat64(obs.TasksEnqueuedTotal.WithLabelValues(tasks.TypeIntentAttempted, "dropped")))

	close(enq.release)
	require.NoError(t, observer.Close(context.Background()))
	require.Len(t, enq.queued(), 2)
	require.ErrorIs(t, observer.AfterIntent(context.Background(), ev), ErrTaskBacklog)
}

func TestTaskObserverLogsBrokerErrors(t *testing.T) {
	var buf bytes.Buffer
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	observer := NewTaskObserver(TaskObserverConfig{Client: enq, Logger: zerolog.New(&buf)})

	require.NoError(t, observer.AfterIntent(context.Background(), Event{Operation: OpCreateIntent, FormID: "1"}))
	require.NoError(t, observer.Close(context.Background()))
	require.Contains(t, buf.String(), "redis down")
}

func TestTaskObserverSkipsWithoutForm(t *testing.T) {
	enq := &fakeEnqueuer{}
	observer := NewTaskObserver(TaskObserverConfig{Client: enq, Logger: zerolog.Nop()})
	require.NoError(t, observer.AfterIntent(context.Background(), Event{Operation: OpCreateIntent}))
	require.NoError(t, observer.AfterIntent(context.Background(), Event{Operation: OpWebhook, FormID: "1"}))
	require.NoError(t, observer.Close(context.Background()))
	require.Empty(t, enq.queued())
}
