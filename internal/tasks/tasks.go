// Package tasks defines the background work queued through asynq: telemetry
// about checkout attempts and follow-ups for verified processor webhooks.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names.
const (
	TypeIntentAttempted = "intent:attempted"
	TypeWebhookReceived = "webhook:received"
)

// Queue names.
const (
	QueueDefault   = "default"
	QueueTelemetry = "telemetry"
)

// IntentAttempt records one orchestrator call after it completed.
type IntentAttempt struct {
	Operation  string    `json:"operation"`
	FormID     string    `json:"form_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	ObjectID   string    `json:"object_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Outcome    string    `json:"outcome"`
	Livemode   bool      `json:"livemode"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Processor object kinds carried by WebhookReceived.
const (
	ObjectPaymentIntent = "payment_intent"
	ObjectInvoice       = "invoice"
	ObjectSubscription  = "subscription"
)

// WebhookReceived records a verified processor event.
type WebhookReceived struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	Object     string    `json:"object,omitempty"`
	ObjectID   string    `json:"object_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	FormID     string    `json:"form_id,omitempty"`
	Livemode   bool      `json:"livemode"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Enqueuer is the subset of *asynq.Client used to queue tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ Enqueuer = (*asynq.Client)(nil)

// NewIntentAttemptedTask builds the telemetry task for a checkout attempt.
func NewIntentAttemptedTask(p IntentAttempt) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("tasks: encode %s: %w", TypeIntentAttempted, err)
	}
	return asynq.NewTask(TypeIntentAttempted, payload,
		asynq.MaxRetry(3),
		asynq.Queue(QueueTelemetry),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewWebhookReceivedTask builds the follow-up task for a verified webhook.
// The event id doubles as the task id so redelivered events are queued once.
func NewWebhookReceivedTask(p WebhookReceived) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("tasks: encode %s: %w", TypeWebhookReceived, err)
	}
	opts := []asynq.Option{
		asynq.MaxRetry(10),
		asynq.Queue(QueueDefault),
		asynq.Timeout(time.Minute),
	}
	if p.EventID != "" {
		opts = append(opts, asynq.TaskID("wh:"+p.EventID))
	}
	return asynq.NewTask(TypeWebhookReceived, payload, opts...), nil
}
