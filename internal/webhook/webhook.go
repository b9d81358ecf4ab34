// Package webhook receives Stripe events, verifies their signature and
// forwards them to observers and the task queue.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"

	"github.com/noah-isme/payform-api/internal/common"
	"github.com/noah-isme/payform-api/internal/hooks"
	"github.com/noah-isme/payform-api/internal/intent"
	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/tasks"
)

// Handled event types.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventInvoicePaid            = "invoice.payment_succeeded"
	EventSubscriptionUpdated    = "customer.subscription.updated"
)

// FormMetadataKey is the metadata key linking processor objects to a form.
const FormMetadataKey = "simpay_form_id"

const (
	defaultMaxBody   = int64(64 << 10)
	defaultReplayTTL = 72 * time.Hour
	signatureHeader  = "Stripe-Signature"
)

// Handler serves POST /webhooks/stripe.
type Handler struct {
	Secret       string
	Replay       *redis.Client
	ReplayTTL    time.Duration
	Observers    *hooks.Observers
	Tasks        tasks.Enqueuer
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

// summary is the part of an event every consumer cares about.
type summary struct {
	Object   string
	ObjectID string
	Status   string
	FormID   string
	Livemode bool
}

func (h *Handler) replayKey(eventID string) string {
	return "wh:stripe:" + eventID
}

func countEvent(eventType, result string) {
	if obs.WebhookEventsTotal != nil {
		obs.WebhookEventsTotal.WithLabelValues(eventType, result).Inc()
	}
}

// Handle verifies and dispatches one event.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Secret == "" {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if int64(len(body)) > limit {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload too large", nil)
		return
	}
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get(signatureHeader), h.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		countEvent("unknown", "invalid")
		h.Logger.Warn().Err(err).Msg("webhook signature rejected")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	eventType := string(event.Type)
	ctx := r.Context()

	claimed := false
	if h.Replay != nil {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = defaultReplayTTL
		}
		ok, err := h.Replay.SetNX(ctx, h.replayKey(event.ID), "1", ttl).Result()
		if err != nil {
			h.Logger.Error().Err(err).Str("event_id", event.ID).Msg("webhook replay store unavailable")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "unable to record event", nil)
			return
		}
		if !ok {
			countEvent(eventType, "duplicate")
			common.JSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
		claimed = true
	}

	sum, handled, err := summarize(event)
	if err != nil {
		h.release(ctx, claimed, event.ID)
		countEvent(eventType, "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_EVENT", "unable to decode event object", nil)
		return
	}
	if !handled {
		countEvent(eventType, "ignored")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	h.Observers.After(ctx, hooks.Event{
		Operation:  hooks.OpWebhook,
		FormID:     sum.FormID,
		Livemode:   sum.Livemode,
		ObjectID:   sum.ObjectID,
		Status:     sum.Status,
		Outcome:    outcomeFor(eventType, sum.Status),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	})

	if err := h.enqueue(ctx, event, sum); err != nil {
		h.release(ctx, claimed, event.ID)
		countEvent(eventType, "error")
		h.Logger.Error().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("webhook follow-up not queued")
		common.JSONError(w, http.StatusInternalServerError, "ENQUEUE_ERROR", "unable to queue event", nil)
		return
	}
	countEvent(eventType, "ok")
	h.Logger.Info().
		Str("event_id", event.ID).
		Str("type", eventType).
		Str("object_id", sum.ObjectID).
		Str("status", sum.Status).
		Str("form_id", sum.FormID).
		Msg("webhook processed")
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

// release drops the replay claim so the processor's redelivery is accepted.
func (h *Handler) release(ctx context.Context, claimed bool, eventID string) {
	if !claimed {
		return
	}
	if err := h.Replay.Del(context.WithoutCancel(ctx), h.replayKey(eventID)).Err(); err != nil {
		h.Logger.Warn().Err(err).Str("event_id", eventID).Msg("webhook replay key not released")
	}
}

func (h *Handler) enqueue(ctx context.Context, event stripe.Event, sum summary) error {
	if h.Tasks == nil {
		return nil
	}
	task, err := tasks.NewWebhookReceivedTask(tasks.WebhookReceived{
		EventID:    event.ID,
		Type:       string(event.Type),
		Object:     sum.Object,
		ObjectID:   sum.ObjectID,
		Status:     sum.Status,
		FormID:     sum.FormID,
		Livemode:   sum.Livemode,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	})
	if err != nil {
		return err
	}
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_, err = h.Tasks.EnqueueContext(enqueueCtx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		err = nil
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if obs.TasksEnqueuedTotal != nil {
		obs.TasksEnqueuedTotal.WithLabelValues(tasks.TypeWebhookReceived, result).Inc()
	}
	return err
}

func summarize(event stripe.Event) (summary, bool, error) {
	if event.Data == nil {
		return summary{}, false, errors.New("webhook: event has no data")
	}
	raw := event.Data.Raw
	switch string(event.Type) {
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return summary{}, true, fmt.Errorf("webhook: decode payment intent: %w", err)
		}
		return summary{Object: tasks.ObjectPaymentIntent, ObjectID: pi.ID, Status: string(pi.Status), FormID: pi.Metadata[FormMetadataKey], Livemode: pi.Livemode}, true, nil
	case EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return summary{}, true, fmt.Errorf("webhook: decode invoice: %w", err)
		}
		formID := inv.Metadata[FormMetadataKey]
		if formID == "" && inv.Subscription != nil {
			formID = inv.Subscription.Metadata[FormMetadataKey]
		}
		return summary{Object: tasks.ObjectInvoice, ObjectID: inv.ID, Status: string(inv.Status), FormID: formID, Livemode: inv.Livemode}, true, nil
	case EventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return summary{}, true, fmt.Errorf("webhook: decode subscription: %w", err)
		}
		return summary{Object: tasks.ObjectSubscription, ObjectID: sub.ID, Status: string(sub.Status), FormID: sub.Metadata[FormMetadataKey], Livemode: sub.Livemode}, true, nil
	default:
		return summary{}, false, nil
	}
}

func outcomeFor(eventType, status string) hooks.Outcome {
	switch eventType {
	case EventPaymentIntentSucceeded, EventInvoicePaid:
		return hooks.OutcomeSucceeded
	case EventPaymentIntentFailed:
		return hooks.OutcomeRetry
	}
	switch intent.SubscriptionStatus(status) {
	case intent.SubscriptionActive, intent.SubscriptionTrialing:
		return hooks.OutcomeSucceeded
	case intent.SubscriptionIncomplete:
		return hooks.OutcomeAction
	case intent.SubscriptionPastDue, intent.SubscriptionUnpaid:
		return hooks.OutcomeRetry
	default:
		return hooks.OutcomePending
	}
}
