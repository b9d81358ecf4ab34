package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payform-api/internal/intent"
)

// Handlers consumes tasks on the worker.
type Handlers struct {
	Redis  *redis.Client
	Logger zerolog.Logger
	Now    func() time.Time
	// StatsTTL bounds how long daily counters are kept.
	StatsTTL time.Duration
}

// Register attaches every handler to mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeIntentAttempted, h.HandleIntentAttempted)
	mux.HandleFunc(TypeWebhookReceived, h.HandleWebhookReceived)
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) statsTTL() time.Duration {
	if h.StatsTTL > 0 {
		return h.StatsTTL
	}
	return 35 * 24 * time.Hour
}

func mode(livemode bool) string {
	if livemode {
		return "live"
	}
	return "test"
}

// FirstPaymentKey holds the time of the first successful payment a form took in a mode.
func FirstPaymentKey(formID string, livemode bool) string {
	return fmt.Sprintf("payform:form:%s:first_%s_payment", formID, mode(livemode))
}

// DailyStatsKey holds per-outcome counters for a form on a given day.
func DailyStatsKey(formID string, day time.Time) string {
	return fmt.Sprintf("payform:stats:%s:%s", formID, day.UTC().Format("2006-01-02"))
}

// IntentStatusKey holds the last status a webhook reported for an intent or subscription.
func IntentStatusKey(objectID string) string {
	return "payform:object:" + objectID + ":status"
}

// HandleIntentAttempted updates the per-form counters and flags the form's
// first successful payment in each mode.
func (h *Handlers) HandleIntentAttempted(ctx context.Context, t *asynq.Task) error {
	var p IntentAttempt
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("tasks: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.FormID == "" {
		return fmt.Errorf("tasks: %s without form id: %w", t.Type(), asynq.SkipRetry)
	}
	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = h.now()
	}
	statsKey := DailyStatsKey(p.FormID, occurred)
	pipe := h.Redis.TxPipeline()
	pipe.HIncrBy(ctx, statsKey, p.Operation+":"+p.Outcome, 1)
	pipe.Expire(ctx, statsKey, h.statsTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tasks: record stats: %w", err)
	}
	if p.Outcome != "succeeded" {
		return nil
	}
	first, err := h.Redis.SetNX(ctx, FirstPaymentKey(p.FormID, p.Livemode), occurred.UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return fmt.Errorf("tasks: record first payment: %w", err)
	}
	if first {
		h.Logger.Info().
			Str("form_id", p.FormID).
			Str("mode", mode(p.Livemode)).
			Str("object_id", p.ObjectID).
			Msg("first successful payment for form")
	}
	return nil
}

// staleStatus reports whether next would move a stored terminal status
// backwards. Events can arrive out of order, so a late
// payment_intent.payment_failed must not overwrite succeeded.
func staleStatus(object, stored, next string) bool {
	if stored == "" || stored == next {
		return false
	}
	switch object {
	case ObjectPaymentIntent:
		return !intent.CanTransition(intent.ParseStatus(stored), intent.ParseStatus(next))
	case ObjectSubscription:
		return intent.SubscriptionStatus(stored).Terminal()
	default:
		return false
	}
}

// HandleWebhookReceived stores the latest reported status of the object
// unless the stored status is terminal.
func (h *Handlers) HandleWebhookReceived(ctx context.Context, t *asynq.Task) error {
	var p WebhookReceived
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("tasks: decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.ObjectID == "" || p.Status == "" {
		h.Logger.Debug().Str("event_id", p.EventID).Str("type", p.Type).Msg("webhook without object status")
		return nil
	}
	fields := map[string]any{
		"status":     p.Status,
		"event_id":   p.EventID,
		"event_type": p.Type,
		"updated_at": h.now().UTC().Format(time.RFC3339),
	}
	if p.FormID != "" {
		fields["form_id"] = p.FormID
	}
	key := IntentStatusKey(p.ObjectID)
	var stale string
	err := h.Redis.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, key, "status").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if staleStatus(p.Object, stored, p.Status) {
			stale = stored
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.Expire(ctx, key, h.statsTTL())
			return nil
		})
		return err
	}, key)
	if err != nil {
		// redis.TxFailedErr included: asynq retries and the next attempt re-reads
		return fmt.Errorf("tasks: store webhook status: %w", err)
	}
	if stale != "" {
		h.Logger.Warn().
			Str("event_id", p.EventID).
			Str("object_id", p.ObjectID).
			Str("stored_status", stale).
			Str("status", p.Status).
			Msg("out of order webhook ignored")
		return nil
	}
	h.Logger.Info().
		Str("event_id", p.EventID).
		Str("type", p.Type).
		Str("object_id", p.ObjectID).
		Str("status", p.Status).
		Msg("webhook processed")
	return nil
}
