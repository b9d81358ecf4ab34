package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupHandlers(t *testing.T) (*Handlers, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &Handlers{Redis: client, Logger: zerolog.Nop(), Now: func() time.Time { return now }}, mr
}

func TestHandleIntentAttemptedRecordsFirstPaymentOnce(t *testing.T) {
	h, mr := setupHandlers(t)
	ctx := context.Background()
	occurred := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	task, err := NewIntentAttemptedTask(IntentAttempt{
		Operation:  "create_intent",
		FormID:     "42",
		ObjectID:   "pi_1",
		Status:     "succeeded",
		Outcome:    "succeeded",
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleIntentAttempted(ctx, task))

	later, err := NewIntentAttemptedTask(IntentAttempt{
		Operation:  "create_intent",
		FormID:     "42",
		ObjectID:   "pi_2",
		Outcome:    "succeeded",
		OccurredAt: occurred.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, h.HandleIntentAttempted(ctx, later))

	first, err := mr.Get(FirstPaymentKey("42", false))
	require.NoError(t, err)
	require.Equal(t, "2026-03-14T09:00:00Z", first)
	require.False(t, mr.Exists(FirstPaymentKey("42", true)))
	require.Equal(t, "2", mr.HGet(DailyStatsKey("42", occurred), "create_intent:succeeded"))
}

func TestHandleIntentAttemptedCountsFailures(t *testing.T) {
	h, mr := setupHandlers(t)
	task, err := NewIntentAttemptedTask(IntentAttempt{Operation: "confirm_intent", FormID: "7", Outcome: "failed"})
	require.NoError(t, err)

	require.NoError(t, h.HandleIntentAttempted(context.Background(), task))
	require.Equal(t, "1", mr.HGet(DailyStatsKey("7", h.now()), "confirm_intent:failed"))
	require.False(t, mr.Exists(FirstPaymentKey("7", false)))
}

func TestHandleIntentAttemptedSkipsRetryOnBadPayload(t *testing.T) {
	h, _ := setupHandlers(t)
	err := h.HandleIntentAttempted(context.Background(), asynq.NewTask(TypeIntentAttempted, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = h.HandleIntentAttempted(context.Background(), asynq.NewTask(TypeIntentAttempted, []byte(`{"outcome":"failed"}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleWebhookReceivedStoresStatus(t *testing.T) {
	h, mr := setupHandlers(t)
	task, err := NewWebhookReceivedTask(WebhookReceived{
		EventID:  "evt_1",
		Type:     "payment_intent.succeeded",
		ObjectID: "pi_1",
		Status:   "succeeded",
		FormID:   "42",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleWebhookReceived(context.Background(), task))
	key := IntentStatusKey("pi_1")
	require.Equal(t, "succeeded", mr.HGet(key, "status"))
	require.Equal(t, "evt_1", mr.HGet(key, "event_id"))
	require.Equal(t, "42", mr.HGet(key, "form_id"))
	require.Equal(t, "2026-03-14T09:30:00Z", mr.HGet(key, "updated_at"))
}

func TestHandleWebhookReceivedKeepsTerminalStatus(t *testing.T) {
	h, mr := setupHandlers(t)
	ctx := context.Background()
	deliver := func(id, eventType, object, objectID, status string) {
		t.Helper()
		task, err := NewWebhookReceivedTask(WebhookReceived{EventID: id, Type: eventType, Object: object, ObjectID: objectID, Status: status})
		require.NoError(t, err)
		require.NoError(t, h.HandleWebhookReceived(ctx, task))
	}

	deliver("evt_1", "payment_intent.succeeded", ObjectPaymentIntent, "pi_1", "succeeded")
	// the failure for an earlier attempt arrives late
	deliver("evt_0", "payment_intent.payment_failed", ObjectPaymentIntent, "pi_1", "requires_payment_method")
	require.Equal(t, "succeeded", mr.HGet(IntentStatusKey("pi_1"), "status"))
	require.Equal(t, "evt_1", mr.HGet(IntentStatusKey("pi_1"), "event_id"))

	deliver("evt_2", "payment_intent.payment_failed", ObjectPaymentIntent, "pi_2", "requires_payment_method")
	deliver("evt_3", "payment_intent.succeeded", ObjectPaymentIntent, "pi_2", "succeeded")
	require.Equal(t, "succeeded", mr.HGet(IntentStatusKey("pi_2"), "status"))

	deliver("evt_4", "customer.subscription.updated", ObjectSubscription, "sub_1", "canceled")
	deliver("evt_5", "customer.subscription.updated", ObjectSubscription, "sub_1", "active")
	require.Equal(t, "canceled", mr.HGet(IntentStatusKey("sub_1"), "status"))

	deliver("evt_6", "customer.subscription.updated", ObjectSubscription, "sub_2", "past_due")
	deliver("evt_7", "customer.subscription.updated", ObjectSubscription, "sub_2", "active")
	require.Equal(t, "active", mr.HGet(IntentStatusKey("sub_2"), "status"))
}

func TestHandleWebhookReceivedIgnoresObjectlessEvents(t *testing.T) {
	h, mr := setupHandlers(t)
	task, err := NewWebhookReceivedTask(WebhookReceived{EventID: "evt_2", Type: "customer.created"})
	require.NoError(t, err)

	require.NoError(t, h.HandleWebhookReceived(context.Background(), task))
	require.Empty(t, mr.Keys())
}

func TestRegisterRoutesTaskTypes(t *testing.T) {
	h, _ := setupHandlers(t)
	mux := asynq.NewServeMux()
	h.Register(mux)

	task, err := NewIntentAttemptedTask(IntentAttempt{Operation: "create_intent", FormID: "1", Outcome: "failed"})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
}
