// Package hooks fans orchestrator events out to observers registered at
// startup. Observers see copies of the event and can neither alter the
// response nor fail the request.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Operation names the orchestrator call being observed.
type Operation string

const (
	OpCreateIntent       Operation = "create_intent"
	OpConfirmIntent      Operation = "confirm_intent"
	OpCreateSubscription Operation = "create_subscription"
	OpCreateSetupIntent  Operation = "create_setup_intent"
	OpCreateCustomer     Operation = "create_customer"
	OpWebhook            Operation = "webhook"
)

// Outcome summarises how the processor call ended.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeAction    Outcome = "requires_action"
	OutcomeRetry     Outcome = "requires_payment_method"
	OutcomeFailed    Outcome = "failed"
	OutcomeInvalid   Outcome = "invalid_status"
)

// Event describes one processor interaction.
type Event struct {
	Operation  Operation     `json:"operation"`
	FormID     string        `json:"form_id,omitempty"`
	CustomerID string        `json:"customer_id,omitempty"`
	Livemode   bool          `json:"livemode"`
	ObjectID   string        `json:"object_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Observer receives orchestrator events.
type Observer interface {
	BeforeIntent(ctx context.Context, ev Event) error
	AfterIntent(ctx context.Context, ev Event) error
}

// Funcs adapts plain functions to Observer. Nil functions are skipped.
type Funcs struct {
	Before func(ctx context.Context, ev Event) error
	After  func(ctx context.Context, ev Event) error
}

func (f Funcs) BeforeIntent(ctx context.Context, ev Event) error {
	if f.Before == nil {
		return nil
	}
	return f.Before(ctx, ev)
}

func (f Funcs) AfterIntent(ctx context.Context, ev Event) error {
	if f.After == nil {
		return nil
	}
	return f.After(ctx, ev)
}

// Observers is an ordered observer list.
type Observers struct {
	List   []Observer
	Logger zerolog.Logger
}

// Before notifies every observer in registration order.
func (o *Observers) Before(ctx context.Context, ev Event) {
	o.dispatch(ctx, "before", ev, Observer.BeforeIntent)
}

// After notifies every observer in registration order.
func (o *Observers) After(ctx context.Context, ev Event) {
	o.dispatch(ctx, "after", ev, Observer.AfterIntent)
}

func (o *Observers) dispatch(ctx context.Context, phase string, ev Event, call func(Observer, context.Context, Event) error) {
	if o == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	for i, obs := range o.List {
		if obs == nil {
			continue
		}
		if err := safeCall(ctx, obs, ev, call); err != nil {
			o.Logger.Warn().Err(err).
				Str("phase", phase).
				Int("observer", i).
				Str("operation", string(ev.Operation)).
				Str("form_id", ev.FormID).
				Msg("observer failed")
		}
	}
}

func safeCall(ctx context.Context, obs Observer, ev Event, call func(Observer, context.Context, Event) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return call(obs, ctx, ev)
}
