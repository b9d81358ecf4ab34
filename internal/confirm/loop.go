package confirm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/intent"
)

// DefaultMaxRounds bounds the challenges run for one checkout attempt.
const DefaultMaxRounds = 5

// Submission is what the browser sends with create and confirm.
type Submission struct {
	forms.Submission
	CustomerID        string `json:"customer_id"`
	CustomerNonce     string `json:"customer_nonce,omitempty"`
	PaymentMethodID   string `json:"payment_method_id,omitempty"`
	PaymentMethodType string `json:"payment_method_type,omitempty"`
}

// API is the payment form server.
type API interface {
	CreateIntent(ctx context.Context, sub Submission) (intent.Response, error)
	ConfirmIntent(ctx context.Context, intentID string, sub Submission) (intent.Response, error)
}

// Challenger runs authentication challenges through the processor's client SDK.
// Each method returns the id of the intent it acted on.
type Challenger interface {
	HandleCardAction(ctx context.Context, clientSecret string) (string, error)
	HandleCardSetup(ctx context.Context, clientSecret string) (string, error)
	ConfirmCardPayment(ctx context.Context, clientSecret string) (string, error)
}

// ServerError is a 4xx or 5xx answer from the API.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("confirm: server %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("confirm: server %d: %s", e.Status, e.Message)
}

// Outcome is how a checkout attempt ended.
type Outcome struct {
	State      State
	Challenges int
	Response   intent.Response
	Err        error
}

// Succeeded reports whether the server confirmed the payment.
func (o Outcome) Succeeded() bool {
	return o.State == Resolved && o.Response.Success
}

// Message is the text to show the customer on failure.
func (o Outcome) Message() string {
	if o.Err == nil {
		return o.Response.Message
	}
	var serr *ServerError
	if errors.As(o.Err, &serr) && serr.Message != "" {
		return serr.Message
	}
	return o.Err.Error()
}

// Loop interprets Step's effects against the API and the challenger.
type Loop struct {
	API        API
	Challenger Challenger
	MaxRounds  int
	// OnSettled runs after a failed attempt so the caller can re-enable the form.
	OnSettled func(Outcome)
	Logger    zerolog.Logger
}

func (l *Loop) maxRounds() int {
	if l.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return l.MaxRounds
}

// Run drives one checkout attempt to Resolved or Failed.
func (l *Loop) Run(ctx context.Context, sub Submission) Outcome {
	p := Progress{State: Start}
	ev := Event{Kind: EventBegin}
	for {
		if err := ctx.Err(); err != nil {
			ev = Event{Kind: EventCanceled, Err: err}
		}
		var eff Effect
		p, eff = l.Step(p, ev)
		l.Logger.Debug().
			Str("state", p.State.String()).
			Int("challenges", p.Challenges).
			Msg("confirm step")

		switch eff.Kind {
		case EffectCreate:
			resp, err := l.API.CreateIntent(ctx, sub)
			ev = serverEvent(ctx, resp, err)
		case EffectConfirm:
			resp, err := l.API.ConfirmIntent(ctx, eff.IntentID, sub)
			ev = serverEvent(ctx, resp, err)
		case EffectChallenge:
			id, err := l.Challenger.HandleCardAction(ctx, eff.ClientSecret)
			ev = challengeEvent(ctx, id, err)
		default:
			return l.settle(p)
		}
	}
}

func (l *Loop) settle(p Progress) Outcome {
	out := Outcome{State: p.State, Challenges: p.Challenges, Response: p.Last, Err: p.Err}
	if p.State == Failed {
		l.Logger.Warn().Err(p.Err).Int("challenges", p.Challenges).Msg("checkout attempt failed")
		if l.OnSettled != nil {
			l.OnSettled(out)
		}
	}
	return out
}

func serverEvent(ctx context.Context, resp intent.Response, err error) Event {
	if err == nil {
		return Event{Kind: EventServerResponse, Response: resp}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Event{Kind: EventCanceled, Err: ctxErr}
	}
	return Event{Kind: EventServerError, Err: err}
}

func challengeEvent(ctx context.Context, id string, err error) Event {
	if err == nil {
		return Event{Kind: EventChallengeSucceeded, IntentID: id}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Event{Kind: EventCanceled, Err: ctxErr}
	}
	return Event{Kind: EventChallengeFailed, Err: err}
}
