package confirm

import (
	"context"

	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/intent"
)

// Action is what the browser does after a subscription is created.
type Action int

const (
	ActionNone Action = iota
	ActionRetryPaymentMethod
	ActionChallengePayment
	ActionChallengeSetup
	ActionRedirectError
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRetryPaymentMethod:
		return "retry_payment_method"
	case ActionChallengePayment:
		return "challenge_payment"
	case ActionChallengeSetup:
		return "challenge_setup"
	case ActionRedirectError:
		return "redirect_error"
	default:
		return "unknown"
	}
}

// Reason explains an error redirect.
type Reason string

const (
	ReasonPastDue           Reason = "past_due"
	ReasonUnpaid            Reason = "unpaid"
	ReasonCanceled          Reason = "canceled"
	ReasonIncompleteExpired Reason = "incomplete_expired"
	ReasonUnknown           Reason = "unknown"
)

// Decision is the reconciler's answer.
type Decision struct {
	Action Action
	// IntentID is the intent the challenge completed.
	IntentID string
	// ErrorURL and Reason are set for ActionRedirectError.
	ErrorURL string
	Reason   Reason
}

// decide applies the decision table without running any challenge.
func decide(sub intent.Subscription) (Action, *intent.Intent) {
	pi := sub.PaymentIntent()
	seti := sub.PendingSetupIntent
	switch {
	case pi == nil && seti == nil:
		return ActionNone, nil
	case pi != nil:
		switch {
		case (sub.Status == intent.SubscriptionActive || sub.Status == intent.SubscriptionTrialing) &&
			pi.Status == intent.StatusSucceeded:
			return ActionNone, pi
		case sub.Status == intent.SubscriptionIncomplete && pi.Status == intent.StatusRequiresPaymentMethod:
			return ActionRetryPaymentMethod, pi
		case sub.Status == intent.SubscriptionIncomplete && pi.Status == intent.StatusRequiresAction:
			return ActionChallengePayment, pi
		}
	default:
		switch seti.Status {
		case intent.StatusRequiresAction:
			return ActionChallengeSetup, seti
		case intent.StatusRequiresPaymentMethod:
			return ActionRetryPaymentMethod, seti
		}
	}
	return ActionRedirectError, nil
}

func reasonFor(status intent.SubscriptionStatus) Reason {
	switch status {
	case intent.SubscriptionPastDue:
		return ReasonPastDue
	case intent.SubscriptionUnpaid:
		return ReasonUnpaid
	case intent.SubscriptionCanceled:
		return ReasonCanceled
	case intent.SubscriptionIncompleteExpired:
		return ReasonIncompleteExpired
	default:
		return ReasonUnknown
	}
}

// NeedsAction reports whether the browser has anything left to do.
func NeedsAction(sub intent.Subscription) bool {
	action, _ := decide(sub)
	return action != ActionNone && action != ActionRetryPaymentMethod
}

// Reconcile decides the next step for a new subscription and runs the
// challenge it calls for. Challenge errors are returned unchanged; no
// confirm call goes back to the server after a subscription challenge.
func Reconcile(ctx context.Context, sub intent.Subscription, ch Challenger, form forms.Form) (Decision, error) {
	action, target := decide(sub)
	switch action {
	case ActionChallengePayment:
		id, err := ch.ConfirmCardPayment(ctx, target.ClientSecret)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: action, IntentID: id}, nil
	case ActionChallengeSetup:
		id, err := ch.HandleCardSetup(ctx, target.ClientSecret)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: action, IntentID: id}, nil
	case ActionRedirectError:
		return Decision{Action: action, ErrorURL: form.ErrorURL, Reason: reasonFor(sub.Status)}, nil
	default:
		return Decision{Action: action}, nil
	}
}
