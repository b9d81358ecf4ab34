package intent

import "strings"

// Status is a PaymentIntent or SetupIntent status as reported by the processor.
// Values outside the documented set are kept verbatim and report Known() == false.
type Status string

// Statuses documented by the processor.
const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusRequiresCapture       Status = "requires_capture"
	StatusSucceeded             Status = "succeeded"
	StatusCanceled              Status = "canceled"
)

var knownStatuses = map[Status]struct{}{
	StatusRequiresPaymentMethod: {},
	StatusRequiresConfirmation:  {},
	StatusRequiresAction:        {},
	StatusProcessing:            {},
	StatusRequiresCapture:       {},
	StatusSucceeded:             {},
	StatusCanceled:              {},
}

// ParseStatus normalises a raw processor status.
func ParseStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

// Known reports whether the status belongs to the documented vocabulary.
func (s Status) Known() bool {
	_, ok := knownStatuses[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusCanceled
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether moving from one status to another is allowed.
// Terminal statuses never move; anything else may progress to any known status.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return to.Known()
}

// NextActionType tags the action the customer must complete.
type NextActionType string

const (
	NextActionUseStripeSDK  NextActionType = "use_stripe_sdk"
	NextActionRedirectToURL NextActionType = "redirect_to_url"
)

// SubscriptionStatus is the lifecycle status of a recurring billing agreement.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionPaused            SubscriptionStatus = "paused"
)

// Terminal reports whether the subscription can no longer be billed.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCanceled || s == SubscriptionIncompleteExpired
}
