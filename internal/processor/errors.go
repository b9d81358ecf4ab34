package processor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stripe/stripe-go/v75"

	"github.com/noah-isme/payform-api/internal/resilience"
)

// ErrorKind classifies processor failures.
type ErrorKind string

const (
	KindCard           ErrorKind = "card"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindIdempotency    ErrorKind = "idempotency"
	KindUnavailable    ErrorKind = "unavailable"
	KindAPI            ErrorKind = "api"
	KindConfig         ErrorKind = "config"
)

// Generic messages shown when the processor message must not leak.
const (
	MessageGeneric     = "Unable to process the payment. Please try again."
	MessageUnavailable = "The payment processor is temporarily unavailable. Please try again."
)

// Error is a processor failure with the fields needed to build a safe response.
type Error struct {
	Op          string
	Kind        ErrorKind
	Code        string
	DeclineCode string
	Message     string
	Err         error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("processor %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("processor %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var strictPolicy = bluemonday.StrictPolicy()

// SafeMessage returns a message fit for the customer. Card and request errors
// carry the processor's user-facing text with markup stripped; everything else
// is replaced by a generic message.
func SafeMessage(err error) string {
	var perr *Error
	if !errors.As(err, &perr) {
		return MessageGeneric
	}
	switch perr.Kind {
	case KindCard, KindInvalidRequest:
		msg := sanitize(perr.Message)
		if msg == "" {
			return MessageGeneric
		}
		return msg
	case KindUnavailable:
		return MessageUnavailable
	default:
		return MessageGeneric
	}
}

func sanitize(msg string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(msg)))
}

func wrapStripeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		out := &Error{
			Op:          op,
			Kind:        KindAPI,
			Code:        string(stripeErr.Code),
			DeclineCode: string(stripeErr.DeclineCode),
			Message:     stripeErr.Msg,
			Err:         err,
		}
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			out.Kind = KindCard
		case stripe.ErrorTypeInvalidRequest:
			out.Kind = KindInvalidRequest
		case stripe.ErrorTypeIdempotency:
			out.Kind = KindIdempotency
		}
		if stripeErr.HTTPStatusCode >= 500 {
			out.Kind = KindUnavailable
		}
		return out
	}
	if errors.Is(err, resilience.ErrOpenCircuit) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Kind: KindUnavailable, Err: err}
	}
	return &Error{Op: op, Kind: KindAPI, Err: err}
}
