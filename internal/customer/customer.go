// Package customer creates processor customers for a checkout session and
// hands the browser a short-lived nonce scoped to the customer id.
package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payform-api/internal/common"
	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/hooks"
	"github.com/noah-isme/payform-api/internal/nonce"
	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/processor"
)

// Request asks for a customer to pay a form with.
type Request struct {
	forms.Submission
	PaymentMethodID string `json:"payment_method_id"`
	Email           string `json:"email" validate:"omitempty,email"`
	Name            string `json:"name" validate:"max=256"`
}

// Reference is what the browser keeps for the rest of the checkout.
type Reference struct {
	CustomerID    string    `json:"customer_id"`
	CustomerNonce string    `json:"customer_nonce"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Resolver turns a request into a customer reference.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (Reference, error)
}

// Nonces verifies form nonces and issues customer nonces.
type Nonces interface {
	VerifyForm(token, formID string) error
	CustomerNonce(customerID string) (nonce.Token, error)
}

// Service is the Resolver backed by the payment processor.
type Service struct {
	Processor processor.Processor
	Forms     forms.Resolver
	Nonces    Nonces
	Observers *hooks.Observers
	Logger    zerolog.Logger
	Now       func() time.Time
}

var _ Resolver = (*Service)(nil)

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Resolve creates the customer on the form's account. Retries of the same
// submission reuse the customer through the processor idempotency key.
func (s *Service) Resolve(ctx context.Context, req Request) (Reference, error) {
	if err := common.ValidateStruct(&req); err != nil {
		return Reference{}, err
	}
	if err := s.Nonces.VerifyForm(req.Nonce(), req.FormID); err != nil {
		return Reference{}, common.NonceError(err)
	}
	form, err := s.Forms.Resolve(ctx, req.FormID)
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return Reference{}, common.InvalidFormError(err)
		}
		return Reference{}, common.InternalError(err)
	}
	obs.Annotate(ctx, "form_id", form.ID)

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = strings.TrimSpace(req.FormData.CustomerEmail)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.FormData.CustomerName)
	}
	subID := strings.TrimSpace(req.FormData.SubmissionID)
	if subID == "" {
		subID = uuid.NewString()
	}

	ev := hooks.Event{Operation: hooks.OpCreateCustomer, FormID: form.ID, Livemode: form.Livemode}
	s.Observers.Before(ctx, ev)
	start := s.now()
	cus, err := s.Processor.CreateCustomer(ctx, processor.CustomerArgs{
		Account:         processor.Account{Livemode: form.Livemode, ConnectedAccountID: form.ConnectedAccountID},
		IdempotencyKey:  common.IdempotencyKey("cus_create", form.ID, strings.ToLower(email), subID),
		Email:           email,
		Name:            name,
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		Metadata:        map[string]string{"simpay_form_id": form.ID, "simpay_submission_id": subID},
	})
	ev.Duration = s.now().Sub(start)
	ev.OccurredAt = s.now().UTC()
	if err != nil {
		ev.Outcome = hooks.OutcomeFailed
		ev.Error = err.Error()
		s.Observers.After(ctx, ev)
		return Reference{}, processorError(err)
	}
	ev.CustomerID = cus.ID
	ev.ObjectID = cus.ID
	ev.Outcome = hooks.OutcomeSucceeded
	s.Observers.After(ctx, ev)

	tok, err := s.Nonces.CustomerNonce(cus.ID)
	if err != nil {
		return Reference{}, common.InternalError(err)
	}
	s.Logger.Debug().Str("form_id", form.ID).Str("customer_id", cus.ID).Msg("customer created")
	return Reference{CustomerID: cus.ID, CustomerNonce: tok.Value, ExpiresAt: tok.ExpiresAt}, nil
}

func processorError(err error) error {
	return common.ProcessorError(processor.SafeMessage(err), err)
}
