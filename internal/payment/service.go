package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/payform-api/internal/common"
	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/hooks"
	"github.com/noah-isme/payform-api/internal/intent"
	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/processor"
)

// NonceVerifier checks form and customer nonces.
type NonceVerifier interface {
	VerifyForm(token, formID string) error
	VerifyCustomer(token, customerID string) error
}

// Service turns payment form submissions into processor calls. Every
// precondition is checked before the processor is contacted.
type Service struct {
	Processor processor.Processor
	Forms     forms.Resolver
	Nonces    NonceVerifier
	Observers *hooks.Observers
	Logger    zerolog.Logger
	// RequireCustomerNonce rejects requests that omit the customer nonce.
	RequireCustomerNonce bool
	Now                  func() time.Time
}

var tracer = otel.Tracer("payment.Service")

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// precheck runs the shared preconditions and returns the resolved form.
func (s *Service) precheck(ctx context.Context, req any, sub forms.Submission, customerID, customerNonce string) (forms.Form, error) {
	if err := common.ValidateStruct(req); err != nil {
		return forms.Form{}, err
	}
	if err := s.Nonces.VerifyForm(sub.Nonce(), sub.FormID); err != nil {
		return forms.Form{}, common.NonceError(err)
	}
	if customerNonce != "" || s.RequireCustomerNonce {
		if err := s.Nonces.VerifyCustomer(customerNonce, customerID); err != nil {
			return forms.Form{}, common.NonceError(err)
		}
	}
	form, err := s.Forms.Resolve(ctx, sub.FormID)
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return forms.Form{}, common.InvalidFormError(err)
		}
		return forms.Form{}, common.InternalError(err)
	}
	obs.Annotate(ctx, "form_id", form.ID)
	return form, nil
}

func account(form forms.Form) processor.Account {
	return processor.Account{Livemode: form.Livemode, ConnectedAccountID: form.ConnectedAccountID}
}

func submissionID(fd forms.FormData) string {
	if id := strings.TrimSpace(fd.SubmissionID); id != "" {
		return id
	}
	return uuid.NewString()
}

func formMetadata(form forms.Form, subID string) map[string]string {
	return map[string]string{
		"simpay_form_id":       form.ID,
		"simpay_submission_id": subID,
	}
}

func outcomeFor(status intent.Status) hooks.Outcome {
	switch status {
	case intent.StatusSucceeded:
		return hooks.OutcomeSucceeded
	case intent.StatusRequiresAction:
		return hooks.OutcomeAction
	case intent.StatusRequiresPaymentMethod:
		return hooks.OutcomeRetry
	case intent.StatusProcessing, intent.StatusRequiresConfirmation:
		return hooks.OutcomePending
	default:
		return hooks.OutcomeInvalid
	}
}

// call wraps a processor interaction with observers, tracing and logging.
type call struct {
	s     *Service
	span  trace.Span
	ev    hooks.Event
	start time.Time
}

func (s *Service) begin(ctx context.Context, op hooks.Operation, form forms.Form, customerID string) (context.Context, *call) {
	ctx, span := tracer.Start(ctx, "PaymentService."+string(op))
	span.SetAttributes(
		attribute.String("payform.operation", string(op)),
		attribute.String("payform.form_id", form.ID),
		attribute.Bool("payform.livemode", form.Livemode),
	)
	c := &call{s: s, span: span, start: s.now(), ev: hooks.Event{
		Operation:  op,
		FormID:     form.ID,
		CustomerID: customerID,
		Livemode:   form.Livemode,
	}}
	s.Observers.Before(ctx, c.ev)
	return ctx, c
}

func (c *call) end(ctx context.Context, objectID, status string, outcome hooks.Outcome, err error) {
	c.ev.ObjectID = objectID
	c.ev.Status = status
	c.ev.Outcome = outcome
	c.ev.Duration = c.s.now().Sub(c.start)
	c.ev.OccurredAt = c.s.now().UTC()
	if err != nil {
		c.ev.Outcome = hooks.OutcomeFailed
		c.ev.Error = err.Error()
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, "processor error")
	}
	c.span.SetAttributes(
		attribute.String("payform.object_id", objectID),
		attribute.String("payform.status", status),
		attribute.String("payform.outcome", string(c.ev.Outcome)),
	)
	c.span.End()
	obs.Annotate(ctx, "object_id", objectID)
	c.s.Observers.After(ctx, c.ev)
}

func processorError(err error) error {
	return common.ProcessorError(processor.SafeMessage(err), err)
}

func (s *Service) reduce(in intent.Intent, form forms.Form) IntentResult {
	if form.ManualCapture() && in.Status == intent.StatusRequiresCapture {
		// authorized funds count as a completed checkout
		in.Status = intent.StatusSucceeded
	}
	resp, status := intent.GeneratePaymentResponse(in)
	if status != http.StatusOK {
		s.Logger.Error().
			Str("form_id", form.ID).
			Str("intent_id", in.ID).
			Str("status", string(in.Status)).
			Msg("unexpected intent status")
	}
	return IntentResult{Intent: in, Response: resp, HTTPStatus: status}
}

// CreateIntent creates and confirms a payment intent for a form submission.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (IntentResult, error) {
	req.PaymentMethodType = methodTypeOrDefault(req.PaymentMethodType)
	form, err := s.precheck(ctx, &req, req.Submission, req.CustomerID, req.CustomerNonce)
	if err != nil {
		return IntentResult{}, err
	}
	amount, err := form.ResolveAmount(req.FormData.Amount)
	if err != nil {
		return IntentResult{}, common.ValidationError("Please enter a valid amount.", map[string]any{"min_amount": form.MinAmount})
	}
	subID := submissionID(req.FormData)
	args := processor.PaymentIntentArgs{
		Account:             account(form),
		IdempotencyKey:      common.IdempotencyKey("pi_create", form.ID, req.CustomerID, subID),
		Amount:              amount,
		Currency:            form.Currency,
		CustomerID:          req.CustomerID,
		PaymentMethodID:     req.PaymentMethodID,
		PaymentMethodTypes:  paymentMethodTypes(form, req.PaymentMethodType),
		CaptureMethod:       form.CaptureMethod,
		StatementDescriptor: form.StatementDescriptor,
		Description:         form.Description,
		SetupFutureUsage:    form.SetupFutureUsage,
		ReceiptEmail:        req.FormData.CustomerEmail,
		ReturnURL:           form.SuccessURL,
		Metadata:            formMetadata(form, subID),
	}
	ctx, c := s.begin(ctx, hooks.OpCreateIntent, form, req.CustomerID)
	pi, err := s.Processor.CreatePaymentIntent(ctx, args)
	if err != nil {
		c.end(ctx, "", "", hooks.OutcomeFailed, err)
		return IntentResult{}, processorError(err)
	}
	c.end(ctx, pi.ID, string(pi.Status), outcomeFor(pi.Status), nil)
	return s.reduce(pi, form), nil
}

// ConfirmIntent confirms a payment intent after the customer completed an action.
// The idempotency key depends only on the intent, so repeated confirms of the
// same intent are deduplicated by the processor.
func (s *Service) ConfirmIntent(ctx context.Context, req ConfirmIntentRequest) (IntentResult, error) {
	form, err := s.precheck(ctx, &req, req.Submission, req.CustomerID, req.CustomerNonce)
	if err != nil {
		return IntentResult{}, err
	}
	args := processor.ConfirmArgs{
		Account:         account(form),
		IdempotencyKey:  common.IdempotencyKey("pi_confirm", req.PaymentIntentID),
		IntentID:        req.PaymentIntentID,
		PaymentMethodID: req.PaymentMethodID,
		ReturnURL:       form.SuccessURL,
	}
	ctx, c := s.begin(ctx, hooks.OpConfirmIntent, form, req.CustomerID)
	pi, err := s.Processor.ConfirmPaymentIntent(ctx, args)
	if err != nil {
		c.end(ctx, req.PaymentIntentID, "", hooks.OutcomeFailed, err)
		return IntentResult{}, processorError(err)
	}
	c.end(ctx, pi.ID, string(pi.Status), outcomeFor(pi.Status), nil)
	return s.reduce(pi, form), nil
}

// CreateSubscription creates an incomplete subscription for one of the form's prices.
func (s *Service) CreateSubscription(ctx context.Context, req SubscriptionRequest) (intent.Subscription, error) {
	req.PaymentMethodType = methodTypeOrDefault(req.PaymentMethodType)
	form, err := s.precheck(ctx, &req, req.Submission, req.CustomerID, req.CustomerNonce)
	if err != nil {
		return intent.Subscription{}, err
	}
	priceID := strings.TrimSpace(req.FormData.PriceID)
	if priceID == "" || !form.HasPrice(priceID) {
		return intent.Subscription{}, common.ValidationError("Please select a valid plan.", map[string]any{"price_id": priceID})
	}
	quantity := req.FormData.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	subID := submissionID(req.FormData)
	args := processor.SubscriptionArgs{
		Account:         account(form),
		IdempotencyKey:  common.IdempotencyKey("sub_create", form.ID, req.CustomerID, priceID, subID),
		CustomerID:      req.CustomerID,
		PriceID:         priceID,
		Quantity:        quantity,
		PaymentMethodID: req.PaymentMethodID,
		Coupon:          strings.TrimSpace(req.FormData.Coupon),
		TrialPeriodDays: req.FormData.TrialPeriodDays,
		Metadata:        formMetadata(form, subID),
	}
	ctx, c := s.begin(ctx, hooks.OpCreateSubscription, form, req.CustomerID)
	sub, err := s.Processor.CreateSubscription(ctx, args)
	if err != nil {
		c.end(ctx, "", "", hooks.OutcomeFailed, err)
		return intent.Subscription{}, processorError(err)
	}
	outcome := hooks.OutcomePending
	switch sub.Status {
	case intent.SubscriptionActive, intent.SubscriptionTrialing:
		outcome = hooks.OutcomeSucceeded
	case intent.SubscriptionIncomplete:
		if pi := sub.PaymentIntent(); pi != nil {
			outcome = outcomeFor(pi.Status)
		}
	}
	c.end(ctx, sub.ID, string(sub.Status), outcome, nil)
	return sub, nil
}

// CreateSetupIntent creates an off-session setup intent for the customer.
func (s *Service) CreateSetupIntent(ctx context.Context, req SetupIntentRequest) (SetupIntentResponse, error) {
	form, err := s.precheck(ctx, &req, req.Submission, req.CustomerID, req.CustomerNonce)
	if err != nil {
		return SetupIntentResponse{}, err
	}
	subID := submissionID(req.FormData)
	args := processor.SetupIntentArgs{
		Account:            account(form),
		IdempotencyKey:     common.IdempotencyKey("seti_create", form.ID, req.CustomerID, subID),
		CustomerID:         req.CustomerID,
		PaymentMethodID:    req.PaymentMethodID,
		PaymentMethodTypes: form.PaymentMethods(),
		ReturnURL:          form.SuccessURL,
		Metadata:           formMetadata(form, subID),
	}
	ctx, c := s.begin(ctx, hooks.OpCreateSetupIntent, form, req.CustomerID)
	si, err := s.Processor.CreateSetupIntent(ctx, args)
	if err != nil {
		c.end(ctx, "", "", hooks.OutcomeFailed, err)
		return SetupIntentResponse{}, processorError(err)
	}
	c.end(ctx, si.ID, string(si.Status), outcomeFor(si.Status), nil)
	return SetupIntentResponse{
		ID:             si.ID,
		Status:         si.Status,
		ClientSecret:   si.ClientSecret,
		RequiresAction: si.Status == intent.StatusRequiresAction,
	}, nil
}

// paymentMethodTypes narrows the form's methods to the one the customer picked.
func paymentMethodTypes(form forms.Form, picked string) []string {
	methods := form.PaymentMethods()
	picked = strings.TrimSpace(picked)
	if picked == "" {
		return methods
	}
	for _, m := range methods {
		if m == picked {
			return []string{picked}
		}
	}
	return methods
}
