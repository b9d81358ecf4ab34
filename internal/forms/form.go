package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no form matches the id.
	ErrNotFound = errors.New("forms: form not found")
	// ErrAmountTooLow is returned when a custom amount is below the form minimum.
	ErrAmountTooLow = errors.New("forms: amount below minimum")
	// ErrUnknownPrice is returned when a price id is not offered by the form.
	ErrUnknownPrice = errors.New("forms: price not available on form")
)

// Capture methods.
const (
	CaptureAutomatic = "automatic"
	CaptureManual    = "manual"
)

// Form is the owner-configured payment form a submission is checked against.
type Form struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description,omitempty"`
	Livemode            bool     `json:"livemode"`
	ConnectedAccountID  string   `json:"connected_account_id,omitempty"`
	Currency            string   `json:"currency"`
	Amount              int64    `json:"amount"`
	MinAmount           int64    `json:"min_amount"`
	PriceIDs            []string `json:"price_ids,omitempty"`
	StatementDescriptor string   `json:"statement_descriptor,omitempty"`
	CaptureMethod       string   `json:"capture_method"`
	PaymentMethodTypes  []string `json:"payment_method_types,omitempty"`
	SetupFutureUsage    string   `json:"setup_future_usage,omitempty"`
	SuccessURL          string   `json:"success_url,omitempty"`
	ErrorURL            string   `json:"error_url,omitempty"`
}

// Resolver looks up form configuration. Implementations are side-effect free.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Form, error)
}

// ManualCapture reports whether successful payments are only authorized.
func (f Form) ManualCapture() bool {
	return f.CaptureMethod == CaptureManual
}

// HasPrice reports whether the recurring price is offered by the form.
func (f Form) HasPrice(priceID string) bool {
	for _, id := range f.PriceIDs {
		if id == priceID {
			return true
		}
	}
	return false
}

// ResolveAmount returns the amount to charge. A fixed amount always wins;
// otherwise the custom amount must be positive and at least MinAmount.
func (f Form) ResolveAmount(custom int64) (int64, error) {
	if f.Amount > 0 {
		return f.Amount, nil
	}
	if custom <= 0 {
		return 0, fmt.Errorf("%w: amount required", ErrAmountTooLow)
	}
	if custom < f.MinAmount {
		return 0, fmt.Errorf("%w: %d < %d", ErrAmountTooLow, custom, f.MinAmount)
	}
	return custom, nil
}

// PaymentMethods returns the configured payment method types, defaulting to card.
func (f Form) PaymentMethods() []string {
	if len(f.PaymentMethodTypes) == 0 {
		return []string{"card"}
	}
	return append([]string(nil), f.PaymentMethodTypes...)
}

// Validate checks the configuration is usable.
func (f Form) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("forms: id required")
	}
	if len(strings.TrimSpace(f.Currency)) != 3 {
		return fmt.Errorf("forms: form %s: currency must be a 3 letter code", f.ID)
	}
	if f.Amount < 0 || f.MinAmount < 0 {
		return fmt.Errorf("forms: form %s: negative amount", f.ID)
	}
	switch f.CaptureMethod {
	case "", CaptureAutomatic, CaptureManual:
	default:
		return fmt.Errorf("forms: form %s: unknown capture method %q", f.ID, f.CaptureMethod)
	}
	return nil
}
