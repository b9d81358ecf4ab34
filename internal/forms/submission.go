package forms

import (
	"fmt"
	"strings"
)

// NonceField is the form value carrying the form nonce.
const NonceField = "_wpnonce"

// Submission is the browser-side snapshot of a form being paid.
type Submission struct {
	FormID     string         `json:"form_id" validate:"required"`
	FormValues map[string]any `json:"form_values" validate:"required"`
	FormData   FormData       `json:"form_data"`
}

// FormData carries the computed values the form script sends with each request.
type FormData struct {
	SubmissionID       string   `json:"submission_id,omitempty"`
	Amount             int64    `json:"amount,omitempty" validate:"gte=0"`
	Currency           string   `json:"currency,omitempty"`
	PriceID            string   `json:"price_id,omitempty"`
	Quantity           int64    `json:"quantity,omitempty" validate:"gte=0"`
	Coupon             string   `json:"coupon,omitempty"`
	CustomerEmail      string   `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerName       string   `json:"customer_name,omitempty"`
	PaymentMethodTypes []string `json:"payment_method_types,omitempty"`
	TrialPeriodDays    int64    `json:"trial_period_days,omitempty" validate:"gte=0"`
	IsRecurring        bool     `json:"is_recurring,omitempty"`
}

// Nonce returns the form nonce submitted with the form values.
func (s Submission) Nonce() string {
	if s.FormValues == nil {
		return ""
	}
	switch v := s.FormValues[NonceField].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
