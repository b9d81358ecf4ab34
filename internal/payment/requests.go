package payment

import (
	"strings"

	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/intent"
)

// DefaultPaymentMethodType applies when a request names no payment method type.
const DefaultPaymentMethodType = "card"

func methodTypeOrDefault(t string) string {
	if t = strings.TrimSpace(t); t != "" {
		return t
	}
	return DefaultPaymentMethodType
}

// CreateIntentRequest starts a one-time payment.
type CreateIntentRequest struct {
	forms.Submission
	CustomerID        string `json:"customer_id" validate:"required"`
	CustomerNonce     string `json:"customer_nonce"`
	PaymentMethodID   string `json:"payment_method_id" validate:"required_if=PaymentMethodType card"`
	PaymentMethodType string `json:"payment_method_type"`
}

// ConfirmIntentRequest confirms a payment intent after a customer action.
type ConfirmIntentRequest struct {
	forms.Submission
	CustomerID      string `json:"customer_id" validate:"required"`
	CustomerNonce   string `json:"customer_nonce"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required,startswith=pi_"`
	PaymentMethodID string `json:"payment_method_id"`
}

// SubscriptionRequest starts a recurring payment for one of the form's prices.
type SubscriptionRequest struct {
	forms.Submission
	CustomerID        string `json:"customer_id" validate:"required"`
	CustomerNonce     string `json:"customer_nonce"`
	PaymentMethodID   string `json:"payment_method_id" validate:"required_if=PaymentMethodType card"`
	PaymentMethodType string `json:"payment_method_type"`
}

// SetupIntentRequest saves a payment method for later use.
type SetupIntentRequest struct {
	forms.Submission
	CustomerID      string `json:"customer_id" validate:"required"`
	CustomerNonce   string `json:"customer_nonce"`
	PaymentMethodID string `json:"payment_method_id"`
}

// IntentResult is the reduced response for create and confirm.
type IntentResult struct {
	Intent     intent.Intent
	Response   intent.Response
	HTTPStatus int
}

// SetupIntentResponse is returned by the setup intent endpoint.
type SetupIntentResponse struct {
	ID             string        `json:"id"`
	Status         intent.Status `json:"status"`
	ClientSecret   string        `json:"client_secret"`
	RequiresAction bool          `json:"requires_action"`
}
