package processor

import (
	"context"

	"github.com/noah-isme/payform-api/internal/intent"
)

// Account selects the processor credentials used for a call.
type Account struct {
	Livemode           bool
	ConnectedAccountID string
}

// Mode returns "live" or "test".
func (a Account) Mode() string {
	if a.Livemode {
		return "live"
	}
	return "test"
}

// PaymentIntentArgs describes a one-time payment created and confirmed in a single call.
type PaymentIntentArgs struct {
	Account             Account
	IdempotencyKey      string
	Amount              int64
	Currency            string
	CustomerID          string
	PaymentMethodID     string
	PaymentMethodTypes  []string
	CaptureMethod       string
	StatementDescriptor string
	Description         string
	SetupFutureUsage    string
	ReceiptEmail        string
	ReturnURL           string
	Metadata            map[string]string
}

// ConfirmArgs confirms an existing payment intent after the customer completed an action.
type ConfirmArgs struct {
	Account         Account
	IdempotencyKey  string
	IntentID        string
	PaymentMethodID string
	ReturnURL       string
}

// SubscriptionArgs creates a subscription whose first invoice is left incomplete
// until the customer confirms the payment.
type SubscriptionArgs struct {
	Account         Account
	IdempotencyKey  string
	CustomerID      string
	PriceID         string
	Quantity        int64
	PaymentMethodID string
	Coupon          string
	TrialPeriodDays int64
	Metadata        map[string]string
}

// SetupIntentArgs saves a payment method for off-session use.
type SetupIntentArgs struct {
	Account            Account
	IdempotencyKey     string
	CustomerID         string
	PaymentMethodID    string
	PaymentMethodTypes []string
	ReturnURL          string
	Metadata           map[string]string
}

// CustomerArgs creates a processor customer.
type CustomerArgs struct {
	Account         Account
	IdempotencyKey  string
	Email           string
	Name            string
	PaymentMethodID string
	Metadata        map[string]string
}

// Customer is the processor-side customer record.
type Customer struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Livemode bool   `json:"livemode"`
}

// Processor is the remote payment processor.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, args PaymentIntentArgs) (intent.Intent, error)
	ConfirmPaymentIntent(ctx context.Context, args ConfirmArgs) (intent.Intent, error)
	CreateSubscription(ctx context.Context, args SubscriptionArgs) (intent.Subscription, error)
	CreateSetupIntent(ctx context.Context, args SetupIntentArgs) (intent.Intent, error)
	CreateCustomer(ctx context.Context, args CustomerArgs) (Customer, error)
}
