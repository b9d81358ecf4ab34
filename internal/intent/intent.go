package intent

// Kind distinguishes payment intents from setup intents.
type Kind string

const (
	KindPaymentIntent Kind = "payment_intent"
	KindSetupIntent   Kind = "setup_intent"
)

// NextAction describes the customer action required by a requires_action intent.
type NextAction struct {
	Type        NextActionType `json:"type"`
	RedirectURL string         `json:"redirect_url,omitempty"`
}

// Intent is the ephemeral view of a processor intent rebuilt from every response.
type Intent struct {
	ID              string      `json:"id"`
	Object          Kind        `json:"object"`
	Status          Status      `json:"status"`
	ClientSecret    string      `json:"client_secret,omitempty"`
	NextAction      *NextAction `json:"next_action,omitempty"`
	PaymentMethodID string      `json:"payment_method,omitempty"`
	CustomerID      string      `json:"customer,omitempty"`
	Amount          int64       `json:"amount,omitempty"`
	Currency        string      `json:"currency,omitempty"`
	Livemode        bool        `json:"livemode"`
}

// NextActionType returns the tagged action type, or an empty string when none is pending.
func (i Intent) NextActionType() NextActionType {
	if i.NextAction == nil {
		return ""
	}
	return i.NextAction.Type
}

// Invoice carries the payment intent of a subscription's latest invoice.
type Invoice struct {
	ID            string  `json:"id"`
	PaymentIntent *Intent `json:"payment_intent,omitempty"`
}

// Subscription is the view of a recurring billing agreement returned to the browser.
type Subscription struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	Status             SubscriptionStatus `json:"status"`
	CustomerID         string             `json:"customer,omitempty"`
	LatestInvoice      *Invoice           `json:"latest_invoice,omitempty"`
	PendingSetupIntent *Intent            `json:"pending_setup_intent,omitempty"`
	Livemode           bool               `json:"livemode"`
}

// PaymentIntent returns the latest invoice's payment intent if there is one.
func (s Subscription) PaymentIntent() *Intent {
	if s.LatestInvoice == nil {
		return nil
	}
	return s.LatestInvoice.PaymentIntent
}
