package processor

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"

	"github.com/noah-isme/payform-api/internal/intent"
)

// StripeConfig configures the Stripe processor.
type StripeConfig struct {
	TestSecretKey     string
	LiveSecretKey     string
	HTTPClient        *http.Client
	MaxNetworkRetries int64
	// APIURL overrides the API base URL, used to point the SDK at a local stub.
	APIURL string
	Logger zerolog.Logger
}

// Stripe implements Processor on top of stripe-go. Test and live mode use
// separate API clients; forms select one through Account.Livemode.
type Stripe struct {
	test   *client.API
	live   *client.API
	logger zerolog.Logger
}

// NewStripe builds the processor. At least one secret key is required.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if strings.TrimSpace(cfg.TestSecretKey) == "" && strings.TrimSpace(cfg.LiveSecretKey) == "" {
		return nil, errors.New("processor: stripe secret key required")
	}
	logger := cfg.Logger.With().Str("component", "stripe").Logger()
	backends := newBackends(cfg, logger)
	s := &Stripe{logger: logger}
	if key := strings.TrimSpace(cfg.TestSecretKey); key != "" {
		s.test = client.New(key, backends)
	}
	if key := strings.TrimSpace(cfg.LiveSecretKey); key != "" {
		s.live = client.New(key, backends)
	}
	return s, nil
}

func newBackends(cfg StripeConfig, logger zerolog.Logger) *stripe.Backends {
	retries := cfg.MaxNetworkRetries
	if retries < 0 {
		retries = 0
	}
	conf := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		LeveledLogger:     leveledLogger{logger: logger},
		MaxNetworkRetries: stripe.Int64(retries),
	}
	if cfg.APIURL != "" {
		conf.URL = stripe.String(cfg.APIURL)
	}
	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, conf),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, conf),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, conf),
	}
}

func (s *Stripe) api(op string, acct Account) (*client.API, error) {
	api := s.test
	if acct.Livemode {
		api = s.live
	}
	if api == nil {
		return nil, &Error{Op: op, Kind: KindConfig, Message: acct.Mode() + " mode secret key not configured"}
	}
	return api, nil
}

func applyParams(ctx context.Context, p *stripe.Params, acct Account, idempotencyKey string) {
	p.Context = ctx
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
	if acct.ConnectedAccountID != "" {
		p.SetStripeAccount(acct.ConnectedAccountID)
	}
}

func stringSlice(values []string) []*string {
	if len(values) == 0 {
		return nil
	}
	return stripe.StringSlice(values)
}

func optionalString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return stripe.String(v)
}

// CreatePaymentIntent creates and confirms a payment intent with manual confirmation.
func (s *Stripe) CreatePaymentIntent(ctx context.Context, args PaymentIntentArgs) (intent.Intent, error) {
	const op = "create_payment_intent"
	api, err := s.api(op, args.Account)
	if err != nil {
		return intent.Intent{}, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:              stripe.Int64(args.Amount),
		Currency:            stripe.String(strings.ToLower(args.Currency)),
		Customer:            optionalString(args.CustomerID),
		PaymentMethod:       optionalString(args.PaymentMethodID),
		PaymentMethodTypes:  stringSlice(args.PaymentMethodTypes),
		Confirm:             stripe.Bool(true),
		ConfirmationMethod:  stripe.String("manual"),
		CaptureMethod:       optionalString(args.CaptureMethod),
		StatementDescriptor: optionalString(args.StatementDescriptor),
		Description:         optionalString(args.Description),
		SetupFutureUsage:    optionalString(args.SetupFutureUsage),
		ReceiptEmail:        optionalString(args.ReceiptEmail),
		ReturnURL:           optionalString(args.ReturnURL),
	}
	applyParams(ctx, &params.Params, args.Account, args.IdempotencyKey)
	for k, v := range args.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := api.PaymentIntents.New(params)
	if err != nil {
		return intent.Intent{}, wrapStripeError(op, err)
	}
	return fromPaymentIntent(pi), nil
}

// ConfirmPaymentIntent confirms an intent after the customer completed an action.
func (s *Stripe) ConfirmPaymentIntent(ctx context.Context, args ConfirmArgs) (intent.Intent, error) {
	const op = "confirm_payment_intent"
	api, err := s.api(op, args.Account)
	if err != nil {
		return intent.Intent{}, err
	}
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: optionalString(args.PaymentMethodID),
		ReturnURL:     optionalString(args.ReturnURL),
	}
	applyParams(ctx, &params.Params, args.Account, args.IdempotencyKey)
	pi, err := api.PaymentIntents.Confirm(args.IntentID, params)
	if err != nil {
		return intent.Intent{}, wrapStripeError(op, err)
	}
	return fromPaymentIntent(pi), nil
}

// CreateSubscription creates a subscription with payment_behavior=allow_incomplete
// so the first invoice is charged against the default payment method right
// away. A charge that needs authentication leaves the subscription incomplete
// with the invoice's payment intent in requires_action; the expansions carry
// what the browser needs to finish it.
func (s *Stripe) CreateSubscription(ctx context.Context, args SubscriptionArgs) (intent.Subscription, error) {
	const op = "create_subscription"
	api, err := s.api(op, args.Account)
	if err != nil {
		return intent.Subscription{}, err
	}
	item := &stripe.SubscriptionItemsParams{Price: stripe.String(args.PriceID)}
	if args.Quantity > 0 {
		item.Quantity = stripe.Int64(args.Quantity)
	}
	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(args.CustomerID),
		Items:                []*stripe.SubscriptionItemsParams{item},
		PaymentBehavior:      stripe.String("allow_incomplete"),
		DefaultPaymentMethod: optionalString(args.PaymentMethodID),
		Coupon:               optionalString(args.Coupon),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	if args.TrialPeriodDays > 0 {
		params.TrialPeriodDays = stripe.Int64(args.TrialPeriodDays)
	}
	applyParams(ctx, &params.Params, args.Account, args.IdempotencyKey)
	params.AddExpand("latest_invoice.payment_intent")
	params.AddExpand("pending_setup_intent")
	for k, v := range args.Metadata {
		params.AddMetadata(k, v)
	}
	sub, err := api.Subscriptions.New(params)
	if err != nil {
		return intent.Subscription{}, wrapStripeError(op, err)
	}
	return fromSubscription(sub), nil
}

// CreateSetupIntent creates an off-session setup intent, confirming it when a
// payment method is already attached.
func (s *Stripe) CreateSetupIntent(ctx context.Context, args SetupIntentArgs) (intent.Intent, error) {
	const op = "create_setup_intent"
	api, err := s.api(op, args.Account)
	if err != nil {
		return intent.Intent{}, err
	}
	params := &stripe.SetupIntentParams{
		Customer:           optionalString(args.CustomerID),
		PaymentMethodTypes: stringSlice(args.PaymentMethodTypes),
		Usage:              stripe.String("off_session"),
	}
	if args.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(args.PaymentMethodID)
		params.Confirm = stripe.Bool(true)
		params.ReturnURL = optionalString(args.ReturnURL)
	}
	applyParams(ctx, &params.Params, args.Account, args.IdempotencyKey)
	for k, v := range args.Metadata {
		params.AddMetadata(k, v)
	}
	si, err := api.SetupIntents.New(params)
	if err != nil {
		return intent.Intent{}, wrapStripeError(op, err)
	}
	return fromSetupIntent(si), nil
}

// CreateCustomer creates a customer, attaching the payment method as the invoice default.
func (s *Stripe) CreateCustomer(ctx context.Context, args CustomerArgs) (Customer, error) {
	const op = "create_customer"
	api, err := s.api(op, args.Account)
	if err != nil {
		return Customer{}, err
	}
	params := &stripe.CustomerParams{
		Email: optionalString(args.Email),
		Name:  optionalString(args.Name),
	}
	if args.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(args.PaymentMethodID)
		params.InvoiceSettings = &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(args.PaymentMethodID),
		}
	}
	applyParams(ctx, &params.Params, args.Account, args.IdempotencyKey)
	for k, v := range args.Metadata {
		params.AddMetadata(k, v)
	}
	c, err := api.Customers.New(params)
	if err != nil {
		return Customer{}, wrapStripeError(op, err)
	}
	return Customer{ID: c.ID, Email: c.Email, Name: c.Name, Livemode: c.Livemode}, nil
}

func fromPaymentIntent(pi *stripe.PaymentIntent) intent.Intent {
	if pi == nil {
		return intent.Intent{}
	}
	out := intent.Intent{
		ID:           pi.ID,
		Object:       intent.KindPaymentIntent,
		Status:       intent.ParseStatus(string(pi.Status)),
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Livemode:     pi.Livemode,
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	if pi.NextAction != nil {
		next := &intent.NextAction{Type: intent.NextActionType(pi.NextAction.Type)}
		if pi.NextAction.RedirectToURL != nil {
			next.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
		out.NextAction = next
	}
	return out
}

func fromSetupIntent(si *stripe.SetupIntent) intent.Intent {
	if si == nil {
		return intent.Intent{}
	}
	out := intent.Intent{
		ID:           si.ID,
		Object:       intent.KindSetupIntent,
		Status:       intent.ParseStatus(string(si.Status)),
		ClientSecret: si.ClientSecret,
		Livemode:     si.Livemode,
	}
	if si.PaymentMethod != nil {
		out.PaymentMethodID = si.PaymentMethod.ID
	}
	if si.Customer != nil {
		out.CustomerID = si.Customer.ID
	}
	if si.NextAction != nil {
		next := &intent.NextAction{Type: intent.NextActionType(si.NextAction.Type)}
		if si.NextAction.RedirectToURL != nil {
			next.RedirectURL = si.NextAction.RedirectToURL.URL
		}
		out.NextAction = next
	}
	return out
}

func fromSubscription(sub *stripe.Subscription) intent.Subscription {
	if sub == nil {
		return intent.Subscription{}
	}
	out := intent.Subscription{
		ID:       sub.ID,
		Object:   "subscription",
		Status:   intent.SubscriptionStatus(sub.Status),
		Livemode: sub.Livemode,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.LatestInvoice != nil {
		inv := &intent.Invoice{ID: sub.LatestInvoice.ID}
		if sub.LatestInvoice.PaymentIntent != nil {
			pi := fromPaymentIntent(sub.LatestInvoice.PaymentIntent)
			inv.PaymentIntent = &pi
		}
		out.LatestInvoice = inv
	}
	if sub.PendingSetupIntent != nil {
		si := fromSetupIntent(sub.PendingSetupIntent)
		out.PendingSetupIntent = &si
	}
	return out
}

// leveledLogger routes stripe-go's internal logging through zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l leveledLogger) Infof(format string, v ...interface{})  { l.logger.Debug().Msgf(format, v...) }
func (l leveledLogger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l leveledLogger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
