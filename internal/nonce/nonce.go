// Package nonce issues and verifies short-lived signed tokens that gate the
// payment endpoints. A form nonce is embedded in the rendered payment form; a
// customer nonce proves the caller created the customer it is paying as.
package nonce

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Scope binds a token to the kind of object it protects.
type Scope string

const (
	ScopeForm     Scope = "form"
	ScopeCustomer Scope = "customer"
)

const (
	defaultIssuer      = "payform-api"
	defaultFormTTL     = 12 * time.Hour
	defaultCustomerTTL = 2 * time.Minute
)

var (
	// ErrInvalid is returned for malformed, forged or mis-scoped tokens.
	ErrInvalid = errors.New("nonce: invalid")
	// ErrExpired is returned once a token is past its expiry.
	ErrExpired = errors.New("nonce: expired")
)

// Token is a signed nonce and its expiry.
type Token struct {
	Value     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer signs nonces with HS256.
type Issuer struct {
	secret      []byte
	issuer      string
	formTTL     time.Duration
	customerTTL time.Duration
	skew        time.Duration
	now         func() time.Time
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithTTL overrides the lifetime of form and customer nonces. Zero keeps the default.
func WithTTL(form, customer time.Duration) Option {
	return func(i *Issuer) {
		if form > 0 {
			i.formTTL = form
		}
		if customer > 0 {
			i.customerTTL = customer
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(i *Issuer) {
		if strings.TrimSpace(issuer) != "" {
			i.issuer = strings.TrimSpace(issuer)
		}
	}
}

// NewIssuer returns an Issuer. The secret must be at least 32 bytes.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("nonce: secret must be at least 32 bytes")
	}
	i := &Issuer{
		secret:      []byte(secret),
		issuer:      defaultIssuer,
		formTTL:     defaultFormTTL,
		customerTTL: defaultCustomerTTL,
		skew:        5 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// FormNonce issues the nonce a payment form submits as _wpnonce.
func (i *Issuer) FormNonce(formID string) (Token, error) {
	return i.issue(ScopeForm, formID, i.formTTL)
}

// VerifyForm checks a form nonce against the submitted form id.
func (i *Issuer) VerifyForm(token, formID string) error {
	return i.verify(token, ScopeForm, formID)
}

// CustomerNonce issues the nonce returned alongside a freshly created customer.
func (i *Issuer) CustomerNonce(customerID string) (Token, error) {
	return i.issue(ScopeCustomer, customerID, i.customerTTL)
}

// VerifyCustomer checks a customer nonce against the customer id being charged.
func (i *Issuer) VerifyCustomer(token, customerID string) error {
	return i.verify(token, ScopeCustomer, customerID)
}

func (i *Issuer) audience(scope Scope) string {
	return i.issuer + ":" + string(scope)
}

func (i *Issuer) issue(scope Scope, subject string, ttl time.Duration) (Token, error) {
	if strings.TrimSpace(subject) == "" {
		return Token{}, fmt.Errorf("nonce: empty %s id", scope)
	}
	now := i.now()
	expiresAt := now.Add(ttl)
	tok, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(subject).
		Issuer(i.issuer).
		Audience([]string{i.audience(scope)}).
		IssuedAt(now).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return Token{}, err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: string(signed), ExpiresAt: expiresAt}, nil
}

func (i *Issuer) verify(token string, scope Scope, subject string) error {
	token = strings.TrimSpace(token)
	if token == "" || strings.TrimSpace(subject) == "" {
		return ErrInvalid
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(jwa.HS256, i.secret), jwt.WithValidate(false))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	err = jwt.Validate(parsed,
		jwt.WithClock(jwt.ClockFunc(i.now)),
		jwt.WithAcceptableSkew(i.skew),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience(scope)),
		jwt.WithSubject(subject),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired()) {
		return fmt.Errorf("%w: %v", ErrExpired, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}
