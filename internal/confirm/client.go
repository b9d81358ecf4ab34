package confirm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/intent"
)

// Namespace is the REST prefix the payment form endpoints live under.
const Namespace = "/wp-json/wpsp/v2"

// Client calls the payment form REST API.
type Client struct {
	http *resty.Client
}

var _ API = (*Client)(nil)

// NewClient returns a client for the site at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+Namespace).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CustomerRequest asks the server for a customer.
type CustomerRequest struct {
	forms.Submission
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
}

// CustomerReference is the server's customer answer.
type CustomerReference struct {
	CustomerID    string    `json:"customer_id"`
	CustomerNonce string    `json:"customer_nonce"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// FormNonce is a nonce to embed in a form submission.
type FormNonce struct {
	Value     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

type confirmBody struct {
	Submission
	PaymentIntentID string `json:"payment_intent_id"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var eb errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&eb).
		Post(path)
	if err != nil {
		return fmt.Errorf("confirm: post %s: %w", path, err)
	}
	return asServerError(resp, &eb)
}

// asServerError turns error statuses into a ServerError. The body of an
// error answer is decoded into eb by resty.
func asServerError(resp *resty.Response, eb *errorBody) error {
	if !resp.IsError() {
		return nil
	}
	msg := eb.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &ServerError{Status: resp.StatusCode(), Code: eb.Code, Message: msg}
}

// CreateIntent implements API.
func (c *Client) CreateIntent(ctx context.Context, sub Submission) (intent.Response, error) {
	var out intent.Response
	err := c.post(ctx, "/paymentintent/create", sub, &out)
	return out, err
}

// ConfirmIntent implements API.
func (c *Client) ConfirmIntent(ctx context.Context, intentID string, sub Submission) (intent.Response, error) {
	var out intent.Response
	err := c.post(ctx, "/paymentintent/confirm", confirmBody{Submission: sub, PaymentIntentID: intentID}, &out)
	return out, err
}

// CreateSubscription posts a recurring submission and returns the subscription.
func (c *Client) CreateSubscription(ctx context.Context, sub Submission) (intent.Subscription, error) {
	var out intent.Subscription
	err := c.post(ctx, "/subscription", sub, &out)
	return out, err
}

// CreateCustomer asks for a customer and its nonce.
func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (CustomerReference, error) {
	var out CustomerReference
	err := c.post(ctx, "/customer", req, &out)
	return out, err
}

// Nonce fetches the form nonce for formID.
func (c *Client) Nonce(ctx context.Context, formID string) (FormNonce, error) {
	var (
		out FormNonce
		eb  errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("form_id", formID).
		SetResult(&out).
		SetError(&eb).
		Get("/nonce")
	if err != nil {
		return FormNonce{}, fmt.Errorf("confirm: get nonce: %w", err)
	}
	if err := asServerError(resp, &eb); err != nil {
		return FormNonce{}, err
	}
	return out, nil
}
