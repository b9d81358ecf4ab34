package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport is an http.RoundTripper that consults a Breaker before every call.
// It does not retry: the processor SDK owns retries and reuses the same
// idempotency key across them.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

// RoundTrip implements http.RoundTripper. Transport errors count as failures
// and responses are classified by ResultForStatus.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Breaker == nil {
		return base.RoundTrip(req)
	}
	done, err := t.Breaker.Allow()
	if err != nil {
		return nil, err
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		// a caller giving up says nothing about the processor; a deadline does
		if errors.Is(req.Context().Err(), context.Canceled) {
			done(Ignored)
		} else {
			done(Failure)
		}
		return nil, err
	}
	done(ResultForStatus(resp.StatusCode))
	return resp, nil
}

// NewHTTPClient returns an http.Client whose transport is guarded by breaker.
// Calls that pass the breaker are recorded as client spans.
func NewHTTPClient(breaker *Breaker, timeout time.Duration) *http.Client {
	base := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "stripe " + r.Method
		}),
	)
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Base: base, Breaker: breaker},
	}
}
