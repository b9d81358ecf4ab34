package intent

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePaymentResponse(t *testing.T) {
	cases := []struct {
		name   string
		in     Intent
		status int
		want   Response
	}{
		{
			name:   "requires payment method returns client secret",
			in:     Intent{ID: "pi_1", Status: StatusRequiresPaymentMethod, ClientSecret: "pi_1_secret"},
			status: http.StatusOK,
			want:   Response{ClientSecret: "pi_1_secret"},
		},
		{
			name:   "requires action with sdk next action",
			in:     Intent{ID: "pi_2", Status: StatusRequiresAction, ClientSecret: "pi_2_secret", NextAction: &NextAction{Type: NextActionUseStripeSDK}},
			status: http.StatusOK,
			want:   Response{RequiresAction: true, ClientSecret: "pi_2_secret"},
		},
		{
			name:   "requires action without next action",
			in:     Intent{ID: "pi_3", Status: StatusRequiresAction, ClientSecret: "pi_3_secret"},
			status: http.StatusOK,
			want:   Response{RequiresAction: true, ClientSecret: "pi_3_secret"},
		},
		{
			name: "requires action with redirect",
			in: Intent{ID: "pi_4", Status: StatusRequiresAction, ClientSecret: "pi_4_secret", NextAction: &NextAction{
				Type:        NextActionRedirectToURL,
				RedirectURL: "https://hooks.stripe.com/3ds",
			}},
			status: http.StatusOK,
			want:   Response{RequiresAction: true, ClientSecret: "pi_4_secret", RedirectURL: "https://hooks.stripe.com/3ds"},
		},
		{
			name:   "succeeded",
			in:     Intent{ID: "pi_5", Status: StatusSucceeded, ClientSecret: "pi_5_secret"},
			status: http.StatusOK,
			want:   Response{Success: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, status := GeneratePaymentResponse(tc.in)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestGeneratePaymentResponseRejectsUnhandledStatuses(t *testing.T) {
	statuses := []Status{
		StatusRequiresConfirmation,
		StatusProcessing,
		StatusRequiresCapture,
		StatusCanceled,
		ParseStatus("something_new"),
		"",
	}
	for _, s := range statuses {
		got, status := GeneratePaymentResponse(Intent{ID: "pi_x", Status: s, ClientSecret: "secret"})
		require.Equal(t, http.StatusInternalServerError, status, "status %q", s)
		require.Equal(t, Response{Message: MessageInvalidStatus}, got)
		require.Empty(t, got.ClientSecret)
	}
}

func TestParseStatus(t *testing.T) {
	require.Equal(t, StatusSucceeded, ParseStatus(" Succeeded "))
	require.True(t, ParseStatus("requires_action").Known())

	unknown := ParseStatus("requires_source")
	require.False(t, unknown.Known())
	require.Equal(t, "requires_source", unknown.String())
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusRequiresAction, StatusSucceeded))
	require.True(t, CanTransition(StatusRequiresPaymentMethod, StatusRequiresAction))
	require.False(t, CanTransition(StatusSucceeded, StatusRequiresAction))
	require.False(t, CanTransition(StatusCanceled, StatusSucceeded))
	require.True(t, CanTransition(StatusSucceeded, StatusSucceeded))
	require.False(t, CanTransition(StatusProcessing, Status("bogus")))
}

func TestSubscriptionStatusTerminal(t *testing.T) {
	require.True(t, SubscriptionCanceled.Terminal())
	require.True(t, SubscriptionIncompleteExpired.Terminal())
	require.False(t, SubscriptionIncomplete.Terminal())
	require.False(t, SubscriptionPastDue.Terminal())
}

func TestSubscriptionPaymentIntent(t *testing.T) {
	require.Nil(t, Subscription{}.PaymentIntent())
	require.Nil(t, Subscription{LatestInvoice: &Invoice{ID: "in_1"}}.PaymentIntent())

	pi := &Intent{ID: "pi_1"}
	require.Same(t, pi, Subscription{LatestInvoice: &Invoice{ID: "in_1", PaymentIntent: pi}}.PaymentIntent())
}
