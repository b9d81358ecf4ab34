package confirm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/intent"
)

func subWithIntent(status intent.SubscriptionStatus, pi intent.Status) intent.Subscription {
	return intent.Subscription{
		ID:     "sub_1",
		Status: status,
		LatestInvoice: &intent.Invoice{ID: "in_1", PaymentIntent: &intent.Intent{
			ID:           "pi_1",
			Status:       pi,
			ClientSecret: "pi_1_secret",
		}},
	}
}

func subWithSetup(status intent.SubscriptionStatus, seti intent.Status) intent.Subscription {
	return intent.Subscription{
		ID:                 "sub_2",
		Status:             status,
		PendingSetupIntent: &intent.Intent{ID: "seti_1", Object: intent.KindSetupIntent, Status: seti, ClientSecret: "seti_1_secret"},
	}
}

func TestReconcileDecisionTable(t *testing.T) {
	form := forms.Form{ID: "44", ErrorURL: "https://example.com/failed"}
	cases := []struct {
		name        string
		sub         intent.Subscription
		want        Decision
		needsAction bool
		pays, sets  int
	}{
		{"nothing to do", intent.Subscription{ID: "sub_0", Status: intent.SubscriptionActive}, Decision{Action: ActionNone}, false, 0, 0},
		{"active and paid", subWithIntent(intent.SubscriptionActive, intent.StatusSucceeded), Decision{Action: ActionNone}, false, 0, 0},
		{"trialing and paid", subWithIntent(intent.SubscriptionTrialing, intent.StatusSucceeded), Decision{Action: ActionNone}, false, 0, 0},
		{"incomplete needs new card", subWithIntent(intent.SubscriptionIncomplete, intent.StatusRequiresPaymentMethod), Decision{Action: ActionRetryPaymentMethod}, false, 0, 0},
		{"incomplete needs challenge", subWithIntent(intent.SubscriptionIncomplete, intent.StatusRequiresAction), Decision{Action: ActionChallengePayment, IntentID: "pi_1"}, true, 1, 0},
		{"setup needs challenge", subWithSetup(intent.SubscriptionIncomplete, intent.StatusRequiresAction), Decision{Action: ActionChallengeSetup, IntentID: "seti_1"}, true, 0, 1},
		{"setup needs new card", subWithSetup(intent.SubscriptionTrialing, intent.StatusRequiresPaymentMethod), Decision{Action: ActionRetryPaymentMethod}, false, 0, 0},
		{"past due", subWithIntent(intent.SubscriptionPastDue, intent.StatusRequiresPaymentMethod), Decision{Action: ActionRedirectError, ErrorURL: form.ErrorURL, Reason: ReasonPastDue}, true, 0, 0},
		{"unpaid", subWithIntent(intent.SubscriptionUnpaid, intent.StatusRequiresAction), Decision{Action: ActionRedirectError, ErrorURL: form.ErrorURL, Reason: ReasonUnpaid}, true, 0, 0},
		{"canceled", subWithIntent(intent.SubscriptionCanceled, intent.StatusCanceled), Decision{Action: ActionRedirectError, ErrorURL: form.ErrorURL, Reason: ReasonCanceled}, true, 0, 0},
		{"expired", subWithIntent(intent.SubscriptionIncompleteExpired, intent.StatusRequiresPaymentMethod), Decision{Action: ActionRedirectError, ErrorURL: form.ErrorURL, Reason: ReasonIncompleteExpired}, true, 0, 0},
		{"active but processing", subWithIntent(intent.SubscriptionActive, intent.StatusProcessing), Decision{Action: ActionRedirectError, ErrorURL: form.ErrorURL, Reason: ReasonUnknown}, true, 0, 0},
		{"setup succeeded", subWithSetup(intent.SubscriptionTrialing, intent.StatusSucceeded), Decision{Action: ActionRedirectError, ErrorURL: form.ErrorURL, Reason: ReasonUnknown}, true, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &fakeChallenger{idFor: func(string) string { return "pi_1" }}
			got, err := Reconcile(context.Background(), tc.sub, ch, form)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.needsAction, NeedsAction(tc.sub))
			require.Len(t, ch.pays, tc.pays)
			require.Len(t, ch.setups, tc.sets)
			require.Empty(t, ch.secrets)
		})
	}
}

func TestReconcileActiveSubscriptionNeedsNoAction(t *testing.T) {
	sub := subWithIntent(intent.SubscriptionActive, intent.StatusSucceeded)
	require.False(t, NeedsAction(sub))
}

func TestReconcileRunsSetupChallengeWithClientSecret(t *testing.T) {
	ch := &fakeChallenger{}
	sub := subWithSetup(intent.SubscriptionIncomplete, intent.StatusRequiresAction)

	got, err := Reconcile(context.Background(), sub, ch, forms.Form{})
	require.NoError(t, err)
	require.Equal(t, ActionChallengeSetup, got.Action)
	require.Equal(t, []string{"seti_1_secret"}, ch.setups)
}

func TestReconcilePropagatesChallengeError(t *testing.T) {
	sdkErr := errors.New("card authentication failed")
	ch := &fakeChallenger{err: sdkErr}

	_, err := Reconcile(context.Background(), subWithIntent(intent.SubscriptionIncomplete, intent.StatusRequiresAction), ch, forms.Form{})
	require.ErrorIs(t, err, sdkErr)
	require.Equal(t, []string{"pi_1_secret"}, ch.pays)

	_, err = Reconcile(context.Background(), subWithSetup(intent.SubscriptionIncomplete, intent.StatusRequiresAction), ch, forms.Form{})
	require.ErrorIs(t, err, sdkErr)
}
