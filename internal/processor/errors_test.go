package processor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payform-api/internal/resilience"
)

func TestSafeMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", errors.New("dial tcp 10.0.0.1:443: i/o timeout"), MessageGeneric},
		{"card error", &Error{Kind: KindCard, Message: "Your card was declined."}, "Your card was declined."},
		{"card error with markup", &Error{Kind: KindCard, Message: "<b>Your card's</b> <script>x()</script>expired."}, "Your card's expired."},
		{"empty card message", &Error{Kind: KindCard}, MessageGeneric},
		{"invalid request", &Error{Kind: KindInvalidRequest, Message: "Amount must be at least 50 cents."}, "Amount must be at least 50 cents."},
		{"api error hides message", &Error{Kind: KindAPI, Message: "internal db shard 7 down"}, MessageGeneric},
		{"unavailable", &Error{Kind: KindUnavailable}, MessageUnavailable},
		{"wrapped", fmt.Errorf("create: %w", &Error{Kind: KindCard, Message: "Declined."}), "Declined."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SafeMessage(tc.err))
		})
	}
}

func TestWrapOpenCircuitIsUnavailable(t *testing.T) {
	err := wrapStripeError("create_payment_intent", fmt.Errorf("post: %w", resilience.ErrOpenCircuit))
	var perr *Error
	require.True(t, errors.As(err, &perr))
	require.Equal(t, KindUnavailable, perr.Kind)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}
