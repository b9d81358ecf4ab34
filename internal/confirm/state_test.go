package confirm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payform-api/internal/intent"
)

func TestStepTransitions(t *testing.T) {
	loop := &Loop{MaxRounds: 1}
	boom := errors.New("boom")

	cases := []struct {
		name      string
		from      Progress
		ev        Event
		wantState State
		wantEff   EffectKind
		wantErr   error
	}{
		{"begin", Progress{State: Start}, Event{Kind: EventBegin}, AwaitingServerResponse, EffectCreate, nil},
		{"resolved response", Progress{State: AwaitingServerResponse}, Event{Kind: EventServerResponse, Response: intent.Response{Success: true}}, Resolved, EffectNone, nil},
		{"retry response resolves", Progress{State: AwaitingServerResponse}, Event{Kind: EventServerResponse, Response: intent.Response{ClientSecret: "s"}}, Resolved, EffectNone, nil},
		{"action response", Progress{State: AwaitingServerResponse}, Event{Kind: EventServerResponse, Response: actionRequired("s")}, AwaitingChallenge, EffectChallenge, nil},
		{"action without secret", Progress{State: AwaitingServerResponse}, Event{Kind: EventServerResponse, Response: intent.Response{RequiresAction: true}}, Failed, EffectNone, ErrMissingClientSecret},
		{"action past limit", Progress{State: AwaitingServerResponse, Challenges: 1}, Event{Kind: EventServerResponse, Response: actionRequired("s")}, Failed, EffectNone, ErrTooManyChallenges},
		{"server error", Progress{State: AwaitingServerResponse}, Event{Kind: EventServerError, Err: boom}, Failed, EffectNone, boom},
		{"challenge ok", Progress{State: AwaitingChallenge}, Event{Kind: EventChallengeSucceeded, IntentID: "pi_1"}, AwaitingServerResponse, EffectConfirm, nil},
		{"challenge failed", Progress{State: AwaitingChallenge}, Event{Kind: EventChallengeFailed, Err: boom}, Failed, EffectNone, boom},
		{"canceled", Progress{State: AwaitingChallenge}, Event{Kind: EventCanceled, Err: boom}, Failed, EffectNone, boom},
		{"unexpected", Progress{State: Start}, Event{Kind: EventChallengeSucceeded}, Failed, EffectNone, ErrUnexpectedEvent},
		{"terminal resolved", Progress{State: Resolved}, Event{Kind: EventServerError, Err: boom}, Resolved, EffectNone, nil},
		{"terminal failed", Progress{State: Failed}, Event{Kind: EventBegin}, Failed, EffectNone, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, eff := loop.Step(tc.from, tc.ev)
			require.Equal(t, tc.wantState, got.State)
			require.Equal(t, tc.wantEff, eff.Kind)
			if tc.wantErr != nil {
				require.ErrorIs(t, got.Err, tc.wantErr)
			} else {
				require.NoError(t, got.Err)
			}
		})
	}
}

func TestStepCarriesChallengeData(t *testing.T) {
	loop := &Loop{}
	p, eff := loop.Step(Progress{State: AwaitingServerResponse}, Event{Kind: EventServerResponse, Response: actionRequired("pi_1_secret")})
	require.Equal(t, 1, p.Challenges)
	require.Equal(t, "pi_1_secret", eff.ClientSecret)

	_, eff = loop.Step(p, Event{Kind: EventChallengeSucceeded, IntentID: "pi_1"})
	require.Equal(t, "pi_1", eff.IntentID)
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "awaiting_challenge", AwaitingChallenge.String())
	require.True(t, Failed.Terminal())
	require.False(t, Start.Terminal())
	require.Equal(t, "challenge_setup", ActionChallengeSetup.String())
}
