// Package confirm drives a checkout from the browser's side: it creates the
// intent, runs at most one authentication challenge at a time and confirms
// the intent until the server reports a final answer.
package confirm

import (
	"errors"
	"fmt"

	"github.com/noah-isme/payform-api/internal/intent"
)

var (
	// ErrTooManyChallenges is returned once the server asked for more
	// challenges than the loop allows.
	ErrTooManyChallenges = errors.New("confirm: too many authentication challenges")
	// ErrMissingClientSecret is returned when an action is required but no
	// client secret came with it.
	ErrMissingClientSecret = errors.New("confirm: action required without client secret")
	// ErrUnexpectedEvent is returned when an event does not fit the current state.
	ErrUnexpectedEvent = errors.New("confirm: unexpected event")
)

// State is a checkout attempt's position in the loop.
type State int

const (
	Start State = iota
	AwaitingServerResponse
	AwaitingChallenge
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case AwaitingServerResponse:
		return "awaiting_server_response"
	case AwaitingChallenge:
		return "awaiting_challenge"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Resolved || s == Failed
}

// EventKind tags an Event.
type EventKind int

const (
	EventBegin EventKind = iota
	EventServerResponse
	EventServerError
	EventChallengeSucceeded
	EventChallengeFailed
	EventCanceled
)

// Event is something that happened to the loop.
type Event struct {
	Kind     EventKind
	Response intent.Response
	IntentID string
	Err      error
}

// EffectKind tags an Effect.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectCreate
	EffectChallenge
	EffectConfirm
)

// Effect is the work the interpreter must do next.
type Effect struct {
	Kind         EffectKind
	ClientSecret string
	IntentID     string
}

// Progress is the full loop state.
type Progress struct {
	State      State
	Challenges int
	Last       intent.Response
	Err        error
}

func fail(p Progress, err error) (Progress, Effect) {
	p.State = Failed
	p.Err = err
	return p, Effect{}
}

// Step is the transition function. It performs no I/O.
func (l *Loop) Step(p Progress, ev Event) (Progress, Effect) {
	if p.State.Terminal() {
		return p, Effect{}
	}
	if ev.Kind == EventCanceled {
		return fail(p, ev.Err)
	}
	switch p.State {
	case Start:
		if ev.Kind != EventBegin {
			break
		}
		p.State = AwaitingServerResponse
		return p, Effect{Kind: EffectCreate}
	case AwaitingServerResponse:
		switch ev.Kind {
		case EventServerError:
			return fail(p, ev.Err)
		case EventServerResponse:
			p.Last = ev.Response
			if !ev.Response.RequiresAction || ev.Response.RedirectURL != "" {
				// redirect actions are completed by the browser leaving the page
				p.State = Resolved
				return p, Effect{}
			}
			if ev.Response.ClientSecret == "" {
				return fail(p, ErrMissingClientSecret)
			}
			if p.Challenges >= l.maxRounds() {
				return fail(p, ErrTooManyChallenges)
			}
			p.Challenges++
			p.State = AwaitingChallenge
			return p, Effect{Kind: EffectChallenge, ClientSecret: ev.Response.ClientSecret}
		}
	case AwaitingChallenge:
		switch ev.Kind {
		case EventChallengeFailed:
			return fail(p, ev.Err)
		case EventChallengeSucceeded:
			p.State = AwaitingServerResponse
			return p, Effect{Kind: EffectConfirm, IntentID: ev.IntentID}
		}
	}
	return fail(p, fmt.Errorf("%w: %d in %s", ErrUnexpectedEvent, ev.Kind, p.State))
}
