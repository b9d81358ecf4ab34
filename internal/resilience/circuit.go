package resilience

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a processor call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// Result classifies one processor call for the breaker.
type Result int

const (
	Success Result = iota
	Failure
	// Ignored calls say nothing about processor health, e.g. a declined card.
	Ignored
)

var (
	errFailed  = errors.New("resilience: processor call failed")
	errIgnored = errors.New("resilience: result ignored")
)

func (r Result) err() error {
	switch r {
	case Failure:
		return errFailed
	case Ignored:
		return errIgnored
	default:
		return nil
	}
}

// ResultForStatus maps a processor HTTP status to a Result. Throttling counts
// against the processor; other 4xx answers are the customer's problem.
func ResultForStatus(code int) Result {
	switch {
	case code >= http.StatusInternalServerError, code == http.StatusTooManyRequests:
		return Failure
	case code >= http.StatusBadRequest:
		return Ignored
	default:
		return Success
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Target names the guarded dependency in metrics and logs.
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	// Window is the rolling period closed-state results are counted over.
	Window time.Duration
	Logger zerolog.Logger
}

// Breaker trips when the failure ratio over the recent window reaches a
// threshold. While open, checkout requests fail fast instead of queueing
// behind a processor outage.
type Breaker struct {
	cb     *gobreaker.TwoStepCircuitBreaker[struct{}]
	target string
}

// NewBreaker builds a breaker that evaluates the failure ratio once
// MinRequests counted results are in the window.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		target = "default"
	}
	b := &Breaker{target: target}
	logger := cfg.Logger
	b.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:         target,
		MaxRequests:  1,
		Interval:     cfg.Window,
		BucketPeriod: cfg.Window / 6,
		Timeout:      cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			counted := c.TotalSuccesses + c.TotalFailures
			if counted < uint32(cfg.MinRequests) {
				return false
			}
			return float64(c.TotalFailures)/float64(counted) >= cfg.FailureRatio
		},
		IsExcluded: func(err error) bool { return errors.Is(err, errIgnored) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			prev, next := stateOf(from), stateOf(to)
			BreakerState.WithLabelValues(name).Set(float64(next))
			BreakerTransitions.WithLabelValues(name, prev.String(), next.String()).Inc()
			evt := logger.Info()
			if next == Open {
				BreakerOpenedTotal.WithLabelValues(name).Inc()
				evt = logger.Warn().Dur("open_for", cfg.OpenFor)
			}
			evt.Str("target", name).Str("from_state", prev.String()).Str("to_state", next.String()).Msg("breaker_transition")
		},
	})
	BreakerState.WithLabelValues(target).Set(float64(Closed))
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return stateOf(b.cb.State())
}

// Allow admits one call. The returned func must be called exactly once with
// the call's Result. A refused call returns ErrOpenCircuit.
func (b *Breaker) Allow() (func(Result), error) {
	done, err := b.cb.Allow()
	if err != nil {
		BreakerRejectedTotal.WithLabelValues(b.target).Inc()
		return nil, ErrOpenCircuit
	}
	return func(r Result) { done(r.err()) }, nil
}
