package pipeline

import (
	"errors"
	"time"

	"github.com/quillon/receipt-radar/internal/analysis"
)

// Decision is the retry policy's verdict on a failed remote call.
type Decision struct {
	// Retry says whether the call should be attempted again.
	Retry bool
	// After is how long to wait before the next attempt.
	After time.Duration
	// Reason classifies the give-up when Retry is false.
	Reason FailureKind
}

// Policy decides whether a failed remote call is retried and how long to
// back off first. It holds no state and performs no waiting itself, so
// decisions can be unit-tested without real timing.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Curve       BackoffCurve
}

// NewPolicy builds a Policy from the pipeline config.
func NewPolicy(cfg Config) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
		Curve:       cfg.BackoffCurve,
	}
}

// Decide takes the number of attempts made so far (including the one that
// just failed) and the error it produced.
func (p Policy) Decide(attempt int, err error) Decision {
	if !analysis.Retryable(err) {
		return Decision{Retry: false, Reason: classify(err)}
	}
	if attempt >= p.MaxAttempts {
		return Decision{Retry: false, Reason: FailureMaxAttempts}
	}
	return Decision{Retry: true, After: p.Backoff(attempt)}
}

// Backoff computes the delay before the retry following the given attempt.
// The delay never decreases with the attempt count and never exceeds
// BackoffMax.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch p.Curve {
	case BackoffLinear:
		delay = p.BackoffBase * time.Duration(attempt)
	default:
		delay = p.BackoffBase << (attempt - 1)
	}

	if delay > p.BackoffMax || delay <= 0 {
		delay = p.BackoffMax
	}
	return delay
}

// classify maps a client error to the failure kind reported in the outcome.
func classify(err error) FailureKind {
	var te *analysis.TransportError
	if errors.As(err, &te) {
		return FailureTransport
	}
	var pe *analysis.ParseError
	if errors.As(err, &pe) {
		return FailureParse
	}
	return FailureService
}
