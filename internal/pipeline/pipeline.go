// Package pipeline drives batches of receipt images through the remote
// analysis service with bounded concurrency, retries around transient
// failures, and per-image failure isolation.
package pipeline

import (
	"time"

	"github.com/quillon/receipt-radar/internal/analysis"
)

// Image is one receipt image queued for analysis. Data must already be
// PNG-encoded; the pipeline never converts.
type Image struct {
	ID   string
	Data []byte
}

// FailureKind classifies why an image reached a terminal failure.
type FailureKind string

const (
	FailureTransport   FailureKind = "transport_error"
	FailureService     FailureKind = "service_error"
	FailurePollTimeout FailureKind = "poll_timeout"
	FailureMaxAttempts FailureKind = "max_attempts_exceeded"
	FailureParse       FailureKind = "parse_error"
	FailureCancelled   FailureKind = "cancelled"
)

// Outcome is the terminal result for one image: either a parsed Record or
// a classified Failure, never both.
type Outcome struct {
	ImageID  string            `json:"image_id"`
	Record   *analysis.Receipt `json:"record,omitempty"`
	Failure  *Failure          `json:"failure,omitempty"`
	Attempts int               `json:"attempts"`
}

// Succeeded reports whether the image produced a Record.
func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Failure describes a terminal failure for one image.
type Failure struct {
	Kind FailureKind `json:"kind"`
	Err  error       `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return string(f.Kind) + ": " + f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Report is the aggregate result of one pipeline run. Outcomes is in input
// order and always has one entry per submitted image.
type Report struct {
	Outcomes  []Outcome `json:"outcomes"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Cancelled int       `json:"cancelled"`
}

// BackoffCurve selects how the retry delay grows with the attempt count.
type BackoffCurve string

const (
	BackoffLinear      BackoffCurve = "linear"
	BackoffExponential BackoffCurve = "exponential"
)

// Config carries the pipeline tunables. It is read once at construction
// and never mutated during a run.
type Config struct {
	// MaxWorkers bounds how many images are in flight at once.
	MaxWorkers int
	// MaxAttempts bounds retries of a single remote call.
	MaxAttempts int
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay regardless of curve.
	BackoffMax time.Duration
	// BackoffCurve picks linear or exponential growth.
	BackoffCurve BackoffCurve
	// PollInterval is the fixed wait between status checks of a running job.
	PollInterval time.Duration
	// MaxPollWait bounds how long one job may stay in the running state.
	MaxPollWait time.Duration
}

// DefaultConfig returns conservative defaults sized for the document
// service's free-tier rate limits.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:   3,
		MaxAttempts:  3,
		BackoffBase:  time.Second,
		BackoffMax:   10 * time.Second,
		BackoffCurve: BackoffExponential,
		PollInterval: 1500 * time.Millisecond,
		MaxPollWait:  60 * time.Second,
	}
}
