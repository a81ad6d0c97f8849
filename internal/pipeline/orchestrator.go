package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/quillon/receipt-radar/internal/analysis"
)

// Orchestrator fans a batch of images out to a bounded worker pool and
// collects one terminal Outcome per image, in input order.
type Orchestrator struct {
	client analysis.Client
	policy Policy
	cfg    Config
}

// NewOrchestrator creates an Orchestrator. Zero config values fall back to
// the defaults.
func NewOrchestrator(client analysis.Client, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.BackoffCurve == "" {
		cfg.BackoffCurve = def.BackoffCurve
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPollWait <= 0 {
		cfg.MaxPollWait = def.MaxPollWait
	}

	return &Orchestrator{
		client: client,
		policy: NewPolicy(cfg),
		cfg:    cfg,
	}
}

// Analyze runs every image to a terminal outcome and returns the aggregate
// report. A failed image never aborts its siblings; cancelling ctx stops
// in-flight work at its next wait and marks unfinished images Cancelled.
// The report is complete: one outcome per input image, input order.
func (o *Orchestrator) Analyze(ctx context.Context, images []Image) *Report {
	report := &Report{Outcomes: make([]Outcome, len(images))}
	if len(images) == 0 {
		return report
	}

	sem := make(chan struct{}, o.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img Image) {
			defer wg.Done()

			// Admission gate: at most MaxWorkers images in flight
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				report.Outcomes[i] = cancelledOutcome(img, 0)
				return
			}
			defer func() { <-sem }()

			report.Outcomes[i] = o.analyzeOne(ctx, img)
		}(i, img)
	}
	wg.Wait()

	for _, outcome := range report.Outcomes {
		switch {
		case outcome.Succeeded():
			report.Succeeded++
		case outcome.Failure.Kind == FailureCancelled:
			report.Cancelled++
		default:
			report.Failed++
		}
	}

	slog.Info("Analysis run complete",
		"images", len(images),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
	)
	return report
}

// analyzeOne drives a single image to a terminal outcome: submit with
// retries, poll until done or timeout, fetch and parse the result.
func (o *Orchestrator) analyzeOne(ctx context.Context, img Image) Outcome {
	var handle analysis.JobHandle
	submitAttempts, err := o.withRetry(ctx, func() error {
		h, err := o.client.Submit(ctx, img.Data)
		if err == nil {
			handle = h
		}
		return err
	})
	if err != nil {
		slog.Warn("Receipt submission failed", "image", img.ID, "attempts", submitAttempts, "error", err)
		return failedOutcome(img, submitAttempts, err)
	}

	// Fixed-interval polling with its own wait budget. The retry policy
	// wraps each individual poll call, not the loop.
	deadline := time.Now().Add(o.cfg.MaxPollWait)
	for {
		var status analysis.JobStatus
		pollAttempts, err := o.withRetry(ctx, func() error {
			s, err := o.client.PollStatus(ctx, handle)
			if err == nil {
				status = s
			}
			return err
		})
		if err != nil {
			slog.Warn("Polling failed", "image", img.ID, "attempts", pollAttempts, "error", err)
			return failedOutcome(img, pollAttempts, err)
		}

		if status == analysis.StatusSucceeded {
			break
		}
		if status == analysis.StatusFailed {
			return failedOutcome(img, submitAttempts, &Failure{
				Kind: FailureService,
				Err:  errors.New("remote analysis reported failure"),
			})
		}

		if time.Now().After(deadline) {
			slog.Warn("Job never finished within poll budget", "image", img.ID, "budget", o.cfg.MaxPollWait)
			return failedOutcome(img, submitAttempts, &Failure{
				Kind: FailurePollTimeout,
				Err:  errors.New("job did not finish within max poll wait"),
			})
		}
		if !sleep(ctx, o.cfg.PollInterval) {
			return cancelledOutcome(img, submitAttempts)
		}
	}

	var result *analysis.AnalyzeResult
	fetchAttempts, err := o.withRetry(ctx, func() error {
		r, err := o.client.FetchResult(ctx, handle)
		if err == nil {
			result = r
		}
		return err
	})
	if err != nil {
		slog.Warn("Fetching result failed", "image", img.ID, "attempts", fetchAttempts, "error", err)
		return failedOutcome(img, fetchAttempts, err)
	}

	record, err := analysis.ParseReceipt(result)
	if err != nil {
		return failedOutcome(img, submitAttempts, &Failure{Kind: FailureParse, Err: err})
	}

	return Outcome{ImageID: img.ID, Record: record, Attempts: submitAttempts}
}

// withRetry runs one remote call under the retry policy, sleeping out the
// computed backoff between attempts. It returns the number of attempts made
// and, on give-up, a *Failure carrying the policy's reason.
func (o *Orchestrator) withRetry(ctx context.Context, call func() error) (int, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts++
		err := call()
		if err == nil {
			return attempts, nil
		}
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}

		decision := o.policy.Decide(attempts, err)
		if !decision.Retry {
			return attempts, &Failure{Kind: decision.Reason, Err: err}
		}

		slog.Debug("Remote call failed, retrying",
			"attempt", attempts,
			"max_attempts", o.policy.MaxAttempts,
			"delay", decision.After,
			"error", err,
		)
		if !sleep(ctx, decision.After) {
			return attempts, ctx.Err()
		}
	}
}

func failedOutcome(img Image, attempts int, err error) Outcome {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelledOutcome(img, attempts)
	}

	var failure *Failure
	if !errors.As(err, &failure) {
		failure = &Failure{Kind: FailureService, Err: err}
	}
	return Outcome{ImageID: img.ID, Failure: failure, Attempts: attempts}
}

func cancelledOutcome(img Image, attempts int) Outcome {
	return Outcome{
		ImageID:  img.ID,
		Failure:  &Failure{Kind: FailureCancelled, Err: context.Canceled},
		Attempts: attempts,
	}
}

// sleep waits for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
