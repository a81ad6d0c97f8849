package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillon/receipt-radar/internal/analysis"
)

var _ = ginkgo.Describe("Policy", func() {
	var policy Policy

	ginkgo.BeforeEach(func() {
		policy = Policy{
			MaxAttempts: 3,
			BackoffBase: 100 * time.Millisecond,
			BackoffMax:  time.Second,
			Curve:       BackoffExponential,
		}
	})

	ginkgo.Describe("Decide", func() {
		ginkgo.When("the error is a transport failure", func() {
			var err error

			ginkgo.BeforeEach(func() {
				err = &analysis.TransportError{Op: "submit", Err: errors.New("connection refused")}
			})

			ginkgo.It("retries while attempts remain", func() {
				decision := policy.Decide(1, err)

				Expect(decision.Retry).To(BeTrue())
				Expect(decision.After).To(Equal(100 * time.Millisecond))
			})

			ginkgo.It("gives up at the attempt ceiling, classified as exhaustion", func() {
				decision := policy.Decide(3, err)

				Expect(decision.Retry).To(BeFalse())
				Expect(decision.Reason).To(Equal(FailureMaxAttempts))
			})
		})

		ginkgo.When("the service answers 503", func() {
			ginkgo.It("retries", func() {
				err := &analysis.ServiceError{StatusCode: http.StatusServiceUnavailable}

				Expect(policy.Decide(1, err).Retry).To(BeTrue())
			})
		})

		ginkgo.When("the service answers 429", func() {
			ginkgo.It("retries", func() {
				err := &analysis.ServiceError{StatusCode: http.StatusTooManyRequests}

				Expect(policy.Decide(2, err).Retry).To(BeTrue())
			})
		})

		ginkgo.When("the service answers 401", func() {
			ginkgo.It("gives up immediately, classified as a service error", func() {
				err := &analysis.ServiceError{StatusCode: http.StatusUnauthorized}
				decision := policy.Decide(1, err)

				Expect(decision.Retry).To(BeFalse())
				Expect(decision.Reason).To(Equal(FailureService))
			})
		})

		ginkgo.When("the result payload is malformed", func() {
			ginkgo.It("gives up immediately, classified as a parse error", func() {
				err := &analysis.ParseError{Reason: "no documents"}
				decision := policy.Decide(1, err)

				Expect(decision.Retry).To(BeFalse())
				Expect(decision.Reason).To(Equal(FailureParse))
			})
		})

		ginkgo.When("the give-up error is wrapped", func() {
			ginkgo.It("still classifies by the underlying type", func() {
				inner := &analysis.TransportError{Op: "poll", Err: errors.New("timeout")}
				decision := policy.Decide(5, fmt.Errorf("last call: %w", inner))

				Expect(decision.Retry).To(BeFalse())
				Expect(decision.Reason).To(Equal(FailureMaxAttempts))
			})
		})
	})

	ginkgo.Describe("Backoff", func() {
		ginkgo.It("doubles per attempt on the exponential curve", func() {
			Expect(policy.Backoff(1)).To(Equal(100 * time.Millisecond))
			Expect(policy.Backoff(2)).To(Equal(200 * time.Millisecond))
			Expect(policy.Backoff(3)).To(Equal(400 * time.Millisecond))
		})

		ginkgo.It("grows by the base per attempt on the linear curve", func() {
			policy.Curve = BackoffLinear

			Expect(policy.Backoff(1)).To(Equal(100 * time.Millisecond))
			Expect(policy.Backoff(2)).To(Equal(200 * time.Millisecond))
			Expect(policy.Backoff(3)).To(Equal(300 * time.Millisecond))
		})

		ginkgo.It("never exceeds the cap", func() {
			for attempt := 1; attempt < 64; attempt++ {
				Expect(policy.Backoff(attempt)).To(BeNumerically("<=", policy.BackoffMax))
			}
		})

		ginkgo.It("never decreases as attempts grow", func() {
			for _, curve := range []BackoffCurve{BackoffLinear, BackoffExponential} {
				policy.Curve = curve
				prev := time.Duration(0)
				for attempt := 1; attempt < 64; attempt++ {
					delay := policy.Backoff(attempt)
					Expect(delay).To(BeNumerically(">=", prev))
					prev = delay
				}
			}
		})

		ginkgo.It("tolerates shift overflow by clamping to the cap", func() {
			Expect(policy.Backoff(62)).To(Equal(policy.BackoffMax))
		})
	})
})
