package analysis

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini job table", func() {
	var (
		g   *Gemini
		ctx context.Context
	)

	BeforeEach(func() {
		g = &Gemini{jobs: make(map[string]*geminiJob)}
		ctx = context.Background()
	})

	Describe("Submit", func() {
		It("refuses work on a cancelled context without registering a job", func() {
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := g.Submit(cancelled, []byte("png"))

			Expect(err).To(MatchError(context.Canceled))
			Expect(g.jobs).To(BeEmpty())
		})
	})

	Describe("PollStatus", func() {
		It("reports a running job and keeps it", func() {
			g.jobs["job-1"] = &geminiJob{status: StatusRunning}

			status, err := g.PollStatus(ctx, JobHandle{OperationURL: "job-1"})

			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(StatusRunning))
			Expect(g.jobs).To(HaveKey("job-1"))
		})

		It("removes a failed job once its failure is observed", func() {
			g.jobs["job-1"] = &geminiJob{
				status: StatusFailed,
				err:    errors.New("generation failed"),
				done:   time.Now(),
			}

			status, err := g.PollStatus(ctx, JobHandle{OperationURL: "job-1"})

			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(StatusFailed))
			Expect(g.jobs).To(BeEmpty())
		})

		It("errors for an unknown job", func() {
			_, err := g.PollStatus(ctx, JobHandle{OperationURL: "nope"})

			var serviceErr *ServiceError
			Expect(errors.As(err, &serviceErr)).To(BeTrue())
		})
	})

	Describe("FetchResult", func() {
		It("returns the payload of a succeeded job and removes it", func() {
			g.jobs["job-1"] = &geminiJob{
				status: StatusSucceeded,
				result: &AnalyzeResult{ModelID: "gemini"},
				done:   time.Now(),
			}

			result, err := g.FetchResult(ctx, JobHandle{OperationURL: "job-1"})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.ModelID).To(Equal("gemini"))
			Expect(g.jobs).To(BeEmpty())
		})

		It("refuses a job that is still running and keeps it", func() {
			g.jobs["job-1"] = &geminiJob{status: StatusRunning}

			_, err := g.FetchResult(ctx, JobHandle{OperationURL: "job-1"})

			var serviceErr *ServiceError
			Expect(errors.As(err, &serviceErr)).To(BeTrue())
			Expect(g.jobs).To(HaveKey("job-1"))
		})
	})

	Describe("reap", func() {
		It("drops finished jobs nobody collected within the TTL", func() {
			now := time.Now()
			g.jobs["stale"] = &geminiJob{
				status: StatusSucceeded,
				result: &AnalyzeResult{},
				done:   now.Add(-geminiJobTTL - time.Minute),
			}
			g.jobs["fresh"] = &geminiJob{status: StatusSucceeded, done: now.Add(-time.Second)}
			g.jobs["running"] = &geminiJob{status: StatusRunning}

			g.reap(now)

			Expect(g.jobs).NotTo(HaveKey("stale"))
			Expect(g.jobs).To(HaveKey("fresh"))
			Expect(g.jobs).To(HaveKey("running"))
		})
	})
})

var _ = Describe("geminiResult", func() {
	const answer = `{
		"vendor": "Corner Store",
		"date": "2024-03-20",
		"items": [{"description": "Milk", "quantity": 2, "unit_price": 3.49, "total": 6.98}],
		"subtotal": 6.98,
		"tax": 0.56,
		"total": 7.54,
		"currency": "USD"
	}`

	It("maps a clean JSON answer onto the document field shape", func() {
		result, err := geminiResult(answer)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Documents).To(HaveLen(1))

		fields := result.Documents[0].Fields
		Expect(fields["MerchantName"].ValueString).To(Equal("Corner Store"))
		Expect(fields["TransactionDate"].ValueDate).To(Equal("2024-03-20"))
		Expect(fields["Total"].ValueCurrency.Amount).To(Equal(7.54))
		Expect(fields["Total"].ValueCurrency.CurrencyCode).To(Equal("USD"))
		Expect(fields["Items"].ValueArray).To(HaveLen(1))
	})

	It("feeds cleanly into the shared receipt parser", func() {
		result, err := geminiResult(answer)
		Expect(err).NotTo(HaveOccurred())

		receipt, err := ParseReceipt(result)
		Expect(err).NotTo(HaveOccurred())
		Expect(receipt.Vendor).To(Equal("Corner Store"))
		Expect(receipt.Total).To(Equal(7.54))
		Expect(receipt.Items).To(HaveLen(1))
		Expect(receipt.Items[0].Quantity).To(Equal(2.0))
	})

	It("strips markdown code fences", func() {
		result, err := geminiResult("```json\n" + answer + "\n```")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Documents[0].Fields["MerchantName"].ValueString).To(Equal("Corner Store"))
	})

	It("digs the JSON object out of surrounding prose", func() {
		result, err := geminiResult("Here is the extracted receipt:\n" + answer + "\nLet me know if you need more.")

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Documents[0].Fields["MerchantName"].ValueString).To(Equal("Corner Store"))
	})

	It("rejects an answer with no JSON object", func() {
		_, err := geminiResult("I could not read this receipt.")

		var serviceErr *ServiceError
		Expect(err).To(BeAssignableToTypeOf(serviceErr))
	})

	It("rejects malformed JSON", func() {
		_, err := geminiResult(`{"vendor": }`)

		Expect(err).To(HaveOccurred())
	})
})
