package analysis

import "context"

// JobStatus is the remote state of one analysis job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// JobHandle identifies a submitted analysis job on the remote service.
type JobHandle struct {
	// OperationURL is the absolute URL to poll for job status and results.
	OperationURL string `json:"operation_url"`
}

// Client drives one receipt image through the remote document analysis
// service: submit the image, poll the resulting job, fetch the payload.
type Client interface {
	// Submit sends PNG image bytes to the service and returns a handle
	// for the analysis job it started.
	Submit(ctx context.Context, image []byte) (JobHandle, error)

	// PollStatus reports the current state of a job.
	PollStatus(ctx context.Context, handle JobHandle) (JobStatus, error)

	// FetchResult retrieves the structured payload of a succeeded job.
	FetchResult(ctx context.Context, handle JobHandle) (*AnalyzeResult, error)

	// Close releases client resources.
	Close() error
}

// Receipt is the structured data extracted from one receipt image.
// OCR confidence varies, so every field may be empty or zero.
type Receipt struct {
	Vendor   string     `json:"vendor"`
	Date     string     `json:"date"` // ISO 8601 (YYYY-MM-DD) when parseable
	Items    []LineItem `json:"items"`
	Subtotal float64    `json:"subtotal"`
	Tax      float64    `json:"tax"`
	Total    float64    `json:"total"`
	Currency string     `json:"currency,omitempty"`
}

// LineItem is one purchased item on a receipt.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}
