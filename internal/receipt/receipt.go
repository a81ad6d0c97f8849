package receipt

import "time"

// Receipt is a stored, successfully analyzed receipt.
type Receipt struct {
	ID            string    `json:"id"`
	Vendor        string    `json:"vendor"`
	Date          time.Time `json:"date"`
	SubtotalCents int       `json:"subtotal_cents"`
	TaxCents      int       `json:"tax_cents"`
	TotalCents    int       `json:"total_cents"` // Amount in cents
	Currency      string    `json:"currency,omitempty"`
	Items         []Item    `json:"items"`
	Filename      string    `json:"filename"`
	OriginalName  string    `json:"original_name"`
	ContentType   string    `json:"content_type"`
	BatchID       string    `json:"batch_id,omitempty"` // ID of the batch this receipt was analyzed in
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is one line item on a stored receipt.
type Item struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int     `json:"unit_price_cents"`
	TotalCents     int     `json:"total_cents"`
	Category       string  `json:"category"`
}

// Batch records the outcome of one analysis run over a set of uploads.
type Batch struct {
	ID        string        `json:"id"`
	Results   []BatchResult `json:"results"` // one per uploaded file, upload order
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	CreatedAt time.Time     `json:"created_at"`
}

// Batch result statuses.
const (
	StatusAnalyzed  = "analyzed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// BatchResult is the terminal outcome for one uploaded file.
type BatchResult struct {
	Filename    string `json:"filename"`
	ReceiptID   string `json:"receipt_id,omitempty"` // set when Status is analyzed
	Status      string `json:"status"`
	FailureKind string `json:"failure_kind,omitempty"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
}
