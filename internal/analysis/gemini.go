package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// geminiPrompt asks the model for the same field set the document service
// extracts, as bare JSON.
const geminiPrompt = `You are analyzing a receipt image. Carefully read all text and extract:

1. **Vendor**: the merchant or store name, usually the largest text at the top.
2. **Date**: the transaction date, converted to ISO 8601 format (YYYY-MM-DD).
3. **Line items**: every purchased item with its description, quantity, unit price, and line total.
4. **Subtotal, tax, and total**: the amounts printed near the bottom, plus the currency code if visible.

Return ONLY valid JSON in this exact format:
{
  "vendor": "Store Name",
  "date": "YYYY-MM-DD",
  "items": [{"description": "", "quantity": 1, "unit_price": 0.00, "total": 0.00}],
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "currency": "USD"
}

Important:
- Amounts must be numbers (not strings), representing dollars and cents
- Omit fields you cannot find rather than guessing
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// Gemini implements the Client interface using Google Gemini vision.
// Gemini answers synchronously, so Submit runs the generation in a
// goroutine and tracks it in an in-process job table; PollStatus and
// FetchResult observe that table through the same contract the document
// service exposes.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel

	mu   sync.Mutex
	jobs map[string]*geminiJob
}

type geminiJob struct {
	status JobStatus
	result *AnalyzeResult
	err    error
	done   time.Time
}

// geminiJobTTL bounds how long a finished job that nobody collected stays
// in the table. The pipeline abandons jobs on poll timeout or cancellation,
// so finished-but-unfetched entries must not accumulate forever.
const geminiJobTTL = 5 * time.Minute

// NewGemini creates a new Gemini-backed Client.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
		jobs:   make(map[string]*geminiJob),
	}, nil
}

// Submit starts a generation for the image and returns a handle to its job.
func (g *Gemini) Submit(ctx context.Context, image []byte) (JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return JobHandle{}, err
	}

	id := uuid.New().String()

	g.reap(time.Now())
	g.mu.Lock()
	g.jobs[id] = &geminiJob{status: StatusRunning}
	g.mu.Unlock()

	go g.run(id, image)

	return JobHandle{OperationURL: id}, nil
}

func (g *Gemini) run(id string, image []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := g.generate(ctx, image)

	g.mu.Lock()
	defer g.mu.Unlock()
	job := g.jobs[id]
	if job == nil {
		return
	}
	job.done = time.Now()
	if err != nil {
		job.status = StatusFailed
		job.err = err
		return
	}
	job.status = StatusSucceeded
	job.result = result
}

// PollStatus reports the state of an in-process generation job. A failed
// job is removed from the table on observation: the caller gives up on it,
// and nothing fetches a failed result.
func (g *Gemini) PollStatus(ctx context.Context, handle JobHandle) (JobStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	job, ok := g.jobs[handle.OperationURL]
	if !ok {
		return "", &ServiceError{StatusCode: http.StatusNotFound, Message: "unknown job"}
	}
	if job.status == StatusFailed {
		delete(g.jobs, handle.OperationURL)
	}
	return job.status, nil
}

// reap drops finished jobs nobody collected within the TTL. Running jobs
// are never touched.
func (g *Gemini) reap(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, job := range g.jobs {
		if job.status == StatusRunning || job.done.IsZero() {
			continue
		}
		if now.Sub(job.done) > geminiJobTTL {
			delete(g.jobs, id)
		}
	}
}

// FetchResult returns the payload of a succeeded generation job and
// removes it from the job table.
func (g *Gemini) FetchResult(ctx context.Context, handle JobHandle) (*AnalyzeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	job, ok := g.jobs[handle.OperationURL]
	if !ok {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "unknown job"}
	}
	if job.status != StatusSucceeded {
		return nil, &ServiceError{
			StatusCode: http.StatusConflict,
			Message:    fmt.Sprintf("job is %s, not succeeded", job.status),
		}
	}

	delete(g.jobs, handle.OperationURL)
	return job.result, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) generate(ctx context.Context, image []byte) (*AnalyzeResult, error) {
	parts := []genai.Part{
		genai.ImageData("png", image),
		genai.Text(geminiPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &TransportError{Op: "generate", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusOK, Message: "no response from gemini"}
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return geminiResult(text.String())
}

type geminiPayload struct {
	Vendor   string  `json:"vendor"`
	Date     string  `json:"date"`
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	Items    []struct {
		Description string  `json:"description"`
		Quantity    float64 `json:"quantity"`
		UnitPrice   float64 `json:"unit_price"`
		Total       float64 `json:"total"`
	} `json:"items"`
}

// geminiResult converts the model's JSON answer into the same AnalyzeResult
// shape the document service returns, so everything downstream of
// FetchResult takes a single path.
func geminiResult(text string) (*AnalyzeResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models occasionally wrap the JSON in prose despite the prompt
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, &ServiceError{StatusCode: http.StatusOK, Message: "no JSON object in gemini response"}
	}
	text = text[start : end+1]

	var payload geminiPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusOK, Message: fmt.Sprintf("unmarshaling gemini response: %v", err)}
	}

	fields := map[string]Field{
		"MerchantName":    {Type: "string", ValueString: payload.Vendor},
		"TransactionDate": {Type: "date", ValueDate: payload.Date},
		"Subtotal":        {Type: "currency", ValueCurrency: &CurrencyValue{Amount: payload.Subtotal, CurrencyCode: payload.Currency}},
		"TotalTax":        {Type: "currency", ValueCurrency: &CurrencyValue{Amount: payload.Tax, CurrencyCode: payload.Currency}},
		"Total":           {Type: "currency", ValueCurrency: &CurrencyValue{Amount: payload.Total, CurrencyCode: payload.Currency}},
	}

	var itemFields []Field
	for _, item := range payload.Items {
		quantity := item.Quantity
		itemFields = append(itemFields, Field{
			Type: "object",
			ValueObject: map[string]Field{
				"Description": {Type: "string", ValueString: item.Description},
				"Quantity":    {Type: "number", ValueNumber: &quantity},
				"Price":       {Type: "currency", ValueCurrency: &CurrencyValue{Amount: item.UnitPrice}},
				"TotalPrice":  {Type: "currency", ValueCurrency: &CurrencyValue{Amount: item.Total}},
			},
		})
	}
	if itemFields != nil {
		fields["Items"] = Field{Type: "array", ValueArray: itemFields}
	}

	return &AnalyzeResult{
		ModelID: "gemini",
		Documents: []Document{
			{DocType: "receipt", Fields: fields},
		},
	}, nil
}
