package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	apiVersion = "2024-11-30"
	modelID    = "prebuilt-receipt"
	keyHeader  = "Ocp-Apim-Subscription-Key"
)

// DocIntel implements the Client interface against the Azure Document
// Intelligence REST API. Submit starts an asynchronous analyze operation;
// the returned Operation-Location URL is polled until the job finishes.
type DocIntel struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewDocIntel creates a new DocIntel client.
func NewDocIntel(endpoint, apiKey string) (*DocIntel, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("document intelligence endpoint is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("document intelligence api key is required")
	}

	return &DocIntel{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

// Submit sends the image to the prebuilt-receipt model and returns the
// operation handle from the Operation-Location response header.
func (d *DocIntel) Submit(ctx context.Context, image []byte) (JobHandle, error) {
	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		d.endpoint, modelID, apiVersion)

	body, err := json.Marshal(analyzeRequest{
		Base64Source: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("marshaling analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return JobHandle{}, fmt.Errorf("creating submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(keyHeader, d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return JobHandle{}, &TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return JobHandle{}, d.serviceError(resp)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return JobHandle{}, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    "response missing Operation-Location header",
		}
	}

	return JobHandle{OperationURL: opURL}, nil
}

type operationResponse struct {
	Status        string         `json:"status"`
	AnalyzeResult *AnalyzeResult `json:"analyzeResult"`
}

// PollStatus queries the state of a running analyze operation.
func (d *DocIntel) PollStatus(ctx context.Context, handle JobHandle) (JobStatus, error) {
	op, err := d.getOperation(ctx, "poll", handle)
	if err != nil {
		return "", err
	}

	switch op.Status {
	case "notStarted", "running":
		return StatusRunning, nil
	case "succeeded":
		return StatusSucceeded, nil
	case "failed":
		return StatusFailed, nil
	default:
		return "", &ServiceError{
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("unexpected operation status %q", op.Status),
		}
	}
}

// FetchResult retrieves the structured payload of a succeeded operation.
func (d *DocIntel) FetchResult(ctx context.Context, handle JobHandle) (*AnalyzeResult, error) {
	op, err := d.getOperation(ctx, "fetch", handle)
	if err != nil {
		return nil, err
	}

	if op.AnalyzeResult == nil {
		return nil, &ServiceError{
			StatusCode: http.StatusOK,
			Message:    "succeeded operation carries no analyzeResult",
		}
	}

	return op.AnalyzeResult, nil
}

// Close releases client resources (no-op for the HTTP client).
func (d *DocIntel) Close() error {
	return nil
}

func (d *DocIntel) getOperation(ctx context.Context, op string, handle JobHandle) (*operationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.OperationURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set(keyHeader, d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.serviceError(resp)
	}

	var body operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decoding operation response: %v", err),
		}
	}

	return &body, nil
}

// serviceError builds a ServiceError from a non-success response, pulling
// code and message out of the service's error body when it has one.
func (d *DocIntel) serviceError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Code != "" {
		return &ServiceError{
			StatusCode: resp.StatusCode,
			Code:       body.Error.Code,
			Message:    body.Error.Message,
		}
	}

	return &ServiceError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}
}
