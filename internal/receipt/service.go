package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quillon/receipt-radar/internal/analysis"
	"github.com/quillon/receipt-radar/internal/imaging"
	"github.com/quillon/receipt-radar/internal/pipeline"
)

// Analyzer drives a batch of prepared images through the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, images []pipeline.Image) *pipeline.Report
}

// Upload is one file received from the UI layer.
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// IDGenerator generates unique IDs for receipts and batches
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.New().String()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles receipt operations
type Service struct {
	db          DB
	analyzer    Analyzer
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, analyzer Analyzer, storage Storage) *Service {
	return &Service{
		db:          db,
		analyzer:    analyzer,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, analyzer Analyzer, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		analyzer:    analyzer,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// ProcessBatch converts every upload to PNG, runs the whole set through the
// analysis pipeline, persists each successful receipt, and stores the batch
// report. The report has one result per upload, in upload order; a failed
// file never fails the batch.
func (s *Service) ProcessBatch(ctx context.Context, uploads []Upload) (*Batch, error) {
	now := s.timeSource.Now()
	batch := &Batch{
		ID:        s.idGenerator.Generate(),
		Results:   make([]BatchResult, len(uploads)),
		CreatedAt: now,
	}

	// Prepare uploads; files that cannot be converted fail locally without
	// ever reaching the remote service
	ids := make([]string, len(uploads))
	imageSource := make(map[string]int, len(uploads))
	images := make([]pipeline.Image, 0, len(uploads))
	for i, upload := range uploads {
		ids[i] = s.idGenerator.Generate()

		pngData, _, err := imaging.Prepare(upload.Data, upload.ContentType)
		if err != nil {
			slog.Error("Failed to prepare image",
				"filename", upload.Filename,
				"content_type", upload.ContentType,
				"file_size", len(upload.Data),
				"error", err,
			)
			batch.Results[i] = BatchResult{
				Filename: upload.Filename,
				Status:   StatusFailed,
				Error:    fmt.Sprintf("preparing image: %v", err),
			}
			continue
		}

		imageSource[ids[i]] = i
		images = append(images, pipeline.Image{ID: ids[i], Data: pngData})
	}

	report := s.analyzer.Analyze(ctx, images)

	for _, outcome := range report.Outcomes {
		i, ok := imageSource[outcome.ImageID]
		if !ok {
			continue
		}
		upload := uploads[i]

		if !outcome.Succeeded() {
			status := StatusFailed
			if outcome.Failure.Kind == pipeline.FailureCancelled {
				status = StatusCancelled
			}
			batch.Results[i] = BatchResult{
				Filename:    upload.Filename,
				Status:      status,
				FailureKind: string(outcome.Failure.Kind),
				Attempts:    outcome.Attempts,
				Error:       outcome.Failure.Error(),
			}
			continue
		}

		saved, err := s.saveReceipt(ids[i], batch.ID, upload, outcome.Record, now)
		if err != nil {
			slog.Error("Failed to save analyzed receipt", "filename", upload.Filename, "error", err)
			batch.Results[i] = BatchResult{
				Filename: upload.Filename,
				Status:   StatusFailed,
				Attempts: outcome.Attempts,
				Error:    err.Error(),
			}
			continue
		}

		batch.Results[i] = BatchResult{
			Filename:  upload.Filename,
			ReceiptID: saved.ID,
			Status:    StatusAnalyzed,
			Attempts:  outcome.Attempts,
		}
	}

	for _, result := range batch.Results {
		switch result.Status {
		case StatusAnalyzed:
			batch.Succeeded++
		case StatusCancelled:
			batch.Cancelled++
		default:
			batch.Failed++
		}
	}

	if err := s.db.SaveBatch(batch); err != nil {
		return nil, fmt.Errorf("saving batch report: %w", err)
	}

	return batch, nil
}

// saveReceipt stores the original upload and the extracted record.
func (s *Service) saveReceipt(id, batchID string, upload Upload, record *analysis.Receipt, now time.Time) (*Receipt, error) {
	savedPath, err := s.storage.Save(id, upload.Filename, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	date, err := time.Parse("2006-01-02", record.Date)
	if err != nil {
		date = now
	}

	items := make([]Item, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, Item{
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceCents: toCents(item.UnitPrice),
			TotalCents:     toCents(item.Total),
			Category:       Categorize(item.Description),
		})
	}

	receipt := &Receipt{
		ID:            id,
		Vendor:        record.Vendor,
		Date:          date,
		SubtotalCents: toCents(record.Subtotal),
		TaxCents:      toCents(record.Tax),
		TotalCents:    toCents(record.Total),
		Currency:      record.Currency,
		Items:         items,
		Filename:      savedPath,
		OriginalName:  upload.Filename,
		ContentType:   upload.ContentType,
		BatchID:       batchID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	return receipt, nil
}

// toCents converts a dollar amount to integer cents.
func toCents(v float64) int {
	return int(math.Round(v * 100))
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the original uploaded file for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// GetBatch retrieves a batch report by ID
func (s *Service) GetBatch(id string) (*Batch, error) {
	batch, err := s.db.GetBatch(id)
	if err != nil {
		return nil, fmt.Errorf("getting batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns all batch reports
func (s *Service) ListBatches() ([]*Batch, error) {
	batches, err := s.db.ListBatches()
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	return batches, nil
}

// BatchReceipts returns the stored receipts analyzed in a batch, in the
// batch's result order.
func (s *Service) BatchReceipts(batchID string) (*Batch, []*Receipt, error) {
	batch, err := s.db.GetBatch(batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting batch: %w", err)
	}

	receipts := make([]*Receipt, 0, batch.Succeeded)
	for _, result := range batch.Results {
		if result.ReceiptID == "" {
			continue
		}
		receipt, err := s.db.GetReceipt(result.ReceiptID)
		if err != nil {
			return nil, nil, fmt.Errorf("getting receipt %s: %w", result.ReceiptID, err)
		}
		receipts = append(receipts, receipt)
	}

	return batch, receipts, nil
}
