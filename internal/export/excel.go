// Package export renders batch analysis results as XLSX workbooks.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/quillon/receipt-radar/internal/receipt"
)

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
)

// BatchXLSX returns an XLSX workbook for one batch: a summary sheet with
// one row per uploaded file and an items sheet with every extracted line
// item and its budget category.
func BatchXLSX(batch *receipt.Batch, receipts []*receipt.Receipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("renaming summary sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("creating items sheet: %w", err)
	}

	byID := make(map[string]*receipt.Receipt, len(receipts))
	for _, r := range receipts {
		byID[r.ID] = r
	}

	if err := writeSummary(f, batch, byID); err != nil {
		return nil, err
	}
	if err := writeItems(f, batch, byID); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, batch *receipt.Batch, byID map[string]*receipt.Receipt) error {
	headers := []string{
		"File", "Status", "Vendor", "Date", "Subtotal", "Tax", "Total",
		"Currency", "Attempts", "Error",
	}
	if err := writeHeaders(f, summarySheet, headers); err != nil {
		return err
	}

	row := 2
	for _, result := range batch.Results {
		write := cellWriter(f, summarySheet, row)

		write(1, result.Filename)
		write(2, result.Status)
		if r, ok := byID[result.ReceiptID]; ok {
			write(3, r.Vendor)
			write(4, r.Date.Format("2006-01-02"))
			write(5, dollars(r.SubtotalCents))
			write(6, dollars(r.TaxCents))
			write(7, dollars(r.TotalCents))
			write(8, r.Currency)
		}
		write(9, result.Attempts)
		write(10, result.Error)

		row++
	}

	// Widen the text-heavy columns
	f.SetColWidth(summarySheet, "A", "A", 36)
	f.SetColWidth(summarySheet, "C", "C", 28)
	f.SetColWidth(summarySheet, "D", "D", 14)
	f.SetColWidth(summarySheet, "J", "J", 48)
	return nil
}

func writeItems(f *excelize.File, batch *receipt.Batch, byID map[string]*receipt.Receipt) error {
	headers := []string{
		"Vendor", "Date", "Description", "Category", "Quantity",
		"Unit Price", "Line Total",
	}
	if err := writeHeaders(f, itemsSheet, headers); err != nil {
		return err
	}

	row := 2
	for _, result := range batch.Results {
		r, ok := byID[result.ReceiptID]
		if !ok {
			continue
		}
		for _, item := range r.Items {
			write := cellWriter(f, itemsSheet, row)

			write(1, r.Vendor)
			write(2, r.Date.Format("2006-01-02"))
			write(3, item.Description)
			write(4, item.Category)
			write(5, item.Quantity)
			write(6, dollars(item.UnitPriceCents))
			write(7, dollars(item.TotalCents))

			row++
		}
	}

	f.SetColWidth(itemsSheet, "A", "A", 28)
	f.SetColWidth(itemsSheet, "C", "C", 48)
	f.SetColWidth(itemsSheet, "D", "D", 18)
	return nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("writing header %q: %w", header, err)
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("styling headers: %w", err)
	}
	return nil
}

func cellWriter(f *excelize.File, sheet string, row int) func(col int, v any) {
	return func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		f.SetCellValue(sheet, cell, v)
	}
}

func dollars(cents int) float64 {
	return float64(cents) / 100
}
