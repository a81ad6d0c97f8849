package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AnalyzeResult is the raw structured payload of a succeeded analyze
// operation, mirroring the Document Intelligence response shape.
type AnalyzeResult struct {
	ModelID   string     `json:"modelId,omitempty"`
	Content   string     `json:"content,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

// Document is one analyzed document within a result.
type Document struct {
	DocType string           `json:"docType,omitempty"`
	Fields  map[string]Field `json:"fields,omitempty"`
}

// Field is a typed value extracted by the service. Only the member
// matching Type is populated; Content carries the raw text either way.
type Field struct {
	Type          string           `json:"type,omitempty"`
	Content       string           `json:"content,omitempty"`
	ValueString   string           `json:"valueString,omitempty"`
	ValueNumber   *float64         `json:"valueNumber,omitempty"`
	ValueDate     string           `json:"valueDate,omitempty"`
	ValueCurrency *CurrencyValue   `json:"valueCurrency,omitempty"`
	ValueArray    []Field          `json:"valueArray,omitempty"`
	ValueObject   map[string]Field `json:"valueObject,omitempty"`
}

// CurrencyValue is a monetary amount with its currency code.
type CurrencyValue struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode,omitempty"`
	Symbol       string  `json:"currencySymbol,omitempty"`
}

// ParseReceipt maps a prebuilt-receipt analyze result into a Receipt.
// Fields the service did not recognize stay at their zero values.
func ParseReceipt(result *AnalyzeResult) (*Receipt, error) {
	if result == nil || len(result.Documents) == 0 {
		return nil, &ParseError{Reason: "no documents in analyze result"}
	}

	doc := result.Documents[0]
	if len(doc.Fields) == 0 {
		return nil, &ParseError{Reason: "document has no fields"}
	}

	receipt := &Receipt{}

	if f, ok := doc.Fields["MerchantName"]; ok {
		receipt.Vendor = fieldString(f)
	}
	if f, ok := doc.Fields["TransactionDate"]; ok {
		receipt.Date = normalizeDate(fieldString(f))
	}
	if f, ok := doc.Fields["Subtotal"]; ok {
		if v, ok := fieldAmount(f); ok {
			receipt.Subtotal = v
		}
	}
	if f, ok := doc.Fields["TotalTax"]; ok {
		if v, ok := fieldAmount(f); ok {
			receipt.Tax = v
		}
	}
	if f, ok := doc.Fields["Total"]; ok {
		if v, ok := fieldAmount(f); ok {
			receipt.Total = v
		}
		if f.ValueCurrency != nil {
			receipt.Currency = f.ValueCurrency.CurrencyCode
		}
	}
	if f, ok := doc.Fields["Items"]; ok {
		receipt.Items = parseItems(f)
	}

	return receipt, nil
}

func parseItems(field Field) []LineItem {
	var items []LineItem
	for _, entry := range field.ValueArray {
		obj := entry.ValueObject
		if obj == nil {
			continue
		}

		item := LineItem{Quantity: 1}
		if f, ok := obj["Description"]; ok {
			item.Description = fieldString(f)
		}
		if f, ok := obj["Quantity"]; ok {
			if v, ok := fieldAmount(f); ok && v > 0 {
				item.Quantity = v
			}
		}
		if f, ok := obj["Price"]; ok {
			if v, ok := fieldAmount(f); ok {
				item.UnitPrice = v
			}
		}
		if f, ok := obj["TotalPrice"]; ok {
			if v, ok := fieldAmount(f); ok {
				item.Total = v
			}
		}

		// The service often returns only one of unit price and line
		// total; infer the other from the quantity.
		if item.Total != 0 && item.UnitPrice == 0 && item.Quantity > 0 {
			item.UnitPrice = round2(item.Total / item.Quantity)
		} else if item.UnitPrice != 0 && item.Total == 0 {
			item.Total = round2(item.UnitPrice * item.Quantity)
		}

		// Items without a description are usually OCR noise
		if item.Description != "" {
			items = append(items, item)
		}
	}
	return items
}

// fieldString prefers the typed string value, falling back to raw content.
func fieldString(f Field) string {
	switch {
	case f.ValueString != "":
		return strings.TrimSpace(f.ValueString)
	case f.ValueDate != "":
		return f.ValueDate
	default:
		return strings.TrimSpace(f.Content)
	}
}

// fieldAmount extracts a monetary or numeric value from a field.
func fieldAmount(f Field) (float64, bool) {
	if f.ValueCurrency != nil {
		return f.ValueCurrency.Amount, true
	}
	if f.ValueNumber != nil {
		return *f.ValueNumber, true
	}
	return cleanCurrency(f.Content)
}

var currencyNoise = regexp.MustCompile(`[$,\sA-Za-z]`)

// cleanCurrency strips symbols, commas, and trailing tax-flag letters from
// printed amounts like "$1,234.56 H" before parsing.
func cleanCurrency(value string) (float64, bool) {
	cleaned := currencyNoise.ReplaceAllString(value, "")
	if cleaned == "" {
		return 0, false
	}
	if strings.Count(cleaned, "-") > 1 ||
		(strings.Contains(cleaned, "-") && !strings.HasPrefix(cleaned, "-")) {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// normalizeDate converts common receipt date formats to ISO 8601. Dates
// that match no known format are passed through as-is.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, value); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return value
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
