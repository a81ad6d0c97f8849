package analysis_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quillon/receipt-radar/internal/analysis"
)

func floatPtr(v float64) *float64 { return &v }

var _ = Describe("ParseReceipt", func() {
	When("the result carries a fully populated document", func() {
		var result *analysis.AnalyzeResult

		BeforeEach(func() {
			result = &analysis.AnalyzeResult{
				Documents: []analysis.Document{
					{
						DocType: "receipt.retailMeal",
						Fields: map[string]analysis.Field{
							"MerchantName":    {Type: "string", ValueString: "  Whole Foods Market "},
							"TransactionDate": {Type: "date", ValueDate: "2024-03-20"},
							"Subtotal":        {Type: "currency", ValueCurrency: &analysis.CurrencyValue{Amount: 42.50, CurrencyCode: "USD"}},
							"TotalTax":        {Type: "currency", ValueCurrency: &analysis.CurrencyValue{Amount: 3.40, CurrencyCode: "USD"}},
							"Total":           {Type: "currency", ValueCurrency: &analysis.CurrencyValue{Amount: 45.90, CurrencyCode: "USD"}},
							"Items": {
								Type: "array",
								ValueArray: []analysis.Field{
									{
										Type: "object",
										ValueObject: map[string]analysis.Field{
											"Description": {Type: "string", ValueString: "Organic Bananas"},
											"Quantity":    {Type: "number", ValueNumber: floatPtr(3)},
											"TotalPrice":  {Type: "currency", ValueCurrency: &analysis.CurrencyValue{Amount: 4.47}},
										},
									},
									{
										Type: "object",
										ValueObject: map[string]analysis.Field{
											"Description": {Type: "string", ValueString: "Olive Oil"},
											"Price":       {Type: "currency", ValueCurrency: &analysis.CurrencyValue{Amount: 12.99}},
										},
									},
								},
							},
						},
					},
				},
			}
		})

		It("maps the merchant fields", func() {
			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Vendor).To(Equal("Whole Foods Market"))
			Expect(receipt.Date).To(Equal("2024-03-20"))
			Expect(receipt.Subtotal).To(Equal(42.50))
			Expect(receipt.Tax).To(Equal(3.40))
			Expect(receipt.Total).To(Equal(45.90))
			Expect(receipt.Currency).To(Equal("USD"))
		})

		It("infers the unit price from the line total and quantity", func() {
			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Items).To(HaveLen(2))
			Expect(receipt.Items[0].Description).To(Equal("Organic Bananas"))
			Expect(receipt.Items[0].Quantity).To(Equal(3.0))
			Expect(receipt.Items[0].Total).To(Equal(4.47))
			Expect(receipt.Items[0].UnitPrice).To(Equal(1.49))
		})

		It("infers the line total from the unit price", func() {
			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Items[1].Quantity).To(Equal(1.0))
			Expect(receipt.Items[1].UnitPrice).To(Equal(12.99))
			Expect(receipt.Items[1].Total).To(Equal(12.99))
		})
	})

	When("amounts only appear as printed text", func() {
		It("cleans symbols, separators, and tax flags before parsing", func() {
			result := &analysis.AnalyzeResult{
				Documents: []analysis.Document{
					{
						Fields: map[string]analysis.Field{
							"Total": {Type: "currency", Content: "$1,234.56 H"},
						},
					},
				},
			}

			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Total).To(Equal(1234.56))
		})
	})

	When("the date uses a regional format", func() {
		It("normalizes it to ISO 8601", func() {
			result := &analysis.AnalyzeResult{
				Documents: []analysis.Document{
					{
						Fields: map[string]analysis.Field{
							"TransactionDate": {Type: "string", ValueString: "03/20/2024"},
						},
					},
				},
			}

			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Date).To(Equal("2024-03-20"))
		})
	})

	When("the date matches no known format", func() {
		It("passes it through unchanged", func() {
			result := &analysis.AnalyzeResult{
				Documents: []analysis.Document{
					{
						Fields: map[string]analysis.Field{
							"TransactionDate": {Type: "string", ValueString: "Mar 20th"},
						},
					},
				},
			}

			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Date).To(Equal("Mar 20th"))
		})
	})

	When("an item has no description", func() {
		It("is dropped as OCR noise", func() {
			result := &analysis.AnalyzeResult{
				Documents: []analysis.Document{
					{
						Fields: map[string]analysis.Field{
							"Items": {
								Type: "array",
								ValueArray: []analysis.Field{
									{
										Type: "object",
										ValueObject: map[string]analysis.Field{
											"TotalPrice": {Type: "currency", ValueCurrency: &analysis.CurrencyValue{Amount: 2.00}},
										},
									},
								},
							},
						},
					},
				},
			}

			receipt, err := analysis.ParseReceipt(result)

			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Items).To(BeEmpty())
		})
	})

	When("the result has no documents", func() {
		It("returns a parse error", func() {
			_, err := analysis.ParseReceipt(&analysis.AnalyzeResult{})

			var parseErr *analysis.ParseError
			Expect(err).To(BeAssignableToTypeOf(parseErr))
			Expect(analysis.Retryable(err)).To(BeFalse())
		})
	})

	When("the result is nil", func() {
		It("returns a parse error", func() {
			_, err := analysis.ParseReceipt(nil)

			Expect(err).To(HaveOccurred())
		})
	})

	When("the document has no fields", func() {
		It("returns a parse error", func() {
			result := &analysis.AnalyzeResult{Documents: []analysis.Document{{DocType: "receipt"}}}

			_, err := analysis.ParseReceipt(result)

			Expect(err).To(HaveOccurred())
		})
	})
})
