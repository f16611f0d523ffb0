package intake

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tokokita/stock-intake/internal/extraction"
)

var _ = Describe("NormalizeItems", func() {
	var (
		raw   []extraction.RawLineItem
		items []Item
	)

	JustBeforeEach(func() {
		items = NormalizeItems(raw)
	})

	When("normalizing a clean Indonesian receipt line", func() {
		BeforeEach(func() {
			raw = []extraction.RawLineItem{
				{Name: "Beras 5kg", Quantity: "2", UnitPrice: "65.000"},
			}
		})

		It("should parse the quantity", func() {
			Expect(items[0].Quantity).To(Equal(2.0))
		})

		It("should read the point as a thousands separator", func() {
			Expect(items[0].UnitPrice).To(Equal(65000.0))
		})

		It("should mark the item valid", func() {
			Expect(items[0].Validation.Valid).To(BeTrue())
		})

		It("should mark the item as extracted", func() {
			Expect(items[0].Origin).To(Equal(OriginExtracted))
		})
	})

	When("a row has an empty name and unparseable quantity", func() {
		BeforeEach(func() {
			raw = []extraction.RawLineItem{
				{Name: "", Quantity: "abc", UnitPrice: "10"},
			}
		})

		It("should keep the row", func() {
			Expect(items).To(HaveLen(1))
		})

		It("should mark the item invalid", func() {
			Expect(items[0].Validation.Valid).To(BeFalse())
		})

		It("should report a name error", func() {
			Expect(items[0].Validation.Errors).To(HaveKey("name"))
		})

		It("should preserve the raw quantity text in the error", func() {
			Expect(items[0].Validation.Errors["quantity"]).To(ContainSubstring(`"abc"`))
		})

		It("should parse the unit price anyway", func() {
			Expect(items[0].UnitPrice).To(Equal(10.0))
		})
	})

	When("normalizing a mixed batch", func() {
		BeforeEach(func() {
			raw = []extraction.RawLineItem{
				{Name: "Beras 5kg", Quantity: "2", UnitPrice: "65.000"},
				{Name: "", Quantity: "", UnitPrice: ""},
				{Name: "Gula", Quantity: "1", UnitPrice: "15.000"},
			}
		})

		It("should never drop a row", func() {
			Expect(items).To(HaveLen(3))
		})

		It("should assign ids by input position", func() {
			Expect(items[0].ID).To(Equal(0))
			Expect(items[1].ID).To(Equal(1))
			Expect(items[2].ID).To(Equal(2))
		})

		It("should leave valid rows valid", func() {
			Expect(items[0].Validation.Valid).To(BeTrue())
			Expect(items[2].Validation.Valid).To(BeTrue())
		})
	})

	When("rows have duplicate names", func() {
		BeforeEach(func() {
			raw = []extraction.RawLineItem{
				{Name: "Teh Botol", Quantity: "1", UnitPrice: "5.000"},
				{Name: "Teh Botol", Quantity: "2", UnitPrice: "5.000"},
			}
		})

		It("should not merge them", func() {
			Expect(items).To(HaveLen(2))
			Expect(items[0].Quantity).To(Equal(1.0))
			Expect(items[1].Quantity).To(Equal(2.0))
		})
	})

	When("names carry surrounding whitespace", func() {
		BeforeEach(func() {
			raw = []extraction.RawLineItem{
				{Name: "  Kopi  ", Quantity: "1", UnitPrice: "9.000"},
			}
		})

		It("should trim the name", func() {
			Expect(items[0].Name).To(Equal("Kopi"))
		})
	})

	When("quantity is zero", func() {
		BeforeEach(func() {
			raw = []extraction.RawLineItem{
				{Name: "Sabun", Quantity: "0", UnitPrice: "4.000"},
			}
		})

		It("should mark the item invalid with a quantity error", func() {
			Expect(items[0].Validation.Valid).To(BeFalse())
			Expect(items[0].Validation.Errors).To(HaveKey("quantity"))
		})
	})
})

var _ = Describe("ParseDecimal", func() {
	DescribeTable("accepted formats",
		func(input string, expected float64) {
			value, err := ParseDecimal(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal(expected))
		},
		Entry("plain integer", "2", 2.0),
		Entry("point decimal", "12.5", 12.5),
		Entry("comma decimal", "12,5", 12.5),
		Entry("point thousands", "65.000", 65000.0),
		Entry("comma thousands with point decimal", "1,234.56", 1234.56),
		Entry("point thousands with comma decimal", "1.234,56", 1234.56),
		Entry("repeated thousands separators", "1.234.567", 1234567.0),
		Entry("space thousands", "1 234,56", 1234.56),
		Entry("zero integer part is a decimal", "0.500", 0.5),
		Entry("two decimal places", "10.50", 10.5),
		Entry("negative value", "-12,5", -12.5),
		Entry("surrounding whitespace", " 42 ", 42.0),
	)

	DescribeTable("rejected inputs",
		func(input string) {
			_, err := ParseDecimal(input)
			Expect(err).To(HaveOccurred())
		},
		Entry("empty string", ""),
		Entry("whitespace only", "   "),
		Entry("letters", "abc"),
		Entry("mixed letters and digits", "12abc"),
	)
})
