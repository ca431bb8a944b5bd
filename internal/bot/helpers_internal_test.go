package bot

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/session"
)

var _ = Describe("helpers", func() {
	DescribeTable("parseFullName",
		func(text, first, last string, ok bool) {
			f, l, got := parseFullName(text)
			Expect(got).To(Equal(ok))
			Expect(f).To(Equal(first))
			Expect(l).To(Equal(last))
		},
		Entry("two words", "علی رضایی", "علی", "رضایی", true),
		Entry("compound last name", "محمد حسین زاده", "محمد", "حسین زاده", true),
		Entry("latin", "John Smith", "John", "Smith", true),
		Entry("single word", "سلام", "", "", false),
		Entry("too many words", "a b c d e", "", "", false),
		Entry("digits", "علی 123", "", "", false),
		Entry("question", "قیمت چنده؟", "", "", false),
		Entry("greeting", "سلام خوبی", "", "", false),
		Entry("greeting with arabic ye", "سلام خوبي", "", "", false),
		Entry("time of day greeting", "وقت بخیر", "", "", false),
		Entry("thanks", "مرسی ممنون", "", "", false),
		Entry("latin greeting", "Hello there", "", "", false),
	)

	DescribeTable("parseAmount",
		func(raw string, want int64, ok bool) {
			got, valid := parseAmount(raw)
			Expect(valid).To(Equal(ok))
			Expect(got).To(Equal(want))
		},
		Entry("plain", "500000", int64(500000), true),
		Entry("separators and unit", "1,500,000 ریال", int64(1500000), true),
		Entry("persian digits", "۲۵۰۰۰۰", int64(250000), true),
		Entry("no digits", "نامشخص", int64(0), false),
		Entry("zero", "0", int64(0), false),
		Entry("decimal part dropped", "1,500.50", int64(1500), true),
		Entry("persian decimal separator", "۱۲۰۰٫۷۵ تومان", int64(1200), true),
		Entry("dots as thousands separators", "1.500.000", int64(1500000), true),
		Entry("persian thousands separator", "۲٬۵۰۰٬۰۰۰", int64(2500000), true),
		Entry("only a fraction", ".50", int64(0), false),
	)

	It("formats amounts with separators in Persian digits", func() {
		Expect(formatAmount(0)).To(Equal("۰"))
		Expect(formatAmount(950)).To(Equal("۹۵۰"))
		Expect(formatAmount(1000)).To(Equal("۱,۰۰۰"))
		Expect(formatAmount(2300000)).To(Equal("۲,۳۰۰,۰۰۰"))
		Expect(formatAmount(-45000)).To(Equal("-۴۵,۰۰۰"))
	})

	It("falls back to the default welcome text", func() {
		Expect(welcomeText("", "علی")).To(HavePrefix("علی عزیز"))
		Expect(welcomeText("hi {name}", "Ali")).To(Equal("hi Ali"))
	})

	Describe("shipping", func() {
		all := models.ShippingSettings{
			PishtazEnabled: true,
			PostEnabled:    true,
			CourierEnabled: true,
			FreeEnabled:    true,
			FreeThreshold:  1000000,
		}

		tags := func(options []session.ShippingOption) []string {
			out := make([]string, 0, len(options))
			for _, o := range options {
				out = append(out, o.MethodTag)
			}
			return out
		}

		It("offers free shipping only from the threshold", func() {
			Expect(tags(shippingOptions(all, 999999))).To(Equal([]string{"pishtaz", "post", "courier"}))
			Expect(tags(shippingOptions(all, 1000000))).To(Equal([]string{"pishtaz", "post", "courier", "free"}))
		})

		It("numbers the enabled methods consecutively", func() {
			options := shippingOptions(models.ShippingSettings{CourierEnabled: true, FreeEnabled: true}, 0)
			Expect(options).To(Equal([]session.ShippingOption{
				{Ordinal: 1, DisplayName: "پیک", MethodTag: "courier"},
				{Ordinal: 2, DisplayName: "ارسال رایگان", MethodTag: "free"},
			}))
		})

		It("picks by ordinal", func() {
			options := shippingOptions(all, 0)
			o, ok := pickShipping(options, "۲")
			Expect(ok).To(BeTrue())
			Expect(o.MethodTag).To(Equal("post"))

			_, ok = pickShipping(options, "4")
			Expect(ok).To(BeFalse())
			_, ok = pickShipping(options, "پیک")
			Expect(ok).To(BeFalse())
		})

		It("sums the cart", func() {
			cart := []*models.CartItem{
				{Quantity: 2, UnitPrice: 1000},
				{Quantity: 1, UnitPrice: 500},
			}
			Expect(cartSubtotal(cart)).To(Equal(int64(2500)))
		})
	})
})
