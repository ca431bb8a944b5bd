package ai

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

type scriptedCompleter struct {
	response string
	err      error
	last     chatRequest
}

func (s *scriptedCompleter) complete(_ context.Context, req chatRequest) (string, error) {
	s.last = req
	return s.response, s.err
}

var _ = Describe("chatProvider", func() {
	var (
		completer *scriptedCompleter
		provider  *chatProvider
	)

	BeforeEach(func() {
		completer = &scriptedCompleter{}
		provider = &chatProvider{name: "test", usable: true, completer: completer, logger: zap.NewNop()}
	})

	It("requests schema-constrained JSON for deposits", func() {
		completer.response = "```json\n{\"amount\": 1500000, \"referenceId\": \"REF123\", \"transactionDate\": \"1403/02/10\", \"transactionTime\": null}\n```"

		info, err := provider.ExtractDeposit(context.Background(), "receipt")
		Expect(err).NotTo(HaveOccurred())
		Expect(info).To(Equal(DepositInfo{Amount: "1500000", ReferenceID: "REF123", TransactionDate: "1403/02/10"}))
		Expect(info.Complete()).To(BeTrue())
		Expect(completer.last.JSON).To(BeTrue())
		Expect(completer.last.Schema).NotTo(BeNil())
	})

	It("sends the image with the receipt prompt", func() {
		completer.response = `{"amount":"","referenceId":"","transactionDate":""}`

		info, err := provider.ExtractDepositFromImage(context.Background(), "data:image/png;base64,AAAA")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Complete()).To(BeFalse())
		Expect(completer.last.Image).To(Equal("data:image/png;base64,AAAA"))
	})

	It("reports unparsable deposit output", func() {
		completer.response = "I cannot read this receipt"
		_, err := provider.ExtractDeposit(context.Background(), "receipt")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("Classify",
		func(response string, expected bool) {
			completer.response = response
			yes, err := provider.Classify(context.Background(), "q", "t")
			Expect(err).NotTo(HaveOccurred())
			Expect(yes).To(Equal(expected))
		},
		Entry("yes", "Yes", true),
		Entry("yes with punctuation", "yes.", true),
		Entry("persian yes", "بله", true),
		Entry("no", "no", false),
		Entry("garbage", "maybe", false),
	)

	It("maps NONE to an empty extraction", func() {
		completer.response = "NONE."
		out, err := provider.Extract(context.Background(), "extract", "t")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
	})
})

var _ = Describe("DepositInfo", func() {
	DescribeTable("Complete",
		func(info DepositInfo, expected bool) {
			Expect(info.Complete()).To(Equal(expected))
		},
		Entry("all mandatory fields", DepositInfo{Amount: "1", ReferenceID: "r", TransactionDate: "d"}, true),
		Entry("missing amount", DepositInfo{ReferenceID: "r", TransactionDate: "d"}, false),
		Entry("missing reference", DepositInfo{Amount: "1", TransactionDate: "d"}, false),
		Entry("missing date", DepositInfo{Amount: "1", ReferenceID: "r"}, false),
		Entry("blank reference", DepositInfo{Amount: "1", ReferenceID: "  ", TransactionDate: "d"}, false),
	)
})

var _ = Describe("LeadingInt", func() {
	DescribeTable("parses menu choices",
		func(in string, n int, ok bool) {
			got, gotOK := LeadingInt(in)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(n))
		},
		Entry("digit", "2", 2, true),
		Entry("persian digit", "۳", 3, true),
		Entry("digit with text", "1 پیشتاز", 1, true),
		Entry("no digit", "پست", 0, false),
	)
})
