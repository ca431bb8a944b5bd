package whatsapp_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xaenox/shop-bot/internal/whatsapp"
)

type seenRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

var _ = Describe("Client", func() {
	var (
		ctx    context.Context
		server *httptest.Server
		client *whatsapp.Client

		mu       sync.Mutex
		requests []seenRequest
		status   int
		body     string
	)

	respond := func(code int, payload string) {
		mu.Lock()
		defer mu.Unlock()
		status, body = code, payload
	}

	seen := func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), requests...)
	}

	BeforeEach(func() {
		ctx = context.Background()
		requests = nil
		respond(http.StatusOK, `{"data":[]}`)

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			requests = append(requests, seenRequest{
				Method: r.Method,
				Path:   r.URL.EscapedPath(),
				Query:  r.URL.Query(),
				Form:   r.PostForm,
			})
			code, payload := status, body
			mu.Unlock()

			w.WriteHeader(code)
			_, _ = w.Write([]byte(payload))
		}))
		DeferCleanup(server.Close)
		client = whatsapp.NewClient(server.URL+"/", time.Second)
	})

	Describe("FetchReceived", func() {
		It("requests the first page and decodes numeric and string ids", func() {
			respond(http.StatusOK, `{"data":[
				{"id":101,"type":"text","from":"989121234567","to":"989350000000","message":"سلام"},
				{"id":"abc-7","type":"image","from":"989121234567","mediaUrl":"https://gw.example/media/1.jpg"}
			]}`)

			messages, err := client.FetchReceived(ctx, "tok/en")
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].ID).To(Equal(whatsapp.ID("101")))
			Expect(messages[0].Message).To(Equal("سلام"))
			Expect(messages[0].IsMedia()).To(BeFalse())
			Expect(messages[1].ID).To(Equal(whatsapp.ID("abc-7")))
			Expect(messages[1].IsMedia()).To(BeTrue())

			reqs := seen()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Method).To(Equal(http.MethodGet))
			Expect(reqs[0].Path).To(Equal("/receivedMessages/tok%2Fen"))
			Expect(reqs[0].Query.Get("page")).To(Equal("1"))
		})

		It("returns an APIError for non-2xx answers", func() {
			respond(http.StatusServiceUnavailable, "maintenance")

			_, err := client.FetchReceived(ctx, "token")
			var apiErr *whatsapp.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(apiErr.Body).To(Equal("maintenance"))
			Expect(apiErr.Temporary()).To(BeTrue())
		})

		It("fails on malformed JSON", func() {
			respond(http.StatusOK, `{"data":`)
			_, err := client.FetchReceived(ctx, "token")
			Expect(err).To(MatchError(ContainSubstring("decoding received messages")))
		})

		It("refuses an empty credential without calling the gateway", func() {
			_, err := client.FetchReceived(ctx, "  ")
			Expect(err).To(MatchError(whatsapp.ErrEmptyCredential))
			Expect(seen()).To(BeEmpty())
		})
	})

	It("sends text as query parameters", func() {
		Expect(client.SendText(ctx, "token", "989121234567", "سفارش ثبت شد")).To(Succeed())

		reqs := seen()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Method).To(Equal(http.MethodGet))
		Expect(reqs[0].Path).To(Equal("/sendMsg/token"))
		Expect(reqs[0].Query.Get("phonenumber")).To(Equal("989121234567"))
		Expect(reqs[0].Query.Get("message")).To(Equal("سفارش ثبت شد"))
	})

	It("sends images as a form post", func() {
		Expect(client.SendImage(ctx, "token", "989121234567", "فاکتور", "https://cdn.example.com/i.png")).To(Succeed())

		reqs := seen()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Method).To(Equal(http.MethodPost))
		Expect(reqs[0].Path).To(Equal("/sendMsg/token"))
		Expect(reqs[0].Form.Get("phonenumber")).To(Equal("989121234567"))
		Expect(reqs[0].Form.Get("message")).To(Equal("فاکتور"))
		Expect(reqs[0].Form.Get("link")).To(Equal("https://cdn.example.com/i.png"))
	})

	It("treats client errors as permanent", func() {
		respond(http.StatusBadRequest, "bad phone")
		err := client.SendText(ctx, "token", "1", "x")
		var apiErr *whatsapp.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Temporary()).To(BeFalse())
	})
})

var _ = Describe("normalization", func() {
	DescribeTable("NormalizePhone",
		func(raw, want string) {
			Expect(whatsapp.NormalizePhone(raw)).To(Equal(want))
		},
		Entry("country code", "989121234567", "09121234567"),
		Entry("plus prefix", "+98 912 123 4567", "09121234567"),
		Entry("double zero", "00989121234567", "09121234567"),
		Entry("jid suffix", "989121234567@c.us", "09121234567"),
		Entry("bare mobile", "9121234567", "09121234567"),
		Entry("already local", "09121234567", "09121234567"),
		Entry("persian digits", "۰۹۱۲۱۲۳۴۵۶۷", "09121234567"),
		Entry("foreign number kept", "14155550100", "14155550100"),
	)

	It("converts Persian and Arabic-Indic digits", func() {
		Expect(whatsapp.NormalizeDigits("کد ۱۲۳ و ٤٥٦")).To(Equal("کد 123 و 456"))
	})

	It("masks credentials", func() {
		Expect(whatsapp.MaskCredential("abcdef123456")).To(Equal("********3456"))
		Expect(whatsapp.MaskCredential("abc")).To(Equal("****"))
	})
})
