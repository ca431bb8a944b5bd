package bot_test

import (
	"context"
	"strconv"
	"sync"

	"github.com/xaenox/shop-bot/internal/ai"
	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/queue"
)

// fakeAI answers negatively unless a function field is set.
type fakeAI struct {
	mu    sync.Mutex
	calls map[string]int

	reply        func(text string) (string, error)
	deposit      func(text string) (ai.DepositInfo, error)
	depositImage func(url string) (ai.DepositInfo, error)
	isDeposit    func(text string) bool
	isOrder      func(text string) bool
	productName  func(text string) string
	quantity     func(text string) int
	positive     func(text string) bool
	faq          func(text string, faqs []models.FAQ) *models.FAQ
}

func newFakeAI() *fakeAI {
	return &fakeAI{calls: make(map[string]int)}
}

func (f *fakeAI) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeAI) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAI) GenerateResponse(_ context.Context, text string, _ int64) (string, error) {
	f.count("reply")
	if f.reply == nil {
		return "پاسخ خودکار", nil
	}
	return f.reply(text)
}

func (f *fakeAI) ExtractDepositInfo(_ context.Context, text string) (ai.DepositInfo, error) {
	f.count("deposit")
	if f.deposit == nil {
		return ai.DepositInfo{}, nil
	}
	return f.deposit(text)
}

func (f *fakeAI) ExtractDepositInfoFromImage(_ context.Context, url string) (ai.DepositInfo, error) {
	f.count("deposit_image")
	if f.depositImage == nil {
		return ai.DepositInfo{}, nil
	}
	return f.depositImage(url)
}

func (f *fakeAI) IsDepositMessage(_ context.Context, text string) bool {
	f.count("is_deposit")
	return f.isDeposit != nil && f.isDeposit(text)
}

func (f *fakeAI) IsProductOrderRequest(_ context.Context, text string) bool {
	f.count("is_order")
	return f.isOrder != nil && f.isOrder(text)
}

func (f *fakeAI) ExtractProductName(_ context.Context, text string) string {
	f.count("product_name")
	if f.productName == nil {
		return ""
	}
	return f.productName(text)
}

func (f *fakeAI) ExtractQuantity(_ context.Context, text string) int {
	f.count("quantity")
	if f.quantity != nil {
		return f.quantity(text)
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0
	}
	return n
}

func (f *fakeAI) IsPositiveResponse(_ context.Context, text string) bool {
	f.count("positive")
	if f.positive != nil {
		return f.positive(text)
	}
	return text == "بله"
}

func (f *fakeAI) FindMatchingFAQ(_ context.Context, text string, faqs []models.FAQ) *models.FAQ {
	f.count("faq")
	if f.faq == nil {
		return nil
	}
	return f.faq(text, faqs)
}

type outgoing struct {
	Kind       queue.Kind
	To         string
	Body       string
	Owner      int64
	Credential string
	ImageURL   string
}

type recordingOutbox struct {
	mu   sync.Mutex
	sent []outgoing
}

func (o *recordingOutbox) Enqueue(kind queue.Kind, to, body string, owner int64, credential, imageURL string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, outgoing{kind, to, body, owner, credential, imageURL})
	return strconv.Itoa(len(o.sent))
}

func (o *recordingOutbox) Sent() []outgoing {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]outgoing(nil), o.sent...)
}

func (o *recordingOutbox) Last() outgoing {
	sent := o.Sent()
	if len(sent) == 0 {
		return outgoing{}
	}
	return sent[len(sent)-1]
}

type fakeInvoices struct {
	mu      sync.Mutex
	ordered []int64
}

func (f *fakeInvoices) InvoiceURL(_ context.Context, orderID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ordered = append(f.ordered, orderID)
	return "https://cdn.example.com/invoices/" + strconv.FormatInt(orderID, 10) + ".png", nil
}
