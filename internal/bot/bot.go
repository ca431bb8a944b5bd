// Package bot decides how to answer each inbound WhatsApp message.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/ai"
	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/queue"
	"github.com/xaenox/shop-bot/internal/session"
	"github.com/xaenox/shop-bot/internal/storage"
)

// AI is the part of ai.Service the pipeline relies on.
type AI interface {
	GenerateResponse(ctx context.Context, text string, userID int64) (string, error)
	ExtractDepositInfo(ctx context.Context, text string) (ai.DepositInfo, error)
	ExtractDepositInfoFromImage(ctx context.Context, imageURL string) (ai.DepositInfo, error)
	IsDepositMessage(ctx context.Context, text string) bool
	IsProductOrderRequest(ctx context.Context, text string) bool
	ExtractProductName(ctx context.Context, text string) string
	ExtractQuantity(ctx context.Context, text string) int
	IsPositiveResponse(ctx context.Context, text string) bool
	FindMatchingFAQ(ctx context.Context, text string, faqs []models.FAQ) *models.FAQ
}

// Outbox accepts replies for paced delivery.
type Outbox interface {
	Enqueue(kind queue.Kind, to, body string, ownerUserID int64, credential, imageURL string) string
}

type InvoiceRenderer interface {
	InvoiceURL(ctx context.Context, orderID int64) (string, error)
}

type Config struct {
	TrialDays      int
	MaxFAQs        int
	InvoiceTimeout time.Duration
}

type Bot struct {
	storage  storage.Storage
	ai       AI
	sessions *session.Store
	outbox   Outbox
	invoices InvoiceRenderer
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	states     map[session.State]stateHandler
	background sync.WaitGroup
}

// New builds the pipeline. invoices may be nil, in which case no invoice is sent.
func New(storage storage.Storage, assistant AI, sessions *session.Store, outbox Outbox, invoices InvoiceRenderer, cfg Config, logger *zap.Logger) *Bot {
	if cfg.TrialDays <= 0 {
		cfg.TrialDays = 7
	}
	if cfg.MaxFAQs <= 0 {
		cfg.MaxFAQs = 20
	}
	if cfg.InvoiceTimeout <= 0 {
		cfg.InvoiceTimeout = 30 * time.Second
	}

	b := &Bot{
		storage:  storage,
		ai:       assistant,
		sessions: sessions,
		outbox:   outbox,
		invoices: invoices,
		cfg:      cfg,
		logger:   logger.Named("bot"),
		now:      time.Now,
	}
	b.states = map[session.State]stateHandler{
		session.StateIdle:                 b.onIdle,
		session.StateAskingQuantity:       b.onAskingQuantity,
		session.StateAskingMoreProducts:   b.onAskingMoreProducts,
		session.StateAskingAddressTitle:   b.onAddressTitle,
		session.StateAskingAddressFull:    b.onAddressFull,
		session.StateAskingAddressPostal:  b.onAddressPostalCode,
		session.StateAskingShippingMethod: b.onShippingMethod,
	}
	return b
}

// turn carries everything known about the message being answered.
type turn struct {
	seller   *models.SellerSettings
	msg      *models.Message
	text     string
	customer *models.User
	// parentID is the seller whose catalog, FAQs and settings apply.
	parentID int64
	session  session.Session
}

type stage func(ctx context.Context, t *turn) (bool, error)

// HandleMessage runs the reply pipeline for one stored inbound message.
// Any failure clears the customer's session and tells the customer something
// went wrong; the error is still returned for logging.
func (b *Bot) HandleMessage(ctx context.Context, seller *models.SellerSettings, msg *models.Message) (err error) {
	t := &turn{
		seller:   seller,
		msg:      msg,
		text:     strings.TrimSpace(msg.Content),
		parentID: seller.SellerID,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling message %d: %v", msg.ID, r)
		}
		if err != nil {
			if t.customer != nil {
				b.sessions.Clear(t.customer.ID)
			}
			b.send(ctx, t, msgGenericError)
		}
		if markErr := b.storage.MarkMessageRead(ctx, msg.ID); markErr != nil {
			b.logger.Warn("Failed to mark message read", zap.Int64("message_id", msg.ID), zap.Error(markErr))
		}
	}()

	return b.process(ctx, t)
}

func (b *Bot) process(ctx context.Context, t *turn) error {
	handled, err := b.register(ctx, t)
	if err != nil || handled {
		return err
	}
	if t.customer.ParentID != 0 {
		t.parentID = t.customer.ParentID
	}
	t.session = b.sessions.GetOrCreate(t.customer.ID, t.msg.From)

	for _, run := range []stage{b.handleDeposit, b.handleFAQ, b.handleOrderFlow} {
		handled, err := run(ctx, t)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return b.handleFallback(ctx, t)
}

func (b *Bot) handleFallback(ctx context.Context, t *turn) error {
	reply, err := b.ai.GenerateResponse(ctx, t.text, t.customer.ID)
	if err != nil || reply == "" {
		b.logger.Warn("No AI reply, sending canned answer",
			zap.Int64("user_id", t.customer.ID),
			zap.Error(err))
		b.send(ctx, t, msgCannotAnswer)
		return nil
	}
	b.send(ctx, t, reply)
	return nil
}

// send persists the reply and hands it to the outbox.
func (b *Bot) send(ctx context.Context, t *turn, text string) {
	b.deliver(ctx, t, queue.KindText, text, "")
}

func (b *Bot) sendImage(ctx context.Context, t *turn, caption, imageURL string) {
	b.deliver(ctx, t, queue.KindImage, caption, imageURL)
}

func (b *Bot) deliver(ctx context.Context, t *turn, kind queue.Kind, text, imageURL string) {
	out := &models.Message{
		UserID:    t.seller.SellerID,
		Direction: models.DirectionOutbound,
		From:      t.msg.To,
		To:        t.msg.From,
		Content:   text,
		ImageURL:  imageURL,
		Read:      true,
		CreatedAt: b.now(),
	}
	if t.customer != nil {
		out.CustomerID = t.customer.ID
	}
	if err := b.storage.SaveMessage(ctx, out); err != nil {
		b.logger.Error("Failed to save outbound message",
			zap.Int64("seller_id", t.seller.SellerID),
			zap.String("to", t.msg.From),
			zap.Error(err))
	}

	b.outbox.Enqueue(kind, t.msg.From, text, t.seller.SellerID, t.seller.Credential, imageURL)
}

// Wait blocks until background actions (invoice delivery) finish or ctx is done.
func (b *Bot) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
