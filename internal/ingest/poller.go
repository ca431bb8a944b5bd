// Package ingest polls the WhatsApp gateway for every seller account and feeds
// new inbound messages to the conversation pipeline.
package ingest

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/whatsapp"
)

type Fetcher interface {
	FetchReceived(ctx context.Context, credential string) ([]whatsapp.InboundMessage, error)
}

type Store interface {
	ListSellerSettings(ctx context.Context) ([]*models.SellerSettings, error)
	MessageExists(ctx context.Context, upstreamID string, userID int64) (bool, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
}

// Handler receives every new inbound message after it has been persisted.
type Handler interface {
	HandleMessage(ctx context.Context, seller *models.SellerSettings, msg *models.Message) error
}

type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	// MediaPattern is a path fragment identifying the gateway's own media URLs.
	MediaPattern string
}

type Poller struct {
	fetcher Fetcher
	store   Store
	handler Handler
	cfg     Config
	logger  *zap.Logger

	running  atomic.Bool
	inflight sync.WaitGroup
	imageRes []*regexp.Regexp
}

var imageExtURL = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(?:jpe?g|png|gif|webp|bmp)(?:\?[^\s"'<>]*)?`)

func NewPoller(fetcher Fetcher, store Store, handler Handler, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MediaPattern == "" {
		cfg.MediaPattern = "/media/"
	}

	return &Poller{
		fetcher: fetcher,
		store:   store,
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("ingest"),
		imageRes: []*regexp.Regexp{
			imageExtURL,
			regexp.MustCompile(`https?://[^\s"'<>]*` + regexp.QuoteMeta(cfg.MediaPattern) + `[^\s"'<>]+`),
		},
	}
}

// Run polls every interval until ctx is done, then waits for the tick in
// flight. A tick that is still running when the next one fires causes that
// next tick to be skipped.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Starting message polling", zap.Duration("interval", p.cfg.Interval))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.inflight.Wait()
			p.logger.Info("Message polling stopped")
			return
		case <-ticker.C:
			if !p.running.CompareAndSwap(false, true) {
				p.logger.Debug("Previous tick still running, skipping")
				continue
			}
			p.inflight.Add(1)
			go func() {
				defer p.inflight.Done()
				defer p.running.Store(false)
				p.Tick(ctx)
			}()
		}
	}
}

// Tick processes every seller account once. Failures of one account never
// affect the others.
func (p *Poller) Tick(ctx context.Context) {
	sellers, err := p.store.ListSellerSettings(ctx)
	if err != nil {
		p.logger.Error("Failed to list seller accounts", zap.Error(err))
		return
	}

	for _, seller := range sellers {
		if ctx.Err() != nil {
			return
		}
		p.pollSeller(ctx, seller)
	}
}

func (p *Poller) pollSeller(ctx context.Context, seller *models.SellerSettings) {
	logger := p.logger.With(
		zap.Int64("seller_id", seller.SellerID),
		zap.String("credential", whatsapp.MaskCredential(seller.Credential)))

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	inbound, err := p.fetcher.FetchReceived(fetchCtx, seller.Credential)
	cancel()
	if err != nil {
		logger.Error("Failed to fetch received messages", zap.Error(err))
		return
	}

	for _, in := range inbound {
		if ctx.Err() != nil {
			return
		}

		upstreamID := string(in.ID)
		if upstreamID == "" {
			continue
		}

		exists, err := p.store.MessageExists(ctx, upstreamID, seller.SellerID)
		if err != nil {
			logger.Error("Failed to check message", zap.String("upstream_id", upstreamID), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		msg := p.normalize(in, seller.SellerID)
		if msg.Content == "" {
			logger.Debug("Skipping empty message", zap.String("upstream_id", upstreamID))
			continue
		}

		if err := p.store.SaveMessage(ctx, msg); err != nil {
			logger.Error("Failed to save message", zap.String("upstream_id", upstreamID), zap.Error(err))
			continue
		}

		if err := p.handler.HandleMessage(ctx, seller, msg); err != nil {
			logger.Error("Failed to handle message",
				zap.String("upstream_id", upstreamID),
				zap.Int64("message_id", msg.ID),
				zap.Error(err))
		}
	}
}

// normalize maps a gateway entry to a stored inbound message. Media entries
// carry their URL as content; text entries keep the text and any image link
// found in it.
func (p *Poller) normalize(in whatsapp.InboundMessage, sellerID int64) *models.Message {
	msg := &models.Message{
		UpstreamID: string(in.ID),
		UserID:     sellerID,
		Direction:  models.DirectionInbound,
		From:       in.From,
		To:         in.To,
		CreatedAt:  time.Now(),
	}

	if in.IsMedia() {
		msg.Content = strings.TrimSpace(in.MediaURL)
		msg.ImageURL = msg.Content
		return msg
	}

	msg.Content = strings.TrimSpace(in.Message)
	msg.ImageURL = p.findImageURL(msg.Content)
	return msg
}

func (p *Poller) findImageURL(text string) string {
	for _, re := range p.imageRes {
		if u := re.FindString(text); u != "" {
			return u
		}
	}
	return ""
}
