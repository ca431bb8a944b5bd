// Package queue delivers outbound WhatsApp messages through one paced FIFO
// per sending credential.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xaenox/shop-bot/internal/whatsapp"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Sender performs the actual gateway calls.
type Sender interface {
	SendText(ctx context.Context, credential, to, text string) error
	SendImage(ctx context.Context, credential, to, caption, imageURL string) error
}

type Message struct {
	ID          string
	Kind        Kind
	To          string
	Body        string
	ImageURL    string
	OwnerUserID int64
	Credential  string
	RetryCount  int
	EnqueuedAt  time.Time
}

type Config struct {
	// Rate is the number of sends per second allowed for one credential.
	Rate        float64
	MaxRetries  int
	SendTimeout time.Duration
}

type Stats struct {
	Sent    int64
	Retried int64
	Dropped int64
}

type lane struct {
	pending  []*Message
	draining bool
	limiter  *rate.Limiter
}

// Queue is safe for concurrent use. Each credential gets its own lane and at
// most one drain goroutine, started on demand. An emptied lane is removed from
// the map once its pacing interval has passed, so a recreated lane may send
// immediately.
type Queue struct {
	sender Sender
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup

	sent    atomic.Int64
	retried atomic.Int64
	dropped atomic.Int64
}

func New(sender Sender, cfg Config, logger *zap.Logger) *Queue {
	if cfg.Rate <= 0 {
		cfg.Rate = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Queue{
		sender: sender,
		cfg:    cfg,
		logger: logger.Named("queue"),
		lanes:  make(map[string]*lane),
	}
}

// Enqueue appends a message to the credential's lane and returns its id
// without waiting for delivery.
func (q *Queue) Enqueue(kind Kind, to, body string, ownerUserID int64, credential, imageURL string) string {
	msg := &Message{
		ID:          uuid.NewString(),
		Kind:        kind,
		To:          to,
		Body:        body,
		ImageURL:    imageURL,
		OwnerUserID: ownerUserID,
		Credential:  credential,
		EnqueuedAt:  time.Now(),
	}

	q.mu.Lock()
	l, ok := q.lanes[credential]
	if !ok {
		l = &lane{limiter: rate.NewLimiter(rate.Limit(q.cfg.Rate), 1)}
		// The first send goes out at once; the token is spent up front.
		l.limiter.Allow()
		q.lanes[credential] = l
	}
	l.pending = append(l.pending, msg)
	start := !l.draining
	if start {
		l.draining = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.drain(credential, l)
	}
	return msg.ID
}

func (q *Queue) drain(credential string, l *lane) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(l.pending) == 0 {
			l.draining = false
			if q.lanes[credential] == l {
				delete(q.lanes, credential)
			}
			q.mu.Unlock()
			return
		}
		msg := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		q.mu.Unlock()

		err := q.send(msg)

		// Pacing happens after the send so the lane is only dropped once the
		// next send would be allowed anyway. Wait never fails here: the
		// context has no deadline and burst is 1.
		_ = l.limiter.Wait(context.Background())

		if err == nil {
			q.sent.Add(1)
			continue
		}

		msg.RetryCount++
		if msg.RetryCount > q.cfg.MaxRetries {
			q.dropped.Add(1)
			q.logger.Error("Dropping message after retries",
				zap.String("message_id", msg.ID),
				zap.String("credential", whatsapp.MaskCredential(credential)),
				zap.String("to", msg.To),
				zap.Int64("owner_user_id", msg.OwnerUserID),
				zap.Int("attempts", msg.RetryCount),
				zap.Error(err))
			continue
		}

		q.retried.Add(1)
		q.logger.Warn("Failed to send message, requeueing",
			zap.String("message_id", msg.ID),
			zap.String("credential", whatsapp.MaskCredential(credential)),
			zap.Int("retry", msg.RetryCount),
			zap.Error(err))

		q.mu.Lock()
		l.pending = append(l.pending, msg)
		q.mu.Unlock()
	}
}

func (q *Queue) send(msg *Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.SendTimeout)
	defer cancel()

	if msg.Kind == KindImage && msg.ImageURL != "" {
		return q.sender.SendImage(ctx, msg.Credential, msg.To, msg.Body, msg.ImageURL)
	}
	return q.sender.SendText(ctx, msg.Credential, msg.To, msg.Body)
}

// Pending returns the number of messages waiting on credential's lane.
func (q *Queue) Pending(credential string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if l, ok := q.lanes[credential]; ok {
		return len(l.pending)
	}
	return 0
}

// Lanes returns the number of credentials with queued or in-flight messages.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Wait blocks until every lane is drained or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Sent:    q.sent.Load(),
		Retried: q.retried.Load(),
		Dropped: q.dropped.Load(),
	}
}
