// Package session keeps the per-customer conversation state of the ordering dialogue.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shop-bot/internal/models"
)

type State string

const (
	StateIdle                 State = "idle"
	StateSearchingProduct     State = "searching_product"
	StateAskingQuantity       State = "asking_quantity"
	StateAskingMoreProducts   State = "asking_more_products"
	StateAskingAddressTitle   State = "asking_address_title"
	StateAskingAddressFull    State = "asking_address_full"
	StateAskingAddressPostal  State = "asking_address_postal_code"
	StateSelectingAddress     State = "selecting_address"
	StateAskingShippingMethod State = "asking_shipping_method"
	StateConfirmingOrder      State = "confirming_order"
)

// ShippingOption is one numbered entry of the shipping menu shown to the customer.
type ShippingOption struct {
	Ordinal     int
	DisplayName string
	MethodTag   string
}

// AddressDraft collects a new address over three turns.
type AddressDraft struct {
	Title       string
	FullAddress string
	PostalCode  string
}

type Session struct {
	UserID                   int64
	ChannelAddress           string
	State                    State
	CurrentProduct           *models.Product
	SelectedShippingMethod   string
	AvailableShippingMethods []ShippingOption
	Address                  AddressDraft
	LastInteraction          time.Time
}

func (s Session) clone() Session {
	if s.CurrentProduct != nil {
		p := *s.CurrentProduct
		s.CurrentProduct = &p
	}
	if s.AvailableShippingMethods != nil {
		s.AvailableShippingMethods = append([]ShippingOption(nil), s.AvailableShippingMethods...)
	}
	return s
}

// Store is an in-process session map. Sessions idle for longer than the
// timeout are treated as fresh and eventually swept.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewStore(timeout time.Duration, logger *zap.Logger) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Store{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
		now:      time.Now,
		logger:   logger.Named("session"),
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// GetOrCreate returns a copy of the user's session, resetting it to idle when
// it is missing or expired, and refreshes its last interaction.
func (s *Store) GetOrCreate(userID int64, channelAddress string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[userID]
	if !ok || now.Sub(sess.LastInteraction) > s.timeout {
		sess = &Session{UserID: userID, State: StateIdle}
		s.sessions[userID] = sess
	}
	if channelAddress != "" {
		sess.ChannelAddress = channelAddress
	}
	sess.LastInteraction = now
	return sess.clone()
}

// Update applies fn to the stored session. It is a no-op for unknown users.
func (s *Store) Update(userID int64, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	fn(sess)
	sess.UserID = userID
	sess.LastInteraction = s.now()
}

func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastInteraction) > s.timeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("Swept expired sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
