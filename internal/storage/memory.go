package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xaenox/shop-bot/internal/models"
)

type messageKey struct {
	upstreamID string
	userID     int64
}

// MemoryStorage keeps everything in maps. It backs tests and the --memory dev mode.
type MemoryStorage struct {
	mu sync.RWMutex

	nextID int64

	users         map[int64]*models.User
	subscriptions []*models.Subscription
	settings      map[int64]*models.SellerSettings
	aiProviders   []models.AIProviderSetting
	products      map[int64]*models.Product
	carts         map[int64][]*models.CartItem
	addresses     map[int64][]*models.Address
	orders        []*models.Order
	orderItems    []*models.OrderItem
	transactions  []*models.Transaction
	faqs          []*models.FAQ
	messages      map[int64]*models.Message
	inboundIndex  map[messageKey]int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:        make(map[int64]*models.User),
		settings:     make(map[int64]*models.SellerSettings),
		products:     make(map[int64]*models.Product),
		carts:        make(map[int64][]*models.CartItem),
		addresses:    make(map[int64][]*models.Address),
		messages:     make(map[int64]*models.Message),
		inboundIndex: make(map[messageKey]int64),
	}
}

func (s *MemoryStorage) id() int64 {
	s.nextID++
	return s.nextID
}

// User methods

func (s *MemoryStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		u := *user
		return &u, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetUserByChannelAddress(ctx context.Context, address string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ChannelAddress != "" && user.ChannelAddress == address {
			u := *user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ChannelAddress == "" && user.Phone == phone {
			u := *user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = s.id()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	u := *user
	s.users[user.ID] = &u
	return nil
}

func (s *MemoryStorage) UpdateChannelAddress(ctx context.Context, userID int64, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrNotFound
	}
	user.ChannelAddress = address
	return nil
}

func (s *MemoryStorage) GrantSubscription(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[sub.UserID]; !exists {
		return ErrNotFound
	}
	sub.ID = s.id()
	c := *sub
	s.subscriptions = append(s.subscriptions, &c)
	return nil
}

// Settings methods

func (s *MemoryStorage) ListSellerSettings(ctx context.Context) ([]*models.SellerSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.SellerSettings, 0, len(s.settings))
	for _, st := range s.settings {
		if st.Credential == "" {
			continue
		}
		c := *st
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SellerID < result[j].SellerID })
	return result, nil
}

func (s *MemoryStorage) GetSellerSettings(ctx context.Context, sellerID int64) (*models.SellerSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, exists := s.settings[sellerID]; exists {
		c := *st
		return &c, nil
	}
	return &models.SellerSettings{
		SellerID: sellerID,
		Shipping: models.DefaultShippingSettings(),
	}, nil
}

func (s *MemoryStorage) ListAIProviders(ctx context.Context) ([]models.AIProviderSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.AIProviderSetting(nil), s.aiProviders...), nil
}

// Catalog methods

func (s *MemoryStorage) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.products[id]; exists {
		c := *p
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SearchProducts(ctx context.Context, sellerID int64, query string) ([]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	var result []*models.Product
	for _, p := range s.products {
		if p.SellerID != sellerID || !p.Active {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.Description), query) {
			c := *p
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStorage) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return ErrNotFound
	}
	if p.Stock < quantity {
		return fmt.Errorf("%w for product %d: have %d, want %d", ErrInsufficientStock, productID, p.Stock, quantity)
	}
	p.Stock -= quantity
	return nil
}

func (s *MemoryStorage) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[productID]
	if !exists {
		return ErrNotFound
	}
	p.Stock += quantity
	return nil
}

// Cart methods

func (s *MemoryStorage) GetCart(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.carts[userID]
	result := make([]*models.CartItem, 0, len(items))
	for _, it := range items {
		c := *it
		result = append(result, &c)
	}
	return result, nil
}

func (s *MemoryStorage) AddCartItem(ctx context.Context, item *models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.carts[item.UserID] {
		if existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			existing.UnitPrice = item.UnitPrice
			item.ID = existing.ID
			return nil
		}
	}

	item.ID = s.id()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	c := *item
	s.carts[item.UserID] = append(s.carts[item.UserID], &c)
	return nil
}

func (s *MemoryStorage) ClearCart(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

// Address methods

func (s *MemoryStorage) ListAddresses(ctx context.Context, userID int64) ([]*models.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Address, 0, len(s.addresses[userID]))
	for _, a := range s.addresses[userID] {
		c := *a
		result = append(result, &c)
	}
	return result, nil
}

func (s *MemoryStorage) CreateAddress(ctx context.Context, address *models.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if address.IsDefault {
		for _, a := range s.addresses[address.UserID] {
			a.IsDefault = false
		}
	}
	address.ID = s.id()
	if address.CreatedAt.IsZero() {
		address.CreatedAt = time.Now()
	}
	c := *address
	s.addresses[address.UserID] = append(s.addresses[address.UserID], &c)
	return nil
}

func (s *MemoryStorage) GetDefaultAddress(ctx context.Context, userID int64) (*models.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.addresses[userID]
	for _, a := range list {
		if a.IsDefault {
			c := *a
			return &c, nil
		}
	}
	if len(list) > 0 {
		c := *list[len(list)-1]
		return &c, nil
	}
	return nil, ErrNotFound
}

// Order methods

func (s *MemoryStorage) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = s.id()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	c := *order
	s.orders = append(s.orders, &c)
	return nil
}

func (s *MemoryStorage) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.id()
	c := *item
	s.orderItems = append(s.orderItems, &c)
	return nil
}

// Transaction methods

func (s *MemoryStorage) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = s.id()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	c := *tx
	s.transactions = append(s.transactions, &c)
	return nil
}

func (s *MemoryStorage) FindTransactionByReference(ctx context.Context, userID int64, referenceID string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.UserID == userID && tx.ReferenceID == referenceID {
			c := *tx
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetBalance(ctx context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var balance int64
	for _, tx := range s.transactions {
		if tx.UserID == userID && tx.Status == models.TransactionApproved {
			balance += tx.Amount
		}
	}
	return balance, nil
}

// FAQ methods

func (s *MemoryStorage) ListFAQs(ctx context.Context, authorID int64, limit int) ([]*models.FAQ, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.FAQ
	for _, f := range s.faqs {
		if f.AuthorID == authorID && f.Active {
			c := *f
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Message methods

func (s *MemoryStorage) MessageExists(ctx context.Context, upstreamID string, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.inboundIndex[messageKey{upstreamID: upstreamID, userID: userID}]
	return exists, nil
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey{upstreamID: msg.UpstreamID, userID: msg.UserID}
	if msg.UpstreamID != "" {
		if _, exists := s.inboundIndex[key]; exists {
			return fmt.Errorf("message %s already stored for user %d", msg.UpstreamID, msg.UserID)
		}
	}

	msg.ID = s.id()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	c := *msg
	s.messages[msg.ID] = &c
	if msg.UpstreamID != "" {
		s.inboundIndex[key] = msg.ID
	}
	return nil
}

func (s *MemoryStorage) MarkMessageRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, exists := s.messages[id]
	if !exists {
		return ErrNotFound
	}
	msg.Read = true
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
