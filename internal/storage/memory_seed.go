package storage

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xaenox/shop-bot/internal/models"
)

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Users       []*models.User           `json:"users"`
	Settings    []*models.SellerSettings `json:"settings"`
	Products    []*models.Product        `json:"products"`
	FAQs        []*models.FAQ            `json:"faqs"`
	AIProviders []struct {
		models.AIProviderSetting
		Token string `json:"token"`
	} `json:"ai_providers"`
}

// LoadSeed fills the storage from a JSON seed. Ids present in the seed are kept.
func (s *MemoryStorage) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decoding seed: %w", err)
	}

	for _, u := range seed.Users {
		s.PutUser(u)
	}
	for _, st := range seed.Settings {
		s.PutSellerSettings(st)
	}
	for _, p := range seed.Products {
		s.PutProduct(p)
	}
	for _, f := range seed.FAQs {
		s.PutFAQ(f)
	}
	providers := make([]models.AIProviderSetting, 0, len(seed.AIProviders))
	for _, p := range seed.AIProviders {
		setting := p.AIProviderSetting
		setting.Token = p.Token
		providers = append(providers, setting)
	}
	s.SetAIProviders(providers)
	return nil
}

func (s *MemoryStorage) assignID(id *int64) {
	if *id == 0 {
		*id = s.id()
	} else if *id > s.nextID {
		s.nextID = *id
	}
}

func (s *MemoryStorage) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignID(&u.ID)
	c := *u
	s.users[u.ID] = &c
}

func (s *MemoryStorage) PutSellerSettings(st *models.SellerSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *st
	s.settings[st.SellerID] = &c
}

func (s *MemoryStorage) PutProduct(p *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignID(&p.ID)
	c := *p
	s.products[p.ID] = &c
}

func (s *MemoryStorage) PutFAQ(f *models.FAQ) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignID(&f.ID)
	c := *f
	s.faqs = append(s.faqs, &c)
}

func (s *MemoryStorage) PutAddress(a *models.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignID(&a.ID)
	c := *a
	s.addresses[a.UserID] = append(s.addresses[a.UserID], &c)
}

func (s *MemoryStorage) SetAIProviders(providers []models.AIProviderSetting) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aiProviders = append([]models.AIProviderSetting(nil), providers...)
}

func (s *MemoryStorage) SetTransactionStatus(id int64, status models.TransactionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range s.transactions {
		if tx.ID == id {
			tx.Status = status
			return nil
		}
	}
	return ErrNotFound
}

// Snapshot accessors

func (s *MemoryStorage) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, *u)
	}
	return result
}

func (s *MemoryStorage) Subscriptions() []models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		result = append(result, *sub)
	}
	return result
}

func (s *MemoryStorage) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		result = append(result, *m)
	}
	return result
}

func (s *MemoryStorage) Orders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		result = append(result, *o)
	}
	return result
}

func (s *MemoryStorage) OrderItems() []models.OrderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.OrderItem, 0, len(s.orderItems))
	for _, it := range s.orderItems {
		result = append(result, *it)
	}
	return result
}

func (s *MemoryStorage) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		result = append(result, *tx)
	}
	return result
}
