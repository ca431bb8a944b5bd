package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/shop-bot/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrInsufficientStock is returned when a product has fewer units than requested.
var ErrInsufficientStock = errors.New("insufficient stock")

// Storage is everything the conversation core needs from persistence.
// Each call is atomic on its own; callers never assume multi-call transactions.
type Storage interface {
	UserStorage
	SettingsStorage
	CatalogStorage
	CartStorage
	AddressStorage
	OrderStorage
	TransactionStorage
	FAQStorage
	MessageStorage

	Close() error
}

type UserStorage interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByChannelAddress(ctx context.Context, address string) (*models.User, error)
	// GetUserByPhone only returns users that have no channel address on file.
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateChannelAddress(ctx context.Context, userID int64, address string) error
	GrantSubscription(ctx context.Context, sub *models.Subscription) error
}

type SettingsStorage interface {
	// ListSellerSettings returns settings of every seller with a non-empty credential.
	ListSellerSettings(ctx context.Context) ([]*models.SellerSettings, error)
	GetSellerSettings(ctx context.Context, sellerID int64) (*models.SellerSettings, error)
	ListAIProviders(ctx context.Context) ([]models.AIProviderSetting, error)
}

type CatalogStorage interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	// SearchProducts matches query as a case-insensitive substring of the
	// name or description of the seller's active products.
	SearchProducts(ctx context.Context, sellerID int64, query string) ([]*models.Product, error)
	// DecrementStock fails with ErrInsufficientStock rather than going negative.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	// RestoreStock gives back units taken by DecrementStock.
	RestoreStock(ctx context.Context, productID int64, quantity int) error
}

type CartStorage interface {
	GetCart(ctx context.Context, userID int64) ([]*models.CartItem, error)
	AddCartItem(ctx context.Context, item *models.CartItem) error
	ClearCart(ctx context.Context, userID int64) error
}

type AddressStorage interface {
	ListAddresses(ctx context.Context, userID int64) ([]*models.Address, error)
	// CreateAddress stores the address; a default address demotes the previous default.
	CreateAddress(ctx context.Context, address *models.Address) error
	GetDefaultAddress(ctx context.Context, userID int64) (*models.Address, error)
}

type OrderStorage interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
}

type TransactionStorage interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	FindTransactionByReference(ctx context.Context, userID int64, referenceID string) (*models.Transaction, error)
	// GetBalance sums the user's approved transactions.
	GetBalance(ctx context.Context, userID int64) (int64, error)
}

type FAQStorage interface {
	// ListFAQs returns at most limit active entries ordered by position then age.
	ListFAQs(ctx context.Context, authorID int64, limit int) ([]*models.FAQ, error)
}

type MessageStorage interface {
	MessageExists(ctx context.Context, upstreamID string, userID int64) (bool, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	MarkMessageRead(ctx context.Context, id int64) error
}

// TrialSubscription builds the default entitlement granted on registration.
func TrialSubscription(userID int64, days int, now time.Time) *models.Subscription {
	return &models.Subscription{
		UserID:    userID,
		Plan:      "trial",
		ExpiresAt: now.AddDate(0, 0, days),
		CreatedAt: now,
	}
}
