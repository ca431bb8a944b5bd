package models

import "time"

type Product struct {
	ID          int64     `json:"id"`
	SellerID    int64     `json:"seller_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"image_url,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CartItem is one line of a customer's cart. SellerID is the product owner,
// which may differ between lines of the same cart.
type CartItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	SellerID  int64     `json:"seller_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *CartItem) Total() int64 {
	return c.UnitPrice * int64(c.Quantity)
}

type Address struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	FullAddress string    `json:"full_address"`
	PostalCode  string    `json:"postal_code"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderCanceled  OrderStatus = "canceled"
)

type Order struct {
	ID             int64       `json:"id"`
	BuyerID        int64       `json:"buyer_id"`
	SellerID       int64       `json:"seller_id"`
	AddressID      int64       `json:"address_id"`
	TotalAmount    int64       `json:"total_amount"`
	ShippingMethod string      `json:"shipping_method"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

type OrderItem struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}
