package models

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSeller   Role = "seller"
	RoleCustomer Role = "customer"
)

// User is either a seller owning a WhatsApp account or a customer attached to one.
type User struct {
	ID             int64     `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Phone          string    `json:"phone"`
	ChannelAddress string    `json:"channel_address,omitempty"`
	Role           Role      `json:"role"`
	ParentID       int64     `json:"parent_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is a stored WhatsApp message. Inbound messages are unique per
// (UpstreamID, UserID) where UserID is the receiving seller.
type Message struct {
	ID         int64     `json:"id"`
	UpstreamID string    `json:"upstream_id,omitempty"`
	UserID     int64     `json:"user_id"`
	CustomerID int64     `json:"customer_id,omitempty"`
	Direction  Direction `json:"direction"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"image_url,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionApproved TransactionStatus = "approved"
	TransactionRejected TransactionStatus = "rejected"
)

// Transaction is a deposit submitted by a customer and approved by its parent seller.
type Transaction struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	ApproverID      int64             `json:"approver_id"`
	Amount          int64             `json:"amount"`
	ReferenceID     string            `json:"reference_id"`
	TransactionDate string            `json:"transaction_date"`
	TransactionTime string            `json:"transaction_time,omitempty"`
	AccountSource   string            `json:"account_source,omitempty"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
	ReceiptImageURL string            `json:"receipt_image_url,omitempty"`
	Status          TransactionStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// FAQ is a question/answer pair authored by a seller.
type FAQ struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Position  int       `json:"position"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscription grants access until ExpiresAt.
type Subscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
