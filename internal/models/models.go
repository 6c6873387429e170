// Package models defines the core data structures for tiendabot.
//
// It includes the tenant session, order, catalog, and customer profile
// types shared across modules.
package models

import (
	"errors"
	"time"
)

// SessionState represents the transport lifecycle state of a tenant session.
type SessionState string

const (
	// SessionPendingLogin indicates a login code was issued and not yet scanned.
	SessionPendingLogin SessionState = "pending_login"
	// SessionAuthenticated indicates the device pairing completed.
	SessionAuthenticated SessionState = "authenticated"
	// SessionOperational indicates the session is connected and able to send.
	SessionOperational SessionState = "operational"
	// SessionDisconnected indicates the session is offline.
	SessionDisconnected SessionState = "disconnected"
)

// IsValidSessionState checks if the given session state is supported.
func IsValidSessionState(s SessionState) bool {
	switch s {
	case SessionPendingLogin, SessionAuthenticated, SessionOperational, SessionDisconnected:
		return true
	default:
		return false
	}
}

// Error variables for better error handling and testability
var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrEmptyRecipient    = errors.New("recipient cannot be empty")
	ErrEmptyContent      = errors.New("message content cannot be empty")
)

// Tenant represents one merchant's automated chat identity and configuration.
type Tenant struct {
	ID                int64        `json:"id"`
	IdentityKey       string       `json:"identity_key"` // namespaces transport credentials
	State             SessionState `json:"state"`
	ContactAddress    string       `json:"contact_address,omitempty"` // resolved outbound address
	KeywordBotEnabled bool         `json:"keyword_bot_enabled"`
	MenuBotEnabled    bool         `json:"menu_bot_enabled"`
	GreetingEnabled   bool         `json:"greeting_enabled"`
	GreetingText      string       `json:"greeting_text,omitempty"`
	NotifyAddress     string       `json:"notify_address,omitempty"` // secondary order-summary recipient
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// OrderStatus represents the checkout conversation status of an order.
type OrderStatus string

const (
	// OrderInCart indicates the customer is browsing and adding products.
	OrderInCart OrderStatus = "in_cart"
	// OrderAwaitingQuantity indicates a product was selected and a quantity is expected.
	OrderAwaitingQuantity OrderStatus = "awaiting_quantity"
	// OrderAwaitingName indicates checkout started and a customer name is expected.
	OrderAwaitingName OrderStatus = "awaiting_name"
	// OrderAwaitingAddress indicates a delivery address is expected.
	OrderAwaitingAddress OrderStatus = "awaiting_address"
	// OrderAwaitingLocation indicates a geolocation (or explicit skip) is expected.
	OrderAwaitingLocation OrderStatus = "awaiting_location"
	// OrderConfirmed is the terminal status; the order is immutable afterwards.
	OrderConfirmed OrderStatus = "confirmed"
)

// IsTerminal reports whether the status ends the checkout conversation.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderConfirmed
}

// Order represents one active or historical cart.
type Order struct {
	ID               int64       `json:"id"`
	TenantID         int64       `json:"tenant_id"`
	Customer         string      `json:"customer"` // customer contact address
	Status           OrderStatus `json:"status"`
	PendingProductID int64       `json:"pending_product_id,omitempty"` // set only while awaiting a quantity
	CustomerName     string      `json:"customer_name,omitempty"`
	DeliveryAddress  string      `json:"delivery_address,omitempty"`
	Latitude         *float64    `json:"latitude,omitempty"`
	Longitude        *float64    `json:"longitude,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// OrderItem is a cart line: one product and its quantity.
type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Category is a catalog category shown by the menu bot.
type Category struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"` // display order
	Active   bool   `json:"active"`
}

// Product is a purchasable catalog entry. Price is in minor currency units.
type Product struct {
	ID         int64  `json:"id"`
	TenantID   int64  `json:"tenant_id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Rank       int    `json:"rank"`
	Active     bool   `json:"active"`
}

// KeywordReply is a trigger phrase joined with its canned reply text and media.
// Many keywords may share one underlying reply.
type KeywordReply struct {
	TenantID int64    `json:"tenant_id"`
	Keyword  string   `json:"keyword"`
	ReplyID  int64    `json:"reply_id"`
	Text     string   `json:"text,omitempty"`
	Media    []string `json:"media,omitempty"` // attachment URLs, in send order
}

// ProfileAddress is one saved delivery address of a customer profile.
type ProfileAddress struct {
	ID      int64  `json:"id"`
	Contact string `json:"contact"`
	Address string `json:"address"`
}

// CustomerProfile carries a customer's saved display name and addresses,
// keyed by contact address and reused across orders.
type CustomerProfile struct {
	Contact   string           `json:"contact"`
	Name      string           `json:"name,omitempty"`
	Addresses []ProfileAddress `json:"addresses,omitempty"`
}
