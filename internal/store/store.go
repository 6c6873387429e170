// Package store provides storage backends for tiendabot.
//
// It defines the Store interface over tenants, orders, catalog, keyword
// replies, customer profiles and the greeting log, with SQLite,
// PostgreSQL and in-memory implementations. Every write is a single
// statement; no cross-statement transactions are assumed.
package store

import (
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
)

// Store is the persistence contract shared by all components.
// Lookup methods return (nil, nil) when the entity does not exist.
type Store interface {
	// Tenant sessions
	GetTenant(id int64) (*models.Tenant, error)
	ListTenantsByState(state models.SessionState) ([]models.Tenant, error)
	SaveTenant(t *models.Tenant) error
	UpdateTenantState(id int64, state models.SessionState, contactAddress string) error
	UpdateTenantIdentity(id int64, identityKey string) error

	// Orders and cart items
	GetOrder(id int64) (*models.Order, error)
	GetOpenOrder(tenantID int64, customer string) (*models.Order, error)
	CreateOrder(o *models.Order) error
	UpdateOrder(o *models.Order) error
	DeleteOrder(id int64) error
	UpsertOrderItem(orderID, productID int64, addQuantity int) error
	DeleteOrderItem(orderID, productID int64) error
	ListOrderItems(orderID int64) ([]models.OrderItem, error)

	// Catalog (read-only here; managed by the admin surface)
	ListActiveCategories(tenantID int64) ([]models.Category, error)
	ListActiveProducts(tenantID, categoryID int64) ([]models.Product, error)
	GetProduct(tenantID, productID int64) (*models.Product, error)

	// Keyword auto-replies
	ListKeywordReplies(tenantID int64) ([]models.KeywordReply, error)

	// Customer profiles
	GetProfile(contact string) (*models.CustomerProfile, error)
	SaveProfileName(contact, name string) error
	AddProfileAddress(contact, address string) (int64, error)
	GetProfileAddress(id int64) (*models.ProfileAddress, error)

	// Greeting rate-limit log
	LastGreeting(tenantID int64, contact string) (*time.Time, error)
	SetLastGreeting(tenantID int64, contact string, at time.Time) error
	ClearGreeting(tenantID int64, contact string) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}
