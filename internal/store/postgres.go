// Package store provides storage backends for tiendabot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/tiendabot/tiendabot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPostgresTenant(scan func(dest ...interface{}) error) (*models.Tenant, error) {
	var t models.Tenant
	var state string
	if err := scan(&t.ID, &t.IdentityKey, &state, &t.ContactAddress, &t.KeywordBotEnabled, &t.MenuBotEnabled,
		&t.GreetingEnabled, &t.GreetingText, &t.NotifyAddress, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.State = models.SessionState(state)
	return &t, nil
}

// GetTenant retrieves a tenant session by id. Returns (nil, nil) if absent.
func (s *PostgresStore) GetTenant(id int64) (*models.Tenant, error) {
	row := s.db.QueryRow(`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanPostgresTenant(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTenant failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get tenant %d: %w", id, err)
	}
	return t, nil
}

// ListTenantsByState retrieves all tenants whose persisted state matches.
func (s *PostgresStore) ListTenantsByState(state models.SessionState) ([]models.Tenant, error) {
	rows, err := s.db.Query(`SELECT `+tenantColumns+` FROM tenants WHERE state = $1`, string(state))
	if err != nil {
		slog.Error("PostgresStore ListTenantsByState query failed", "error", err, "state", state)
		return nil, fmt.Errorf("failed to query tenants by state: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanPostgresTenant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenant rows: %w", err)
	}
	return tenants, nil
}

// SaveTenant inserts a new tenant (ID zero) or updates an existing one.
func (s *PostgresStore) SaveTenant(t *models.Tenant) error {
	now := time.Now()
	if t.ID == 0 {
		t.CreatedAt = now
		t.UpdatedAt = now
		err := s.db.QueryRow(`INSERT INTO tenants (identity_key, state, contact_address, keyword_bot, menu_bot, greeting_on, greeting_text, notify_address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
			t.IdentityKey, string(t.State), t.ContactAddress, t.KeywordBotEnabled, t.MenuBotEnabled, t.GreetingEnabled,
			t.GreetingText, t.NotifyAddress, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
		if err != nil {
			slog.Error("PostgresStore SaveTenant insert failed", "error", err)
			return fmt.Errorf("failed to insert tenant: %w", err)
		}
		return nil
	}

	t.UpdatedAt = now
	_, err := s.db.Exec(`UPDATE tenants SET identity_key = $1, state = $2, contact_address = $3, keyword_bot = $4, menu_bot = $5, greeting_on = $6, greeting_text = $7, notify_address = $8, updated_at = $9 WHERE id = $10`,
		t.IdentityKey, string(t.State), t.ContactAddress, t.KeywordBotEnabled, t.MenuBotEnabled, t.GreetingEnabled,
		t.GreetingText, t.NotifyAddress, t.UpdatedAt, t.ID)
	if err != nil {
		slog.Error("PostgresStore SaveTenant update failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to update tenant %d: %w", t.ID, err)
	}
	return nil
}

// UpdateTenantState persists a lifecycle transition. The contact address
// is only overwritten when non-empty.
func (s *PostgresStore) UpdateTenantState(id int64, state models.SessionState, contactAddress string) error {
	var err error
	if contactAddress != "" {
		_, err = s.db.Exec(`UPDATE tenants SET state = $1, contact_address = $2, updated_at = $3 WHERE id = $4`,
			string(state), contactAddress, time.Now(), id)
	} else {
		_, err = s.db.Exec(`UPDATE tenants SET state = $1, updated_at = $2 WHERE id = $3`,
			string(state), time.Now(), id)
	}
	if err != nil {
		slog.Error("PostgresStore UpdateTenantState failed", "error", err, "id", id, "state", state)
		return fmt.Errorf("failed to update tenant %d state: %w", id, err)
	}
	return nil
}

// UpdateTenantIdentity persists the transport identity key for a tenant.
func (s *PostgresStore) UpdateTenantIdentity(id int64, identityKey string) error {
	_, err := s.db.Exec(`UPDATE tenants SET identity_key = $1, updated_at = $2 WHERE id = $3`, identityKey, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateTenantIdentity failed", "error", err, "id", id)
		return fmt.Errorf("failed to update tenant %d identity: %w", id, err)
	}
	return nil
}

// GetOrder retrieves an order by id. Returns (nil, nil) if absent.
func (s *PostgresStore) GetOrder(id int64) (*models.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOrder failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return o, nil
}

// GetOpenOrder retrieves the single non-terminal order for a (tenant,
// customer) pair, or (nil, nil) if none is open.
func (s *PostgresStore) GetOpenOrder(tenantID int64, customer string) (*models.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE tenant_id = $1 AND customer = $2 AND status != $3 ORDER BY id DESC LIMIT 1`,
		tenantID, customer, string(models.OrderConfirmed))
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOpenOrder failed", "error", err, "tenant_id", tenantID, "customer", customer)
		return nil, fmt.Errorf("failed to get open order for %s: %w", customer, err)
	}
	return o, nil
}

// CreateOrder inserts a new order and populates its id.
func (s *PostgresStore) CreateOrder(o *models.Order) error {
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	err := s.db.QueryRow(`INSERT INTO orders (tenant_id, customer, status, pending_product_id, customer_name, delivery_address, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		o.TenantID, o.Customer, string(o.Status), o.PendingProductID, o.CustomerName, o.DeliveryAddress,
		o.Latitude, o.Longitude, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		slog.Error("PostgresStore CreateOrder failed", "error", err, "tenant_id", o.TenantID, "customer", o.Customer)
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// UpdateOrder persists the mutable fields of an order.
func (s *PostgresStore) UpdateOrder(o *models.Order) error {
	o.UpdatedAt = time.Now()
	_, err := s.db.Exec(`UPDATE orders SET status = $1, pending_product_id = $2, customer_name = $3, delivery_address = $4, latitude = $5, longitude = $6, updated_at = $7 WHERE id = $8`,
		string(o.Status), o.PendingProductID, o.CustomerName, o.DeliveryAddress, o.Latitude, o.Longitude, o.UpdatedAt, o.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateOrder failed", "error", err, "id", o.ID)
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	return nil
}

// DeleteOrder removes an order and its items.
func (s *PostgresStore) DeleteOrder(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteOrder items failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete items of order %d: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM orders WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteOrder failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	return nil
}

// UpsertOrderItem inserts a cart line or accumulates quantity onto an
// existing one, as a single atomic statement.
func (s *PostgresStore) UpsertOrderItem(orderID, productID int64, addQuantity int) error {
	_, err := s.db.Exec(`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT(order_id, product_id) DO UPDATE SET quantity = order_items.quantity + EXCLUDED.quantity`,
		orderID, productID, addQuantity)
	if err != nil {
		slog.Error("PostgresStore UpsertOrderItem failed", "error", err, "order_id", orderID, "product_id", productID)
		return fmt.Errorf("failed to upsert order item: %w", err)
	}
	return nil
}

// DeleteOrderItem removes a cart line by product id.
func (s *PostgresStore) DeleteOrderItem(orderID, productID int64) error {
	_, err := s.db.Exec(`DELETE FROM order_items WHERE order_id = $1 AND product_id = $2`, orderID, productID)
	if err != nil {
		slog.Error("PostgresStore DeleteOrderItem failed", "error", err, "order_id", orderID, "product_id", productID)
		return fmt.Errorf("failed to delete order item: %w", err)
	}
	return nil
}

// ListOrderItems retrieves the cart lines of an order.
func (s *PostgresStore) ListOrderItems(orderID int64) ([]models.OrderItem, error) {
	rows, err := s.db.Query(`SELECT id, order_id, product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		slog.Error("PostgresStore ListOrderItems query failed", "error", err, "order_id", orderID)
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order item rows: %w", err)
	}
	return items, nil
}

// ListActiveCategories retrieves a tenant's active categories ordered by display rank.
func (s *PostgresStore) ListActiveCategories(tenantID int64) ([]models.Category, error) {
	rows, err := s.db.Query(`SELECT id, tenant_id, name, rank, active FROM categories WHERE tenant_id = $1 AND active ORDER BY rank, id`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListActiveCategories query failed", "error", err, "tenant_id", tenantID)
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Rank, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category rows: %w", err)
	}
	return cats, nil
}

// ListActiveProducts retrieves the active products of a category ordered by display rank.
func (s *PostgresStore) ListActiveProducts(tenantID, categoryID int64) ([]models.Product, error) {
	rows, err := s.db.Query(`SELECT id, tenant_id, category_id, name, price, rank, active FROM products WHERE tenant_id = $1 AND category_id = $2 AND active ORDER BY rank, id`,
		tenantID, categoryID)
	if err != nil {
		slog.Error("PostgresStore ListActiveProducts query failed", "error", err, "tenant_id", tenantID, "category_id", categoryID)
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Price, &p.Rank, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product rows: %w", err)
	}
	return products, nil
}

// GetProduct retrieves one product of a tenant. Returns (nil, nil) if absent.
func (s *PostgresStore) GetProduct(tenantID, productID int64) (*models.Product, error) {
	row := s.db.QueryRow(`SELECT id, tenant_id, category_id, name, price, rank, active FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, productID)
	var p models.Product
	err := row.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Price, &p.Rank, &p.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProduct failed", "error", err, "tenant_id", tenantID, "product_id", productID)
		return nil, fmt.Errorf("failed to get product %d: %w", productID, err)
	}
	return &p, nil
}

// ListKeywordReplies retrieves every keyword of a tenant joined with its
// reply text and media attachments (media in stored rank order).
func (s *PostgresStore) ListKeywordReplies(tenantID int64) ([]models.KeywordReply, error) {
	rows, err := s.db.Query(`SELECT k.keyword, r.id, r.text FROM reply_keywords k JOIN replies r ON r.id = k.reply_id WHERE r.tenant_id = $1`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListKeywordReplies query failed", "error", err, "tenant_id", tenantID)
		return nil, fmt.Errorf("failed to query keyword replies: %w", err)
	}
	defer rows.Close()

	var replies []models.KeywordReply
	for rows.Next() {
		kr := models.KeywordReply{TenantID: tenantID}
		if err := rows.Scan(&kr.Keyword, &kr.ReplyID, &kr.Text); err != nil {
			return nil, fmt.Errorf("failed to scan keyword reply row: %w", err)
		}
		replies = append(replies, kr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keyword reply rows: %w", err)
	}

	mediaRows, err := s.db.Query(`SELECT m.reply_id, m.url FROM reply_media m JOIN replies r ON r.id = m.reply_id WHERE r.tenant_id = $1 ORDER BY m.reply_id, m.rank`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reply media: %w", err)
	}
	defer mediaRows.Close()

	media := make(map[int64][]string)
	for mediaRows.Next() {
		var replyID int64
		var url string
		if err := mediaRows.Scan(&replyID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan reply media row: %w", err)
		}
		media[replyID] = append(media[replyID], url)
	}
	if err := mediaRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reply media rows: %w", err)
	}
	for i := range replies {
		replies[i].Media = media[replies[i].ReplyID]
	}
	return replies, nil
}

// GetProfile retrieves a customer profile with its saved addresses.
// Returns (nil, nil) if the contact has no profile.
func (s *PostgresStore) GetProfile(contact string) (*models.CustomerProfile, error) {
	row := s.db.QueryRow(`SELECT contact, name FROM profiles WHERE contact = $1`, contact)
	var p models.CustomerProfile
	err := row.Scan(&p.Contact, &p.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "contact", contact)
		return nil, fmt.Errorf("failed to get profile for %s: %w", contact, err)
	}

	rows, err := s.db.Query(`SELECT id, contact, address FROM profile_addresses WHERE contact = $1 ORDER BY id`, contact)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile addresses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.ProfileAddress
		if err := rows.Scan(&a.ID, &a.Contact, &a.Address); err != nil {
			return nil, fmt.Errorf("failed to scan profile address row: %w", err)
		}
		p.Addresses = append(p.Addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile address rows: %w", err)
	}
	return &p, nil
}

// SaveProfileName upserts the saved display name for a contact.
func (s *PostgresStore) SaveProfileName(contact, name string) error {
	_, err := s.db.Exec(`INSERT INTO profiles (contact, name) VALUES ($1, $2)
		ON CONFLICT(contact) DO UPDATE SET name = EXCLUDED.name`, contact, name)
	if err != nil {
		slog.Error("PostgresStore SaveProfileName failed", "error", err, "contact", contact)
		return fmt.Errorf("failed to save profile name for %s: %w", contact, err)
	}
	return nil
}

// AddProfileAddress appends a saved delivery address and returns its id.
func (s *PostgresStore) AddProfileAddress(contact, address string) (int64, error) {
	if _, err := s.db.Exec(`INSERT INTO profiles (contact, name) VALUES ($1, '') ON CONFLICT(contact) DO NOTHING`, contact); err != nil {
		return 0, fmt.Errorf("failed to ensure profile for %s: %w", contact, err)
	}
	var id int64
	err := s.db.QueryRow(`INSERT INTO profile_addresses (contact, address) VALUES ($1, $2) RETURNING id`, contact, address).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AddProfileAddress failed", "error", err, "contact", contact)
		return 0, fmt.Errorf("failed to add profile address for %s: %w", contact, err)
	}
	return id, nil
}

// GetProfileAddress retrieves one saved address by id. Returns (nil, nil) if absent.
func (s *PostgresStore) GetProfileAddress(id int64) (*models.ProfileAddress, error) {
	row := s.db.QueryRow(`SELECT id, contact, address FROM profile_addresses WHERE id = $1`, id)
	var a models.ProfileAddress
	err := row.Scan(&a.ID, &a.Contact, &a.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfileAddress failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile address %d: %w", id, err)
	}
	return &a, nil
}

// LastGreeting retrieves the last greeting timestamp for a (tenant,
// contact) pair, or (nil, nil) if none is recorded.
func (s *PostgresStore) LastGreeting(tenantID int64, contact string) (*time.Time, error) {
	row := s.db.QueryRow(`SELECT last_sent FROM greeting_log WHERE tenant_id = $1 AND contact = $2`, tenantID, contact)
	var at time.Time
	err := row.Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LastGreeting failed", "error", err, "tenant_id", tenantID, "contact", contact)
		return nil, fmt.Errorf("failed to get greeting log: %w", err)
	}
	return &at, nil
}

// SetLastGreeting upserts the greeting timestamp for a (tenant, contact) pair.
func (s *PostgresStore) SetLastGreeting(tenantID int64, contact string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO greeting_log (tenant_id, contact, last_sent) VALUES ($1, $2, $3)
		ON CONFLICT(tenant_id, contact) DO UPDATE SET last_sent = EXCLUDED.last_sent`, tenantID, contact, at)
	if err != nil {
		slog.Error("PostgresStore SetLastGreeting failed", "error", err, "tenant_id", tenantID, "contact", contact)
		return fmt.Errorf("failed to set greeting log: %w", err)
	}
	return nil
}

// ClearGreeting removes the greeting log entry for a (tenant, contact) pair.
func (s *PostgresStore) ClearGreeting(tenantID int64, contact string) error {
	_, err := s.db.Exec(`DELETE FROM greeting_log WHERE tenant_id = $1 AND contact = $2`, tenantID, contact)
	if err != nil {
		slog.Error("PostgresStore ClearGreeting failed", "error", err, "tenant_id", tenantID, "contact", contact)
		return fmt.Errorf("failed to clear greeting log: %w", err)
	}
	return nil
}
