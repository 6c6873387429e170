// Package store provides storage backends for tiendabot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/tiendabot/tiendabot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const tenantColumns = `id, identity_key, state, contact_address, keyword_bot, menu_bot, greeting_on, greeting_text, notify_address, created_at, updated_at`

func scanSQLiteTenant(scan func(dest ...interface{}) error) (*models.Tenant, error) {
	var t models.Tenant
	var state string
	var keywordBot, menuBot, greetingOn int
	if err := scan(&t.ID, &t.IdentityKey, &state, &t.ContactAddress, &keywordBot, &menuBot, &greetingOn,
		&t.GreetingText, &t.NotifyAddress, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.State = models.SessionState(state)
	t.KeywordBotEnabled = keywordBot != 0
	t.MenuBotEnabled = menuBot != 0
	t.GreetingEnabled = greetingOn != 0
	return &t, nil
}

// GetTenant retrieves a tenant session by id. Returns (nil, nil) if absent.
func (s *SQLiteStore) GetTenant(id int64) (*models.Tenant, error) {
	row := s.db.QueryRow(`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanSQLiteTenant(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTenant failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get tenant %d: %w", id, err)
	}
	return t, nil
}

// ListTenantsByState retrieves all tenants whose persisted state matches.
func (s *SQLiteStore) ListTenantsByState(state models.SessionState) ([]models.Tenant, error) {
	rows, err := s.db.Query(`SELECT `+tenantColumns+` FROM tenants WHERE state = ?`, string(state))
	if err != nil {
		slog.Error("SQLiteStore ListTenantsByState query failed", "error", err, "state", state)
		return nil, fmt.Errorf("failed to query tenants by state: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanSQLiteTenant(rows.Scan)
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
func (s *SQLiteStore) SaveTenant(t *models.Tenant) error {
	now := time.Now()
	if t.ID == 0 {
		t.CreatedAt = now
		t.UpdatedAt = now
		res, err := s.db.Exec(`INSERT INTO tenants (identity_key, state, contact_address, keyword_bot, menu_bot, greeting_on, greeting_text, notify_address, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.IdentityKey, string(t.State), t.ContactAddress, boolToInt(t.KeywordBotEnabled), boolToInt(t.MenuBotEnabled), boolToInt(t.GreetingEnabled),
			t.GreetingText, t.NotifyAddress, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			slog.Error("SQLiteStore SaveTenant insert failed", "error", err)
			return fmt.Errorf("failed to insert tenant: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read tenant id: %w", err)
		}
		t.ID = id
		return nil
	}

	t.UpdatedAt = now
	_, err := s.db.Exec(`UPDATE tenants SET identity_key = ?, state = ?, contact_address = ?, keyword_bot = ?, menu_bot = ?, greeting_on = ?, greeting_text = ?, notify_address = ?, updated_at = ? WHERE id = ?`,
		t.IdentityKey, string(t.State), t.ContactAddress, boolToInt(t.KeywordBotEnabled), boolToInt(t.MenuBotEnabled), boolToInt(t.GreetingEnabled),
		t.GreetingText, t.NotifyAddress, t.UpdatedAt, t.ID)
	if err != nil {
		slog.Error("SQLiteStore SaveTenant update failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to update tenant %d: %w", t.ID, err)
	}
	return nil
}

// UpdateTenantState persists a lifecycle transition. The contact address
// is only overwritten when non-empty.
func (s *SQLiteStore) UpdateTenantState(id int64, state models.SessionState, contactAddress string) error {
	var err error
	if contactAddress != "" {
		_, err = s.db.Exec(`UPDATE tenants SET state = ?, contact_address = ?, updated_at = ? WHERE id = ?`,
			string(state), contactAddress, time.Now(), id)
	} else {
		_, err = s.db.Exec(`UPDATE tenants SET state = ?, updated_at = ? WHERE id = ?`,
			string(state), time.Now(), id)
	}
	if err != nil {
		slog.Error("SQLiteStore UpdateTenantState failed", "error", err, "id", id, "state", state)
		return fmt.Errorf("failed to update tenant %d state: %w", id, err)
	}
	return nil
}

// UpdateTenantIdentity persists the transport identity key for a tenant.
func (s *SQLiteStore) UpdateTenantIdentity(id int64, identityKey string) error {
	_, err := s.db.Exec(`UPDATE tenants SET identity_key = ?, updated_at = ? WHERE id = ?`, identityKey, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateTenantIdentity failed", "error", err, "id", id)
		return fmt.Errorf("failed to update tenant %d identity: %w", id, err)
	}
	return nil
}

const orderColumns = `id, tenant_id, customer, status, pending_product_id, customer_name, delivery_address, latitude, longitude, created_at, updated_at`

func scanOrder(scan func(dest ...interface{}) error) (*models.Order, error) {
	var o models.Order
	var status string
	var lat, lng sql.NullFloat64
	if err := scan(&o.ID, &o.TenantID, &o.Customer, &status, &o.PendingProductID, &o.CustomerName,
		&o.DeliveryAddress, &lat, &lng, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	o.Latitude = nullFloatPtr(lat)
	o.Longitude = nullFloatPtr(lng)
	return &o, nil
}

// GetOrder retrieves an order by id. Returns (nil, nil) if absent.
func (s *SQLiteStore) GetOrder(id int64) (*models.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOrder failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return o, nil
}

// GetOpenOrder retrieves the single non-terminal order for a (tenant,
// customer) pair, or (nil, nil) if none is open.
func (s *SQLiteStore) GetOpenOrder(tenantID int64, customer string) (*models.Order, error) {
	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE tenant_id = ? AND customer = ? AND status != ? ORDER BY id DESC LIMIT 1`,
		tenantID, customer, string(models.OrderConfirmed))
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOpenOrder failed", "error", err, "tenant_id", tenantID, "customer", customer)
		return nil, fmt.Errorf("failed to get open order for %s: %w", customer, err)
	}
	return o, nil
}

// CreateOrder inserts a new order and populates its id.
func (s *SQLiteStore) CreateOrder(o *models.Order) error {
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	res, err := s.db.Exec(`INSERT INTO orders (tenant_id, customer, status, pending_product_id, customer_name, delivery_address, latitude, longitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.TenantID, o.Customer, string(o.Status), o.PendingProductID, o.CustomerName, o.DeliveryAddress,
		o.Latitude, o.Longitude, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateOrder failed", "error", err, "tenant_id", o.TenantID, "customer", o.Customer)
		return fmt.Errorf("failed to insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read order id: %w", err)
	}
	o.ID = id
	return nil
}

// UpdateOrder persists the mutable fields of an order.
func (s *SQLiteStore) UpdateOrder(o *models.Order) error {
	o.UpdatedAt = time.Now()
	_, err := s.db.Exec(`UPDATE orders SET status = ?, pending_product_id = ?, customer_name = ?, delivery_address = ?, latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
		string(o.Status), o.PendingProductID, o.CustomerName, o.DeliveryAddress, o.Latitude, o.Longitude, o.UpdatedAt, o.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateOrder failed", "error", err, "id", o.ID)
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	return nil
}

// DeleteOrder removes an order and its items.
func (s *SQLiteStore) DeleteOrder(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM order_items WHERE order_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteOrder items failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete items of order %d: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM orders WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteOrder failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	return nil
}

// UpsertOrderItem inserts a cart line or accumulates quantity onto an
// existing one, as a single atomic statement.
func (s *SQLiteStore) UpsertOrderItem(orderID, productID int64, addQuantity int) error {
	_, err := s.db.Exec(`INSERT INTO order_items (order_id, product_id, quantity) VALUES (?, ?, ?)
		ON CONFLICT(order_id, product_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		orderID, productID, addQuantity)
	if err != nil {
		slog.Error("SQLiteStore UpsertOrderItem failed", "error", err, "order_id", orderID, "product_id", productID)
		return fmt.Errorf("failed to upsert order item: %w", err)
	}
	return nil
}

// DeleteOrderItem removes a cart line by product id.
func (s *SQLiteStore) DeleteOrderItem(orderID, productID int64) error {
	_, err := s.db.Exec(`DELETE FROM order_items WHERE order_id = ? AND product_id = ?`, orderID, productID)
	if err != nil {
		slog.Error("SQLiteStore DeleteOrderItem failed", "error", err, "order_id", orderID, "product_id", productID)
		return fmt.Errorf("failed to delete order item: %w", err)
	}
	return nil
}

// ListOrderItems retrieves the cart lines of an order.
func (s *SQLiteStore) ListOrderItems(orderID int64) ([]models.OrderItem, error) {
	rows, err := s.db.Query(`SELECT id, order_id, product_id, quantity FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		slog.Error("SQLiteStore ListOrderItems query failed", "error", err, "order_id", orderID)
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
func (s *SQLiteStore) ListActiveCategories(tenantID int64) ([]models.Category, error) {
	rows, err := s.db.Query(`SELECT id, tenant_id, name, rank, active FROM categories WHERE tenant_id = ? AND active = 1 ORDER BY rank, id`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveCategories query failed", "error", err, "tenant_id", tenantID)
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		var active int
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Rank, &active); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		c.Active = active != 0
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category rows: %w", err)
	}
	return cats, nil
}

// ListActiveProducts retrieves the active products of a category ordered by display rank.
func (s *SQLiteStore) ListActiveProducts(tenantID, categoryID int64) ([]models.Product, error) {
	rows, err := s.db.Query(`SELECT id, tenant_id, category_id, name, price, rank, active FROM products WHERE tenant_id = ? AND category_id = ? AND active = 1 ORDER BY rank, id`,
		tenantID, categoryID)
	if err != nil {
		slog.Error("SQLiteStore ListActiveProducts query failed", "error", err, "tenant_id", tenantID, "category_id", categoryID)
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var active int
		if err := rows.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Price, &p.Rank, &active); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		p.Active = active != 0
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product rows: %w", err)
	}
	return products, nil
}

// GetProduct retrieves one product of a tenant. Returns (nil, nil) if absent.
func (s *SQLiteStore) GetProduct(tenantID, productID int64) (*models.Product, error) {
	row := s.db.QueryRow(`SELECT id, tenant_id, category_id, name, price, rank, active FROM products WHERE tenant_id = ? AND id = ?`, tenantID, productID)
	var p models.Product
	var active int
	err := row.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Price, &p.Rank, &active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProduct failed", "error", err, "tenant_id", tenantID, "product_id", productID)
		return nil, fmt.Errorf("failed to get product %d: %w", productID, err)
	}
	p.Active = active != 0
	return &p, nil
}

// ListKeywordReplies retrieves every keyword of a tenant joined with its
// reply text and media attachments (media in stored rank order).
func (s *SQLiteStore) ListKeywordReplies(tenantID int64) ([]models.KeywordReply, error) {
	rows, err := s.db.Query(`SELECT k.keyword, r.id, r.text FROM reply_keywords k JOIN replies r ON r.id = k.reply_id WHERE r.tenant_id = ?`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListKeywordReplies query failed", "error", err, "tenant_id", tenantID)
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

	media, err := s.replyMedia(tenantID)
	if err != nil {
		return nil, err
	}
	for i := range replies {
		replies[i].Media = media[replies[i].ReplyID]
	}
	return replies, nil
}

// replyMedia loads all reply media of a tenant grouped by reply id.
func (s *SQLiteStore) replyMedia(tenantID int64) (map[int64][]string, error) {
	rows, err := s.db.Query(`SELECT m.reply_id, m.url FROM reply_media m JOIN replies r ON r.id = m.reply_id WHERE r.tenant_id = ? ORDER BY m.reply_id, m.rank`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore replyMedia query failed", "error", err, "tenant_id", tenantID)
		return nil, fmt.Errorf("failed to query reply media: %w", err)
	}
	defer rows.Close()

	media := make(map[int64][]string)
	for rows.Next() {
		var replyID int64
		var url string
		if err := rows.Scan(&replyID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan reply media row: %w", err)
		}
		media[replyID] = append(media[replyID], url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reply media rows: %w", err)
	}
	return media, nil
}

// GetProfile retrieves a customer profile with its saved addresses.
// Returns (nil, nil) if the contact has no profile.
func (s *SQLiteStore) GetProfile(contact string) (*models.CustomerProfile, error) {
	row := s.db.QueryRow(`SELECT contact, name FROM profiles WHERE contact = ?`, contact)
	var p models.CustomerProfile
	err := row.Scan(&p.Contact, &p.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "contact", contact)
		return nil, fmt.Errorf("failed to get profile for %s: %w", contact, err)
	}

	rows, err := s.db.Query(`SELECT id, contact, address FROM profile_addresses WHERE contact = ? ORDER BY id`, contact)
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
func (s *SQLiteStore) SaveProfileName(contact, name string) error {
	_, err := s.db.Exec(`INSERT INTO profiles (contact, name) VALUES (?, ?)
		ON CONFLICT(contact) DO UPDATE SET name = excluded.name`, contact, name)
	if err != nil {
		slog.Error("SQLiteStore SaveProfileName failed", "error", err, "contact", contact)
		return fmt.Errorf("failed to save profile name for %s: %w", contact, err)
	}
	return nil
}

// AddProfileAddress appends a saved delivery address and returns its id.
func (s *SQLiteStore) AddProfileAddress(contact, address string) (int64, error) {
	// Ensure the profile row exists so the address has an owner.
	if _, err := s.db.Exec(`INSERT INTO profiles (contact, name) VALUES (?, '') ON CONFLICT(contact) DO NOTHING`, contact); err != nil {
		return 0, fmt.Errorf("failed to ensure profile for %s: %w", contact, err)
	}
	res, err := s.db.Exec(`INSERT INTO profile_addresses (contact, address) VALUES (?, ?)`, contact, address)
	if err != nil {
		slog.Error("SQLiteStore AddProfileAddress failed", "error", err, "contact", contact)
		return 0, fmt.Errorf("failed to add profile address for %s: %w", contact, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read address id: %w", err)
	}
	return id, nil
}

// GetProfileAddress retrieves one saved address by id. Returns (nil, nil) if absent.
func (s *SQLiteStore) GetProfileAddress(id int64) (*models.ProfileAddress, error) {
	row := s.db.QueryRow(`SELECT id, contact, address FROM profile_addresses WHERE id = ?`, id)
	var a models.ProfileAddress
	err := row.Scan(&a.ID, &a.Contact, &a.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfileAddress failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile address %d: %w", id, err)
	}
	return &a, nil
}

// LastGreeting retrieves the last greeting timestamp for a (tenant,
// contact) pair, or (nil, nil) if none is recorded.
func (s *SQLiteStore) LastGreeting(tenantID int64, contact string) (*time.Time, error) {
	row := s.db.QueryRow(`SELECT last_sent FROM greeting_log WHERE tenant_id = ? AND contact = ?`, tenantID, contact)
	var at time.Time
	err := row.Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LastGreeting failed", "error", err, "tenant_id", tenantID, "contact", contact)
		return nil, fmt.Errorf("failed to get greeting log: %w", err)
	}
	return &at, nil
}

// SetLastGreeting upserts the greeting timestamp for a (tenant, contact) pair.
func (s *SQLiteStore) SetLastGreeting(tenantID int64, contact string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO greeting_log (tenant_id, contact, last_sent) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, contact) DO UPDATE SET last_sent = excluded.last_sent`, tenantID, contact, at)
	if err != nil {
		slog.Error("SQLiteStore SetLastGreeting failed", "error", err, "tenant_id", tenantID, "contact", contact)
		return fmt.Errorf("failed to set greeting log: %w", err)
	}
	return nil
}

// ClearGreeting removes the greeting log entry for a (tenant, contact) pair.
func (s *SQLiteStore) ClearGreeting(tenantID int64, contact string) error {
	_, err := s.db.Exec(`DELETE FROM greeting_log WHERE tenant_id = ? AND contact = ?`, tenantID, contact)
	if err != nil {
		slog.Error("SQLiteStore ClearGreeting failed", "error", err, "tenant_id", tenantID, "contact", contact)
		return fmt.Errorf("failed to clear greeting log: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
