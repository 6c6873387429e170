// Package store provides storage backends for tiendabot.
//
// This file implements an in-memory store used by tests and local
// development. It honors the same (nil, nil) not-found semantics as the
// SQL backends.
package store

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tiendabot/tiendabot/internal/models"
)

// InMemoryStore is a mutex-guarded map-based Store implementation.
type InMemoryStore struct {
	mu sync.Mutex

	tenants       map[int64]models.Tenant
	nextTenantID  int64
	orders        map[int64]models.Order
	nextOrderID   int64
	items         map[int64][]models.OrderItem // keyed by order id
	nextItemID    int64
	categories    []models.Category
	products      []models.Product
	keywords      []models.KeywordReply
	profiles      map[string]models.CustomerProfile
	addresses     map[int64]models.ProfileAddress
	nextAddressID int64
	greetings     map[string]time.Time // "tenantID|contact"
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tenants:   make(map[int64]models.Tenant),
		orders:    make(map[int64]models.Order),
		items:     make(map[int64][]models.OrderItem),
		profiles:  make(map[string]models.CustomerProfile),
		addresses: make(map[int64]models.ProfileAddress),
		greetings: make(map[string]time.Time),
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func greetingKey(tenantID int64, contact string) string {
	return strconv.FormatInt(tenantID, 10) + "|" + contact
}

// GetTenant retrieves a tenant session by id. Returns (nil, nil) if absent.
func (s *InMemoryStore) GetTenant(id int64) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// ListTenantsByState retrieves all tenants whose state matches.
func (s *InMemoryStore) ListTenantsByState(state models.SessionState) ([]models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tenant
	for _, t := range s.tenants {
		if t.State == state {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveTenant inserts a new tenant (ID zero) or replaces an existing one.
func (s *InMemoryStore) SaveTenant(t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if t.ID == 0 {
		s.nextTenantID++
		t.ID = s.nextTenantID
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tenants[t.ID] = *t
	return nil
}

// UpdateTenantState persists a lifecycle transition.
func (s *InMemoryStore) UpdateTenantState(id int64, state models.SessionState, contactAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil
	}
	t.State = state
	if contactAddress != "" {
		t.ContactAddress = contactAddress
	}
	t.UpdatedAt = time.Now()
	s.tenants[id] = t
	return nil
}

// UpdateTenantIdentity persists the transport identity key.
func (s *InMemoryStore) UpdateTenantIdentity(id int64, identityKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil
	}
	t.IdentityKey = identityKey
	t.UpdatedAt = time.Now()
	s.tenants[id] = t
	return nil
}

// GetOrder retrieves an order by id. Returns (nil, nil) if absent.
func (s *InMemoryStore) GetOrder(id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// GetOpenOrder retrieves the non-terminal order for a (tenant, customer) pair.
func (s *InMemoryStore) GetOpenOrder(tenantID int64, customer string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Order
	for id := range s.orders {
		o := s.orders[id]
		if o.TenantID == tenantID && o.Customer == customer && !o.Status.IsTerminal() {
			if found == nil || o.ID > found.ID {
				cp := o
				found = &cp
			}
		}
	}
	return found, nil
}

// CreateOrder inserts a new order and populates its id.
func (s *InMemoryStore) CreateOrder(o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrderID++
	o.ID = s.nextOrderID
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ID] = *o
	return nil
}

// UpdateOrder replaces the stored order.
func (s *InMemoryStore) UpdateOrder(o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return nil
	}
	o.UpdatedAt = time.Now()
	s.orders[o.ID] = *o
	return nil
}

// DeleteOrder removes an order and its items.
func (s *InMemoryStore) DeleteOrder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	delete(s.items, id)
	return nil
}

// UpsertOrderItem inserts a cart line or accumulates quantity onto an existing one.
func (s *InMemoryStore) UpsertOrderItem(orderID, productID int64, addQuantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[orderID]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += addQuantity
			return nil
		}
	}
	s.nextItemID++
	s.items[orderID] = append(items, models.OrderItem{
		ID:        s.nextItemID,
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  addQuantity,
	})
	return nil
}

// DeleteOrderItem removes a cart line by product id.
func (s *InMemoryStore) DeleteOrderItem(orderID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[orderID]
	out := items[:0]
	for _, it := range items {
		if it.ProductID != productID {
			out = append(out, it)
		}
	}
	s.items[orderID] = out
	return nil
}

// ListOrderItems retrieves the cart lines of an order.
func (s *InMemoryStore) ListOrderItems(orderID int64) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[orderID]
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

// AddCategory seeds a category (test/dev helper; catalog writes belong to
// the admin surface in production).
func (s *InMemoryStore) AddCategory(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// AddProduct seeds a product (test/dev helper).
func (s *InMemoryStore) AddProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

// AddKeywordReply seeds a keyword reply (test/dev helper).
func (s *InMemoryStore) AddKeywordReply(kr models.KeywordReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, kr)
}

// ListActiveCategories retrieves active categories ordered by display rank.
func (s *InMemoryStore) ListActiveCategories(tenantID int64) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Category
	for _, c := range s.categories {
		if c.TenantID == tenantID && c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListActiveProducts retrieves active products of a category ordered by display rank.
func (s *InMemoryStore) ListActiveProducts(tenantID, categoryID int64) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Product
	for _, p := range s.products {
		if p.TenantID == tenantID && p.CategoryID == categoryID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetProduct retrieves one product of a tenant. Returns (nil, nil) if absent.
func (s *InMemoryStore) GetProduct(tenantID, productID int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.TenantID == tenantID && p.ID == productID {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

// ListKeywordReplies retrieves all keyword replies of a tenant.
func (s *InMemoryStore) ListKeywordReplies(tenantID int64) ([]models.KeywordReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.KeywordReply
	for _, kr := range s.keywords {
		if kr.TenantID == tenantID {
			out = append(out, kr)
		}
	}
	return out, nil
}

// GetProfile retrieves a customer profile with its saved addresses.
func (s *InMemoryStore) GetProfile(contact string) (*models.CustomerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[contact]
	if !ok {
		return nil, nil
	}
	cp := p
	cp.Addresses = nil
	var ids []int64
	for id, a := range s.addresses {
		if a.Contact == contact {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		cp.Addresses = append(cp.Addresses, s.addresses[id])
	}
	return &cp, nil
}

// SaveProfileName upserts the saved display name for a contact.
func (s *InMemoryStore) SaveProfileName(contact, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[contact]
	p.Contact = contact
	p.Name = name
	s.profiles[contact] = p
	return nil
}

// AddProfileAddress appends a saved delivery address and returns its id.
func (s *InMemoryStore) AddProfileAddress(contact, address string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[contact]; !ok {
		s.profiles[contact] = models.CustomerProfile{Contact: contact}
	}
	s.nextAddressID++
	s.addresses[s.nextAddressID] = models.ProfileAddress{ID: s.nextAddressID, Contact: contact, Address: address}
	return s.nextAddressID, nil
}

// GetProfileAddress retrieves one saved address by id.
func (s *InMemoryStore) GetProfileAddress(id int64) (*models.ProfileAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addresses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// LastGreeting retrieves the last greeting timestamp for a (tenant, contact) pair.
func (s *InMemoryStore) LastGreeting(tenantID int64, contact string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.greetings[greetingKey(tenantID, contact)]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

// SetLastGreeting upserts the greeting timestamp for a (tenant, contact) pair.
func (s *InMemoryStore) SetLastGreeting(tenantID int64, contact string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greetings[greetingKey(tenantID, contact)] = at
	return nil
}

// ClearGreeting removes the greeting log entry for a (tenant, contact) pair.
func (s *InMemoryStore) ClearGreeting(tenantID int64, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.greetings, greetingKey(tenantID, contact))
	return nil
}
