package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tiendabot/tiendabot/internal/greeting"
	"github.com/tiendabot/tiendabot/internal/models"
	"github.com/tiendabot/tiendabot/internal/store"
)

// Sender is the outbound-send capability supplied by the session registry.
type Sender interface {
	Send(ctx context.Context, tenantID int64, to string, content models.Content) error
}

// TimerScheduler is the abandonment-timer capability. Arm is always
// preceded by Clear so exactly one timer is outstanding per order.
type TimerScheduler interface {
	Arm(orderID, tenantID int64, customer string)
	Clear(orderID int64)
}

// Machine drives the cart/checkout conversation for (tenant, customer)
// pairs. Callers serialize invocations per pair; the machine itself
// reads order state fresh on every message.
type Machine struct {
	store  store.Store
	sender Sender
	timers TimerScheduler
}

// NewMachine creates an order state machine.
func NewMachine(st store.Store, sender Sender, timers TimerScheduler) *Machine {
	return &Machine{store: st, sender: sender, timers: timers}
}

// Handle processes one inbound message. It returns true when the
// message was claimed by the shopping flow, false when it should fall
// through to the next dispatch behavior.
func (m *Machine) Handle(ctx context.Context, tenant *models.Tenant, customer, text string) (bool, error) {
	if cmd, ok := ParseCommand(text); ok {
		return m.handleCommand(ctx, tenant, customer, cmd)
	}
	return m.handleFreeText(ctx, tenant, customer, text)
}

func (m *Machine) handleCommand(ctx context.Context, tenant *models.Tenant, customer string, cmd Command) (bool, error) {
	switch cmd.Kind {
	case CmdNewOrder:
		return m.startOrder(ctx, tenant, customer)
	case CmdShowCategories:
		return m.showCategories(ctx, tenant, customer)
	case CmdCategory:
		return m.showProducts(ctx, tenant, customer, cmd.ID)
	case CmdViewCart:
		return m.viewCart(ctx, tenant, customer)
	case CmdProduct:
		return m.selectProduct(ctx, tenant, customer, cmd.ID)
	case CmdRemoveProduct:
		return m.removeProduct(ctx, tenant, customer, cmd.ID)
	case CmdCartConfirm:
		return m.confirmCart(ctx, tenant, customer)
	case CmdAddress:
		return m.selectAddress(ctx, tenant, customer, cmd.ID)
	case CmdNewAddress:
		return m.promptNewAddress(ctx, tenant, customer)
	case CmdSkipLocation:
		return m.finalize(ctx, tenant, customer, nil, nil)
	case CmdLocation:
		lat, lng := cmd.Latitude, cmd.Longitude
		return m.finalize(ctx, tenant, customer, &lat, &lng)
	default:
		return false, nil
	}
}

// startOrder creates an order in InCart and lists the catalog. At most
// one non-terminal order may exist per (tenant, customer), enforced by
// the lookup-before-create check under the caller's per-key lock.
func (m *Machine) startOrder(ctx context.Context, tenant *models.Tenant, customer string) (bool, error) {
	open, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if open != nil {
		m.reply(ctx, tenant.ID, customer, replyOrderAlreadyOpen)
		return true, nil
	}

	o := &models.Order{TenantID: tenant.ID, Customer: customer, Status: models.OrderInCart}
	if err := m.store.CreateOrder(o); err != nil {
		return true, fmt.Errorf("failed to create order: %w", err)
	}
	m.rearm(o.ID, tenant.ID, customer)
	slog.Info("Order started", "tenant_id", tenant.ID, "customer", customer, "order_id", o.ID)

	categories, err := m.store.ListActiveCategories(tenant.ID)
	if err != nil {
		return true, fmt.Errorf("failed to list categories: %w", err)
	}
	m.reply(ctx, tenant.ID, customer, renderCategories(categories))
	return true, nil
}

func (m *Machine) showCategories(ctx context.Context, tenant *models.Tenant, customer string) (bool, error) {
	categories, err := m.store.ListActiveCategories(tenant.ID)
	if err != nil {
		return true, fmt.Errorf("failed to list categories: %w", err)
	}
	m.reply(ctx, tenant.ID, customer, renderCategories(categories))
	return true, nil
}

func (m *Machine) showProducts(ctx context.Context, tenant *models.Tenant, customer string, categoryID int64) (bool, error) {
	categories, err := m.store.ListActiveCategories(tenant.ID)
	if err != nil {
		return true, fmt.Errorf("failed to list categories: %w", err)
	}
	var category *models.Category
	for i := range categories {
		if categories[i].ID == categoryID {
			category = &categories[i]
			break
		}
	}
	if category == nil {
		m.reply(ctx, tenant.ID, customer, replyCategoryNotFound)
		return true, nil
	}

	products, err := m.store.ListActiveProducts(tenant.ID, categoryID)
	if err != nil {
		return true, fmt.Errorf("failed to list products: %w", err)
	}
	m.reply(ctx, tenant.ID, customer, renderProducts(category, products))
	return true, nil
}

func (m *Machine) viewCart(ctx context.Context, tenant *models.Tenant, customer string) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}
	return true, m.sendCart(ctx, tenant, customer, o)
}

func (m *Machine) selectProduct(ctx context.Context, tenant *models.Tenant, customer string, productID int64) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}
	if o.Status != models.OrderInCart && o.Status != models.OrderAwaitingQuantity {
		m.reply(ctx, tenant.ID, customer, replyMidCheckout)
		return true, nil
	}

	p, err := m.store.GetProduct(tenant.ID, productID)
	if err != nil {
		return true, fmt.Errorf("failed to load product %d: %w", productID, err)
	}
	if p == nil {
		m.reply(ctx, tenant.ID, customer, replyProductNotFound)
		return true, nil
	}

	o.PendingProductID = p.ID
	if o.Status == models.OrderInCart {
		if err := m.transition(o, models.OrderAwaitingQuantity); err != nil {
			return true, err
		}
	} else if err := m.store.UpdateOrder(o); err != nil {
		// Re-selecting while a quantity is pending just swaps the product.
		return true, fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	m.rearm(o.ID, tenant.ID, customer)
	m.reply(ctx, tenant.ID, customer, fmt.Sprintf("%s (%s). %s", p.Name, FormatPrice(p.Price), replyQuantityPrompt))
	return true, nil
}

func (m *Machine) removeProduct(ctx context.Context, tenant *models.Tenant, customer string, productID int64) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}

	if err := m.store.DeleteOrderItem(o.ID, productID); err != nil {
		return true, fmt.Errorf("failed to remove product %d from order %d: %w", productID, o.ID, err)
	}
	m.rearm(o.ID, tenant.ID, customer)
	return true, m.sendCart(ctx, tenant, customer, o)
}

// confirmCart starts the checkout question sequence. Customers with a
// saved profile name skip the name question entirely.
func (m *Machine) confirmCart(ctx context.Context, tenant *models.Tenant, customer string) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}
	if o.Status != models.OrderInCart {
		m.reply(ctx, tenant.ID, customer, replyMidCheckout)
		return true, nil
	}

	items, err := m.store.ListOrderItems(o.ID)
	if err != nil {
		return true, fmt.Errorf("failed to list order items: %w", err)
	}
	if len(items) == 0 {
		m.reply(ctx, tenant.ID, customer, replyEmptyCart)
		return true, nil
	}

	profile, err := m.store.GetProfile(customer)
	if err != nil {
		return true, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile != nil && profile.Name != "" {
		o.CustomerName = profile.Name
		if err := m.transition(o, models.OrderAwaitingAddress); err != nil {
			return true, err
		}
		m.rearm(o.ID, tenant.ID, customer)
		m.reply(ctx, tenant.ID, customer, renderAddressPrompt(profile.Addresses))
		return true, nil
	}

	if err := m.transition(o, models.OrderAwaitingName); err != nil {
		return true, err
	}
	m.rearm(o.ID, tenant.ID, customer)
	m.reply(ctx, tenant.ID, customer, replyNamePrompt)
	return true, nil
}

func (m *Machine) selectAddress(ctx context.Context, tenant *models.Tenant, customer string, addressID int64) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}
	if o.Status != models.OrderAwaitingAddress {
		m.reply(ctx, tenant.ID, customer, replyMidCheckout)
		return true, nil
	}

	addr, err := m.store.GetProfileAddress(addressID)
	if err != nil {
		return true, fmt.Errorf("failed to load address %d: %w", addressID, err)
	}
	if addr == nil || addr.Contact != customer {
		m.reply(ctx, tenant.ID, customer, replyAddressUnknown)
		return true, nil
	}

	o.DeliveryAddress = addr.Address
	if err := m.transition(o, models.OrderAwaitingLocation); err != nil {
		return true, err
	}
	m.rearm(o.ID, tenant.ID, customer)
	m.reply(ctx, tenant.ID, customer, replyLocationPrompt)
	return true, nil
}

func (m *Machine) promptNewAddress(ctx context.Context, tenant *models.Tenant, customer string) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}
	if o.Status != models.OrderAwaitingAddress {
		m.reply(ctx, tenant.ID, customer, replyMidCheckout)
		return true, nil
	}
	m.reply(ctx, tenant.ID, customer, replyNewAddressPrompt)
	return true, nil
}

// finalize confirms the order. The timer is cancelled, the greeting
// rate-limit log is cleared so a stale entry cannot suppress a future
// greeting, and the summary goes to the customer plus the tenant's
// notification address when one is configured.
func (m *Machine) finalize(ctx context.Context, tenant *models.Tenant, customer string, lat, lng *float64) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return true, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		m.reply(ctx, tenant.ID, customer, replyNoOpenOrder)
		return true, nil
	}
	if o.Status != models.OrderAwaitingLocation {
		m.reply(ctx, tenant.ID, customer, replyMidCheckout)
		return true, nil
	}

	o.Latitude = lat
	o.Longitude = lng
	if err := m.transition(o, models.OrderConfirmed); err != nil {
		return true, err
	}
	m.timers.Clear(o.ID)
	for _, key := range []string{customer, greeting.MenuGuideKey(customer)} {
		if err := m.store.ClearGreeting(tenant.ID, key); err != nil {
			slog.Error("Failed to clear greeting log after confirmation", "error", err, "tenant_id", tenant.ID, "contact", key)
		}
	}
	slog.Info("Order confirmed", "tenant_id", tenant.ID, "customer", customer, "order_id", o.ID)

	items, err := m.store.ListOrderItems(o.ID)
	if err != nil {
		return true, fmt.Errorf("failed to list order items: %w", err)
	}
	lines, total, err := buildCartLines(items, func(id int64) (*models.Product, error) {
		return m.store.GetProduct(tenant.ID, id)
	})
	if err != nil {
		return true, fmt.Errorf("failed to compute order summary: %w", err)
	}

	summary := renderSummary(o, lines, total)
	m.reply(ctx, tenant.ID, customer, summary)
	if tenant.NotifyAddress != "" {
		m.reply(ctx, tenant.ID, tenant.NotifyAddress, summary)
	}
	return true, nil
}

// handleFreeText handles non-command text according to the open order's
// status. Text with no open order, or while the order is not awaiting
// input, is not claimed and falls through to the greeting behavior.
func (m *Machine) handleFreeText(ctx context.Context, tenant *models.Tenant, customer, text string) (bool, error) {
	o, err := m.store.GetOpenOrder(tenant.ID, customer)
	if err != nil {
		return false, fmt.Errorf("failed to look up open order: %w", err)
	}
	if o == nil {
		return false, nil
	}

	switch o.Status {
	case models.OrderAwaitingQuantity:
		return true, m.applyQuantity(ctx, tenant, customer, o, text)
	case models.OrderAwaitingName:
		return true, m.applyName(ctx, tenant, customer, o, text)
	case models.OrderAwaitingAddress:
		return true, m.applyAddress(ctx, tenant, customer, o, text)
	case models.OrderAwaitingLocation:
		m.reply(ctx, tenant.ID, customer, replyLocationPrompt)
		return true, nil
	default:
		return false, nil
	}
}

func (m *Machine) applyQuantity(ctx context.Context, tenant *models.Tenant, customer string, o *models.Order, text string) error {
	qty, ok := ParseQuantity(text)
	if !ok {
		m.reply(ctx, tenant.ID, customer, replyQuantityInvalid)
		return nil
	}

	if err := m.store.UpsertOrderItem(o.ID, o.PendingProductID, qty); err != nil {
		return fmt.Errorf("failed to add item to order %d: %w", o.ID, err)
	}
	o.PendingProductID = 0
	if err := m.transition(o, models.OrderInCart); err != nil {
		return err
	}
	m.rearm(o.ID, tenant.ID, customer)
	return m.sendCart(ctx, tenant, customer, o)
}

func (m *Machine) applyName(ctx context.Context, tenant *models.Tenant, customer string, o *models.Order, text string) error {
	name := strings.TrimSpace(text)
	if name == "" {
		m.reply(ctx, tenant.ID, customer, replyNamePrompt)
		return nil
	}

	if err := m.store.SaveProfileName(customer, name); err != nil {
		return fmt.Errorf("failed to save profile name: %w", err)
	}
	o.CustomerName = name
	if err := m.transition(o, models.OrderAwaitingAddress); err != nil {
		return err
	}
	m.rearm(o.ID, tenant.ID, customer)

	profile, err := m.store.GetProfile(customer)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	var saved []models.ProfileAddress
	if profile != nil {
		saved = profile.Addresses
	}
	m.reply(ctx, tenant.ID, customer, renderAddressPrompt(saved))
	return nil
}

func (m *Machine) applyAddress(ctx context.Context, tenant *models.Tenant, customer string, o *models.Order, text string) error {
	address := strings.TrimSpace(text)
	if address == "" {
		m.reply(ctx, tenant.ID, customer, replyNewAddressPrompt)
		return nil
	}

	if _, err := m.store.AddProfileAddress(customer, address); err != nil {
		return fmt.Errorf("failed to save profile address: %w", err)
	}
	o.DeliveryAddress = address
	if err := m.transition(o, models.OrderAwaitingLocation); err != nil {
		return err
	}
	m.rearm(o.ID, tenant.ID, customer)
	m.reply(ctx, tenant.ID, customer, replyLocationPrompt)
	return nil
}

// transition applies one order status transition, rejecting any move
// not present in the transition table.
func (m *Machine) transition(o *models.Order, to models.OrderStatus) error {
	if !models.CanTransition(o.Status, to) {
		return fmt.Errorf("order %d: %s -> %s: %w", o.ID, o.Status, to, models.ErrInvalidTransition)
	}
	o.Status = to
	if err := m.store.UpdateOrder(o); err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	return nil
}

// rearm clears then arms the abandonment timer so exactly one timer is
// outstanding per order.
func (m *Machine) rearm(orderID, tenantID int64, customer string) {
	m.timers.Clear(orderID)
	m.timers.Arm(orderID, tenantID, customer)
}

func (m *Machine) sendCart(ctx context.Context, tenant *models.Tenant, customer string, o *models.Order) error {
	items, err := m.store.ListOrderItems(o.ID)
	if err != nil {
		return fmt.Errorf("failed to list order items: %w", err)
	}
	lines, total, err := buildCartLines(items, func(id int64) (*models.Product, error) {
		return m.store.GetProduct(tenant.ID, id)
	})
	if err != nil {
		return fmt.Errorf("failed to compute cart: %w", err)
	}
	m.reply(ctx, tenant.ID, customer, renderCart(lines, total))
	return nil
}

// reply sends a conversational message. Failed replies are logged and
// not retried, to avoid duplicate messages mid-conversation.
func (m *Machine) reply(ctx context.Context, tenantID int64, to, text string) {
	if err := m.sender.Send(ctx, tenantID, to, models.Content{Text: text}); err != nil {
		slog.Error("Failed to send reply", "error", err, "tenant_id", tenantID, "to", to)
	}
}
