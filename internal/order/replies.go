package order

import (
	"fmt"
	"strings"

	"github.com/tiendabot/tiendabot/internal/models"
)

// Canned customer-facing replies. Recoverable conditions always produce
// one of these; raw internal errors are never forwarded to customers.
const (
	replyNoOpenOrder      = "You have no open order. Send NEWORDER to start one."
	replyOrderAlreadyOpen = "You already have an open order. Send VIEWCART to see it or CARTCONFIRM to check out."
	replyEmptyCart        = "Your cart is empty. Send SHOWCATEGORIES to browse products."
	replyProductNotFound  = "That product is not available. Send SHOWCATEGORIES to browse the catalog."
	replyQuantityPrompt   = "How many would you like? Reply with a number."
	replyQuantityInvalid  = "Please reply with a whole number greater than zero."
	replyNamePrompt       = "What name should we put on the order?"
	replyNewAddressPrompt = "Please type your delivery address."
	replyLocationPrompt   = "Share your location as LOC <latitude> <longitude>, or send SKIP_LOCATION to finish without it."
	replyMidCheckout      = "Let's finish your checkout first."
	replyAddressUnknown   = "That saved address was not found. Please type your delivery address."
	replyCategoryNotFound = "That category is not available. Send SHOWCATEGORIES to browse."
)

// FormatPrice renders a price held in minor currency units.
func FormatPrice(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s$%d.%02d", sign, minor/100, minor%100)
}

// renderCategories lists active categories with their selection deep-links.
func renderCategories(categories []models.Category) string {
	if len(categories) == 0 {
		return "No categories are available right now."
	}
	var b strings.Builder
	b.WriteString("Our categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "%s — send %s%d\n", c.Name, prefixCategory, c.ID)
	}
	b.WriteString("\nSend VIEWCART to see your cart.")
	return b.String()
}

// renderProducts lists the active products of one category with their
// selection deep-links.
func renderProducts(category *models.Category, products []models.Product) string {
	if len(products) == 0 {
		return "No products are available in that category. Send SHOWCATEGORIES to browse."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", category.Name)
	for _, p := range products {
		fmt.Fprintf(&b, "%s (%s) — send %s%d\n", p.Name, FormatPrice(p.Price), prefixProductShort, p.ID)
	}
	b.WriteString("\nSend SHOWCATEGORIES to go back.")
	return b.String()
}

// cartLine is one rendered cart row with its computed line total.
type cartLine struct {
	product  models.Product
	quantity int
	total    int64
}

// buildCartLines resolves cart items against the catalog and computes
// line totals. Items whose product has disappeared are skipped.
func buildCartLines(items []models.OrderItem, lookup func(productID int64) (*models.Product, error)) ([]cartLine, int64, error) {
	var lines []cartLine
	var total int64
	for _, it := range items {
		p, err := lookup(it.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if p == nil {
			continue
		}
		lineTotal := p.Price * int64(it.Quantity)
		lines = append(lines, cartLine{product: *p, quantity: it.Quantity, total: lineTotal})
		total += lineTotal
	}
	return lines, total, nil
}

// renderCart shows the cart contents with a delete deep-link per line.
func renderCart(lines []cartLine, total int64) string {
	if len(lines) == 0 {
		return replyEmptyCart
	}
	var b strings.Builder
	b.WriteString("Your cart:\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "%dx %s = %s — remove: %s%d\n", l.quantity, l.product.Name, FormatPrice(l.total), prefixRemoveShort, l.product.ID)
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", FormatPrice(total))
	b.WriteString("Send CARTCONFIRM to check out or SHOWCATEGORIES to keep browsing.")
	return b.String()
}

// renderAddressPrompt asks for a delivery address, offering saved ones.
func renderAddressPrompt(addresses []models.ProfileAddress) string {
	if len(addresses) == 0 {
		return replyNewAddressPrompt
	}
	var b strings.Builder
	b.WriteString("Where should we deliver?\n")
	for _, a := range addresses {
		fmt.Fprintf(&b, "%s — send %s%d\n", a.Address, prefixAddress, a.ID)
	}
	b.WriteString("\nOr send NEWADDRESS to type a new one.")
	return b.String()
}

// renderSummary formats the confirmed-order summary sent to the customer
// and, when configured, the tenant's notification address.
func renderSummary(o *models.Order, lines []cartLine, total int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%d confirmed!\n", o.ID)
	if o.CustomerName != "" {
		fmt.Fprintf(&b, "Name: %s\n", o.CustomerName)
	}
	if o.DeliveryAddress != "" {
		fmt.Fprintf(&b, "Address: %s\n", o.DeliveryAddress)
	}
	if o.Latitude != nil && o.Longitude != nil {
		fmt.Fprintf(&b, "Location: %.6f, %.6f\n", *o.Latitude, *o.Longitude)
	}
	b.WriteString("\nItems:\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "%dx %s = %s\n", l.quantity, l.product.Name, FormatPrice(l.total))
	}
	fmt.Fprintf(&b, "\nTotal: %s", FormatPrice(total))
	return b.String()
}
