// Package order implements the cart/checkout conversation state machine
// and the deep-link command grammar it understands.
package order

import (
	"strconv"
	"strings"
)

// CommandKind identifies one deep-link command recognized in inbound text.
type CommandKind int

const (
	// CmdNone means the text is not a recognized command.
	CmdNone CommandKind = iota
	// CmdNewOrder starts a new order.
	CmdNewOrder
	// CmdShowCategories lists the active catalog categories.
	CmdShowCategories
	// CmdViewCart shows the current cart contents and total.
	CmdViewCart
	// CmdCartConfirm starts the checkout question sequence.
	CmdCartConfirm
	// CmdSkipLocation finalizes checkout without a geolocation.
	CmdSkipLocation
	// CmdCategory lists the products of one category.
	CmdCategory
	// CmdProduct selects a product and asks for a quantity.
	CmdProduct
	// CmdRemoveProduct deletes a cart line.
	CmdRemoveProduct
	// CmdAddress selects a saved delivery address.
	CmdAddress
	// CmdNewAddress asks the customer to type a new delivery address.
	CmdNewAddress
	// CmdLocation carries a structured latitude/longitude payload.
	CmdLocation
)

// Command is one parsed deep-link command.
type Command struct {
	Kind CommandKind
	ID   int64 // CmdCategory, CmdProduct, CmdRemoveProduct, CmdAddress

	// CmdLocation only.
	Latitude  float64
	Longitude float64
}

// Deep-link literals. These tokens are embedded in outbound replies and
// sent back verbatim by customers, so they must round-trip exactly.
const (
	tokenNewOrder       = "NEWORDER"
	tokenShowCategories = "SHOWCATEGORIES"
	tokenViewCart       = "VIEWCART"
	tokenCartConfirm    = "CARTCONFIRM"
	tokenSkipLocation   = "SKIP_LOCATION"
	tokenNewAddress     = "NEWADDRESS"

	prefixCategory     = "CATEGORY_"
	prefixProduct      = "PRODUCT_"
	prefixProductShort = "P_"
	prefixRemove       = "REMOVEPRODUCT_"
	prefixRemoveShort  = "RP_"
	prefixAddress      = "ADDRESS_"
	prefixLocation     = "LOC "
)

// ParseCommand parses inbound text as a deep-link command. Matching is
// case-insensitive and ignores surrounding whitespace. The second return
// value is false when the text is not a command.
func ParseCommand(text string) (Command, bool) {
	token := strings.ToUpper(strings.TrimSpace(text))

	switch token {
	case tokenNewOrder:
		return Command{Kind: CmdNewOrder}, true
	case tokenShowCategories:
		return Command{Kind: CmdShowCategories}, true
	case tokenViewCart:
		return Command{Kind: CmdViewCart}, true
	case tokenCartConfirm:
		return Command{Kind: CmdCartConfirm}, true
	case tokenSkipLocation:
		return Command{Kind: CmdSkipLocation}, true
	case tokenNewAddress:
		return Command{Kind: CmdNewAddress}, true
	}

	for _, p := range []struct {
		prefix string
		kind   CommandKind
	}{
		{prefixCategory, CmdCategory},
		{prefixRemove, CmdRemoveProduct},
		{prefixRemoveShort, CmdRemoveProduct},
		{prefixProduct, CmdProduct},
		{prefixProductShort, CmdProduct},
		{prefixAddress, CmdAddress},
	} {
		if id, ok := parseSuffixID(token, p.prefix); ok {
			return Command{Kind: p.kind, ID: id}, true
		}
	}

	if lat, lng, ok := parseLocation(token); ok {
		return Command{Kind: CmdLocation, Latitude: lat, Longitude: lng}, true
	}

	return Command{}, false
}

// parseSuffixID extracts the numeric id from a "<PREFIX><id>" token.
func parseSuffixID(token, prefix string) (int64, bool) {
	if !strings.HasPrefix(token, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(token[len(prefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseLocation parses a "LOC <lat> <lng>" structured location payload.
func parseLocation(token string) (float64, float64, bool) {
	if !strings.HasPrefix(token, prefixLocation) {
		return 0, 0, false
	}
	fields := strings.Fields(token[len(prefixLocation):])
	if len(fields) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// ParseQuantity parses free text as a positive integer quantity.
func ParseQuantity(text string) (int, bool) {
	qty, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || qty <= 0 {
		return 0, false
	}
	return qty, true
}
