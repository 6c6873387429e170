package models

// orderTransitions is the closed set of legal status transitions.
// AwaitingQuantity is entered and exited once per product add; the
// checkout states are visited once. InCart may jump straight to
// AwaitingAddress when the customer's name is already on file.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderInCart:           {OrderAwaitingQuantity, OrderAwaitingName, OrderAwaitingAddress},
	OrderAwaitingQuantity: {OrderInCart},
	OrderAwaitingName:     {OrderAwaitingAddress},
	OrderAwaitingAddress:  {OrderAwaitingLocation},
	OrderAwaitingLocation: {OrderConfirmed},
	OrderConfirmed:        {},
}

// CanTransition reports whether moving an order from one status to
// another is allowed by the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
