package models

import "github.com/samber/lo"

// orderTransitions lists the statuses reachable from each order status.
// refunded and canceled have no entry: nothing leaves them.
var orderTransitions = map[string][]string{
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusRefunded, OrderStatusCanceled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// CanTransitionOrder reports whether an order may move from one status to another
func CanTransitionOrder(from, to string) bool {
	return lo.Contains(orderTransitions[from], to)
}

// IsTerminalOrderStatus reports whether no lifecycle transition can leave status
func IsTerminalOrderStatus(status string) bool {
	return len(orderTransitions[status]) == 0
}

// IsValidOrderStatus reports whether status is one of the known order statuses
func IsValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusRefunded, OrderStatusCanceled:
		return true
	}
	return false
}
