package notify

import (
	"fmt"
	"strings"
)

// Render produces the plain-text subject and body for m.
func Render(m Message) (string, string, error) {
	var b strings.Builder

	switch m.Kind {
	case KindOrderConfirmation:
		fmt.Fprintf(&b, "Thank you for your order!\n\nOrder #%d\n\n", m.OrderID)
		writeItems(&b, m.Items)
		fmt.Fprintf(&b, "\nTotal: %s\nStatus: %s\n", m.Total.StringFixed(2), m.Status)
		return fmt.Sprintf("Order Confirmation #%d", m.OrderID), b.String(), nil

	case KindOrderStatusUpdate:
		fmt.Fprintf(&b, "Your order #%d is now %s.\nPayment: %s\nTotal: %s\n",
			m.OrderID, m.Status, m.PaymentStatus, m.Total.StringFixed(2))
		return fmt.Sprintf("Order #%d Status Update", m.OrderID), b.String(), nil

	case KindOrderCancellation:
		fmt.Fprintf(&b, "Your order #%d has been cancelled.\nTotal: %s\n", m.OrderID, m.Total.StringFixed(2))
		return fmt.Sprintf("Order #%d Cancelled", m.OrderID), b.String(), nil

	case KindLowStockAlert:
		fmt.Fprintf(&b, "Product #%d %q has %d unit(s) left.\n", m.ProductID, m.ProductName, m.Stock)
		return fmt.Sprintf("Low Stock Alert: %s", m.ProductName), b.String(), nil

	case KindEmailVerification:
		fmt.Fprintf(&b, "Confirm your email address with this token:\n\n%s\n", m.Token)
		return "Verify your email address", b.String(), nil
	}

	return "", "", fmt.Errorf("unknown notification kind %q", m.Kind)
}

func writeItems(b *strings.Builder, items []Item) {
	for _, it := range items {
		fmt.Fprintf(b, "  product %d  x%d  @ %s\n", it.ProductID, it.Quantity, it.Price.StringFixed(2))
	}
}
