package specialist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/domain"
)

var (
	orderIDPattern   = regexp.MustCompile(`(?i)\bORD\d+\b`)
	emailAddrPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
)

const maxListedOrders = 5

// OrderLookup answers order status, tracking, and order search
// questions from the cached order source.
type OrderLookup struct {
	orders *cache.OrderCache
	states *cache.AgentStateCache
	answer *AnswerClient
}

// NewOrderLookup creates the order specialist. states and answer may be
// nil.
func NewOrderLookup(orders *cache.OrderCache, states *cache.AgentStateCache, answer *AnswerClient) *OrderLookup {
	return &OrderLookup{orders: orders, states: states, answer: answer}
}

// Name implements Specialist.
func (o *OrderLookup) Name() domain.SpecialistName { return domain.SpecialistOrderLookup }

// Handle answers the message from order data. A well-formed order ID
// that matches nothing gets a polite not-found reply, not an error;
// errors mean the data could not be consulted at all.
func (o *OrderLookup) Handle(ctx context.Context, req Request) (string, error) {
	orderIDs := extractOrderIDs(req.Message)
	email := emailAddrPattern.FindString(req.Message)

	var facts string
	var err error
	switch {
	case len(orderIDs) > 0:
		facts, err = o.lookupFacts(ctx, orderIDs[0])
	case email != "":
		facts, err = o.searchFacts(ctx, email)
	default:
		facts = "I can help you with order lookups. Please share your order ID (it looks like ORD1001) or the email address the order was placed with."
	}
	if err != nil {
		return "", err
	}

	reply, err := compose(ctx, o.answer, req.Message, facts)
	if err != nil {
		return "", err
	}

	recordState(ctx, o.states, o.Name(), req.SessionID, orderIDs)
	return reply, nil
}

func extractOrderIDs(message string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range orderIDPattern.FindAllString(message, -1) {
		id = strings.ToUpper(id)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (o *OrderLookup) lookupFacts(ctx context.Context, orderID string) (string, error) {
	order, err := o.orders.Order(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf("Order %s was not found. Please double-check the order ID and try again.", orderID), nil
	}
	if err != nil {
		return "", err
	}

	summary, err := o.orders.Summary(ctx, orderID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Order information for %s:\n\n", order.OrderID)
	fmt.Fprintf(&b, "Product: %s (quantity %d)\n", order.Product, order.Quantity)
	fmt.Fprintf(&b, "Status: %s\n", titleCase(order.Status))
	fmt.Fprintf(&b, "Order date: %s\n", order.OrderDate)
	fmt.Fprintf(&b, "Price: $%.2f\n\n", order.Price)
	b.WriteString(summary)
	if order.TrackingNumber != "" {
		fmt.Fprintf(&b, "\nTracking: %s via %s", order.TrackingNumber, order.Carrier)
	}
	if order.EstimatedDelivery != "" {
		fmt.Fprintf(&b, "\nExpected delivery: %s", order.EstimatedDelivery)
	}
	return b.String(), nil
}

func (o *OrderLookup) searchFacts(ctx context.Context, email string) (string, error) {
	orders, err := o.orders.ByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return fmt.Sprintf("No orders were found for %s. Please verify the email address or share an order ID instead.", email), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d order(s) for %s:\n\n", len(orders), email)
	for i, order := range orders {
		if i == maxListedOrders {
			fmt.Fprintf(&b, "\n... and %d more orders", len(orders)-maxListedOrders)
			break
		}
		fmt.Fprintf(&b, "- %s: %s, %s, $%.2f\n", order.OrderID, order.Product, titleCase(order.Status), order.Price)
	}
	b.WriteString("\nShare a specific order ID for detailed information.")
	return b.String(), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
