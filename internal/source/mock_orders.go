package source

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"github.com/ashureev/supportd/internal/domain"
)

// Simulated per-call latency. These delays are exactly what the cache
// layer exists to absorb.
const (
	defaultOrderDelay = 500 * time.Millisecond
	defaultEmailDelay = 300 * time.Millisecond
	defaultFAQDelay   = 200 * time.Millisecond
)

// Mock is an in-memory OrderSource and FAQSource seeded with sample
// data. Generation is driven by a fixed seed so the same data set comes
// back on every start.
type Mock struct {
	orders map[string]*domain.Order
	faqs   []faqEntry

	orderDelay time.Duration
	emailDelay time.Duration
	faqDelay   time.Duration
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithLatency overrides the simulated delays. Zero disables them, which
// tests use to stay fast.
func WithLatency(order, email, faq time.Duration) MockOption {
	return func(m *Mock) {
		m.orderDelay = order
		m.emailDelay = email
		m.faqDelay = faq
	}
}

// NewMock creates a Mock with 50 generated orders and the FAQ corpus.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		orders:     generateOrders(time.Now()),
		faqs:       loadFAQs(),
		orderDelay: defaultOrderDelay,
		emailDelay: defaultEmailDelay,
		faqDelay:   defaultFAQDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func generateOrders(now time.Time) map[string]*domain.Order {
	rng := rand.New(rand.NewSource(20240117))

	statuses := []string{
		domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered,
		domain.OrderStatusCancelled, domain.OrderStatusReturned,
	}
	products := []string{
		"iPhone 15 Pro", "MacBook Air M2", "AirPods Pro",
		"Samsung Galaxy S24", "Dell XPS 13", "Sony WH-1000XM5",
		"iPad Pro", "Surface Laptop", "Google Pixel 8",
		"Nintendo Switch", "Steam Deck", "PlayStation 5",
	}
	carriers := []string{"FedEx", "UPS", "DHL", "USPS"}
	cities := []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix"}
	states := []string{"NY", "CA", "IL", "TX", "AZ"}

	orders := make(map[string]*domain.Order, 50)
	for i := 1; i <= 50; i++ {
		orderID := fmt.Sprintf("ORD%d", 1000+i)
		orderDate := now.AddDate(0, 0, -rng.Intn(31))
		status := statuses[rng.Intn(len(statuses))]

		order := &domain.Order{
			OrderID:       orderID,
			CustomerEmail: fmt.Sprintf("customer%d@example.com", i),
			Product:       products[rng.Intn(len(products))],
			Quantity:      1 + rng.Intn(3),
			Price:         float64(int((99.99+rng.Float64()*1200)*100)) / 100,
			Status:        status,
			OrderDate:     orderDate.Format("2006-01-02 15:04:05"),
			ShippingAddress: domain.Address{
				Street: fmt.Sprintf("%d Main St", 100+rng.Intn(9900)),
				City:   cities[rng.Intn(len(cities))],
				State:  states[rng.Intn(len(states))],
				Zip:    fmt.Sprintf("%d", 10000+rng.Intn(90000)),
			},
		}

		switch status {
		case domain.OrderStatusDelivered:
			order.EstimatedDelivery = orderDate.AddDate(0, 0, 1+rng.Intn(5)).Format("2006-01-02")
		case domain.OrderStatusShipped:
			order.EstimatedDelivery = now.AddDate(0, 0, 1+rng.Intn(3)).Format("2006-01-02")
		}
		if status == domain.OrderStatusShipped || status == domain.OrderStatusDelivered {
			order.TrackingNumber = fmt.Sprintf("TRK%d", 100000000+rng.Intn(900000000))
			order.Carrier = carriers[rng.Intn(len(carriers))]
		}

		orders[orderID] = order
	}
	return orders
}

// sleep simulates backend latency while staying cancelable.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LookupOrder returns the order with the given ID.
func (m *Mock) LookupOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := sleep(ctx, m.orderDelay); err != nil {
		return nil, err
	}
	order, ok := m.orders[strings.ToUpper(orderID)]
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrNotFound, "unknown order"), "order_id", orderID)
	}
	clone := *order
	return &clone, nil
}

// OrderSummary returns a human-readable status line for the order.
func (m *Mock) OrderSummary(ctx context.Context, orderID string) (string, error) {
	order, err := m.LookupOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	switch order.Status {
	case domain.OrderStatusProcessing:
		return fmt.Sprintf("Your order for %s is being processed and will ship soon.", order.Product), nil
	case domain.OrderStatusShipped:
		return fmt.Sprintf("Your %s has shipped via %s (tracking: %s) and is expected to arrive on %s.",
			order.Product, order.Carrier, order.TrackingNumber, order.EstimatedDelivery), nil
	case domain.OrderStatusDelivered:
		return fmt.Sprintf("Your %s was delivered on %s.", order.Product, order.EstimatedDelivery), nil
	case domain.OrderStatusCancelled:
		return fmt.Sprintf("Your order for %s has been cancelled.", order.Product), nil
	case domain.OrderStatusReturned:
		return fmt.Sprintf("Your %s order has been returned and is being processed for refund.", order.Product), nil
	default:
		return fmt.Sprintf("Order status: %s", order.Status), nil
	}
}

// SearchByEmail returns all orders for a customer, newest first.
func (m *Mock) SearchByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	if err := sleep(ctx, m.emailDelay); err != nil {
		return nil, err
	}

	matches := []domain.Order{}
	for _, order := range m.orders {
		if strings.EqualFold(order.CustomerEmail, email) {
			matches = append(matches, *order)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].OrderDate > matches[j].OrderDate
	})
	return matches, nil
}

// OrderIDs returns all known order IDs, sorted. Used for smoke tests
// and demo warmup.
func (m *Mock) OrderIDs() []string {
	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
