package source

import (
	"context"
	"sort"
	"strings"

	"github.com/ashureev/supportd/internal/domain"
)

type faqEntry struct {
	id     string
	record domain.FAQRecord
}

func loadFAQs() []faqEntry {
	return []faqEntry{
		{
			id: "shipping_policy",
			record: domain.FAQRecord{
				Question: "What is your shipping policy?",
				Answer:   "We offer free standard shipping on orders over $50. Standard shipping takes 3-5 business days. Expedited shipping (1-2 days) is available for $9.99. International shipping is available to most countries.",
				Keywords: []string{"shipping", "delivery", "free shipping", "expedited", "international", "how long"},
			},
		},
		{
			id: "return_policy",
			record: domain.FAQRecord{
				Question: "What is your return policy?",
				Answer:   "We accept returns within 30 days of delivery. Items must be in original condition with tags attached. Return shipping is free for defective items. For other returns, return shipping costs $5.99.",
				Keywords: []string{"return", "refund", "exchange", "30 days", "defective", "original condition"},
			},
		},
		{
			id: "warranty",
			record: domain.FAQRecord{
				Question: "What warranty do you offer?",
				Answer:   "All electronics come with a 1-year manufacturer warranty. Extended warranties are available for purchase. Warranty covers manufacturing defects but not accidental damage.",
				Keywords: []string{"warranty", "guarantee", "defect", "broken", "malfunction", "coverage"},
			},
		},
		{
			id: "payment_methods",
			record: domain.FAQRecord{
				Question: "What payment methods do you accept?",
				Answer:   "We accept all major credit cards (Visa, MasterCard, American Express), PayPal, Apple Pay, Google Pay, and Buy Now Pay Later options through Klarna and Afterpay.",
				Keywords: []string{"payment", "credit card", "paypal", "apple pay", "google pay", "klarna", "afterpay", "buy now pay later"},
			},
		},
		{
			id: "order_cancellation",
			record: domain.FAQRecord{
				Question: "Can I cancel my order?",
				Answer:   "You can cancel your order within 1 hour of placing it if it hasn't entered processing. After that, you'll need to wait for delivery and return the item following our return policy.",
				Keywords: []string{"cancel", "cancellation", "cancel order", "stop order", "change order"},
			},
		},
		{
			id: "track_order",
			record: domain.FAQRecord{
				Question: "How can I track my order?",
				Answer:   "Once your order ships, you'll receive a tracking number via email. You can track your package on our website or the carrier's website (FedEx, UPS, DHL, USPS).",
				Keywords: []string{"track", "tracking", "where is my order", "tracking number", "shipment status"},
			},
		},
		{
			id: "customer_support",
			record: domain.FAQRecord{
				Question: "How can I contact customer support?",
				Answer:   "You can reach our customer support team via email at support@example.com, phone at 1-800-SUPPORT (Mon-Fri 9AM-6PM EST), or live chat on our website 24/7.",
				Keywords: []string{"contact", "support", "help", "phone", "email", "live chat", "customer service"},
			},
		},
		{
			id: "account_issues",
			record: domain.FAQRecord{
				Question: "I'm having trouble with my account",
				Answer:   "For account issues like password reset, login problems, or updating information, visit the 'My Account' section or contact support. You can reset your password using the 'Forgot Password' link.",
				Keywords: []string{"account", "login", "password", "forgot password", "account issues", "profile", "sign in"},
			},
		},
		{
			id: "product_availability",
			record: domain.FAQRecord{
				Question: "Is a product in stock?",
				Answer:   "Product availability is shown on each product page. If an item is out of stock, you can sign up for restock notifications. We typically restock popular items within 1-2 weeks.",
				Keywords: []string{"stock", "availability", "out of stock", "restock", "inventory", "when available"},
			},
		},
		{
			id: "bulk_orders",
			record: domain.FAQRecord{
				Question: "Do you offer bulk discounts?",
				Answer:   "Yes! We offer volume discounts for orders of 10+ units of the same item. Contact our sales team at sales@example.com for custom pricing on bulk orders.",
				Keywords: []string{"bulk", "volume", "discount", "wholesale", "large order", "quantity discount"},
			},
		},
	}
}

// SearchFAQ scores every FAQ against the query and returns the top
// matches, best first. Keyword hits weigh by keyword length, an exact
// phrase hit in a question outweighs one in an answer, and individual
// word hits add a small amount on top.
func (m *Mock) SearchFAQ(ctx context.Context, query string, limit int) ([]domain.FAQMatch, error) {
	if err := sleep(ctx, m.faqDelay); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	matches := []domain.FAQMatch{}
	for _, entry := range m.faqs {
		var score float64
		question := strings.ToLower(entry.record.Question)
		answer := strings.ToLower(entry.record.Answer)

		for _, keyword := range entry.record.Keywords {
			if strings.Contains(queryLower, keyword) {
				score += float64(len(strings.Fields(keyword)))
			}
		}

		if strings.Contains(question, queryLower) {
			score += 10
		} else if strings.Contains(answer, queryLower) {
			score += 5
		}

		for _, word := range queryWords {
			if len(word) <= 2 {
				continue
			}
			if strings.Contains(question, word) {
				score += 2
			} else if strings.Contains(answer, word) {
				score += 1
			}
		}

		if score > 0 {
			matches = append(matches, domain.FAQMatch{ID: entry.id, Record: entry.record, Score: score})
		}
	}

	// Stable result order: score first, corpus ID as tiebreak.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
