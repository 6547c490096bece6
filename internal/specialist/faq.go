package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/domain"
)

// relatedCutoff decides when a runner-up FAQ result is close enough to
// the best one to be worth mentioning.
const relatedCutoff = 0.7

var faqTopicKeywords = []string{
	"return", "shipping", "payment", "warranty", "cancel", "track", "contact", "support",
}

// FAQ answers policy and general support questions from the cached FAQ
// corpus. It is also the fallback specialist for unclear messages.
type FAQ struct {
	faq    *cache.FAQCache
	states *cache.AgentStateCache
	answer *AnswerClient
}

// NewFAQ creates the FAQ specialist. states and answer may be nil.
func NewFAQ(faq *cache.FAQCache, states *cache.AgentStateCache, answer *AnswerClient) *FAQ {
	return &FAQ{faq: faq, states: states, answer: answer}
}

// Name implements Specialist.
func (f *FAQ) Name() domain.SpecialistName { return domain.SpecialistFAQ }

// Handle answers from the FAQ corpus. Questions the corpus cannot
// answer get the support contact details instead of a dead end.
func (f *FAQ) Handle(ctx context.Context, req Request) (string, error) {
	var facts string
	lower := strings.ToLower(req.Message)
	switch {
	case strings.Contains(lower, "business hours"):
		facts = businessHoursInfo
	default:
		matches, err := f.faq.Search(ctx, req.Message)
		if err != nil {
			return "", err
		}
		facts = formatFAQReply(matches)
	}

	reply, err := compose(ctx, f.answer, req.Message, facts)
	if err != nil {
		return "", err
	}

	recordState(ctx, f.states, f.Name(), req.SessionID, topicsIn(lower))
	return reply, nil
}

func formatFAQReply(matches []domain.FAQMatch) string {
	if len(matches) == 0 {
		return "I couldn't find an answer to that in our FAQ.\n\n" + contactInfo
	}

	best := matches[0]
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s", best.Record.Question, best.Record.Answer)

	if len(matches) > 1 && matches[1].Score > best.Score*relatedCutoff {
		b.WriteString("\n\nRelated questions:")
		for i, m := range matches[1:] {
			if i == 2 {
				break
			}
			fmt.Fprintf(&b, "\n%d. %s", i+1, m.Record.Question)
		}
	}
	return b.String()
}

func topicsIn(lowerMessage string) []string {
	var topics []string
	for _, keyword := range faqTopicKeywords {
		if strings.Contains(lowerMessage, keyword) {
			topics = append(topics, keyword)
		}
	}
	return topics
}

const contactInfo = `Customer support contact information:

Email: support@example.com
Phone: 1-800-SUPPORT (1-800-786-7678), Monday-Friday 9AM-6PM EST
Live chat: available 24/7 on our website

For urgent order issues, please call during business hours.`

const businessHoursInfo = `Business hours and availability:

Customer support: phone Monday-Friday 9AM-6PM EST, live chat 24/7, email answered within 24 hours.
Order processing: orders placed before 2PM EST ship the same day; weekend orders are processed on Monday.
Online store: available 24/7.`
