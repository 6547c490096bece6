// Package routing decides which specialist handles a message. Scoring is
// pure pattern and keyword matching, so identical input always produces
// the identical decision.
package routing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ashureev/supportd/internal/domain"
)

// Decision thresholds. Order routing needs stronger evidence than FAQ
// because FAQ is also the safe fallback. Comparison is strict, so an
// exact tie goes to FAQ.
const (
	DefaultOrderThreshold     = 0.3
	DefaultFAQThreshold       = 0.2
	DefaultFallbackConfidence = 0.5

	contextWindow = 2
	contextBias   = 0.2
	maxScore      = 1.0
)

var orderPatterns = compileAll(0.4,
	`\bORD\d+\b`,
	`\border\s+(id|number|#)`,
	`\btrack\w*\s+order\b`,
	`\bwhere\s+is\s+my\s+order\b`,
	`\border\s+status\b`,
	`\btracking\s+number\b`,
	`\bdelivery\s+date\b`,
	`\bshipping\s+status\b`,
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)

var orderKeywords = map[string]float64{
	"order":     0.3,
	"tracking":  0.4,
	"delivery":  0.3,
	"shipped":   0.4,
	"delivered": 0.4,
	"status":    0.2,
}

var faqPatterns = compileAll(0.3,
	`\breturn\s+policy\b`,
	`\bshipping\s+policy\b`,
	`\bpayment\s+method\b`,
	`\bhow\s+to\s+return\b`,
	`\bwarranty\b`,
	`\bcancel\s+order\b`,
	`\bcontact\s+support\b`,
	`\bbusiness\s+hours\b`,
	`\bcustomer\s+service\b`,
	`\brefund\b`,
	`\bexchange\b`,
)

var questionWords = []string{"how", "what", "when", "where", "why", "can", "do", "does", "is", "are"}

var faqKeywords = map[string]float64{
	"policy":   0.3,
	"return":   0.2,
	"refund":   0.2,
	"shipping": 0.1,
	"payment":  0.2,
	"warranty": 0.3,
	"support":  0.2,
	"help":     0.1,
	"contact":  0.2,
}

var orderContextWords = []string{"order", "tracking", "delivery", "shipped"}
var faqContextWords = []string{"policy", "return", "refund", "warranty"}

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

func compileAll(weight float64, patterns ...string) []weightedPattern {
	out := make([]weightedPattern, len(patterns))
	for i, p := range patterns {
		out[i] = weightedPattern{re: regexp.MustCompile(`(?i)` + p), weight: weight}
	}
	return out
}

// HistoryReader supplies recent conversation context for biasing.
type HistoryReader interface {
	History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error)
}

// Engine scores messages against both specialists and picks one.
type Engine struct {
	history            HistoryReader
	orderThreshold     float64
	faqThreshold       float64
	fallbackConfidence float64
}

// Config overrides the default thresholds. Zero values keep the
// defaults.
type Config struct {
	OrderThreshold     float64
	FAQThreshold       float64
	FallbackConfidence float64
}

// NewEngine creates a routing engine. history may be nil, which disables
// context biasing.
func NewEngine(history HistoryReader, cfg Config) *Engine {
	e := &Engine{
		history:            history,
		orderThreshold:     cfg.OrderThreshold,
		faqThreshold:       cfg.FAQThreshold,
		fallbackConfidence: cfg.FallbackConfidence,
	}
	if e.orderThreshold <= 0 {
		e.orderThreshold = DefaultOrderThreshold
	}
	if e.faqThreshold <= 0 {
		e.faqThreshold = DefaultFAQThreshold
	}
	if e.fallbackConfidence <= 0 {
		e.fallbackConfidence = DefaultFallbackConfidence
	}
	return e
}

// Route picks the specialist for a message. Recent conversation context
// nudges the score toward the specialist already in play; an unreadable
// history degrades to no bias rather than failing the message.
func (e *Engine) Route(ctx context.Context, sessionID, message string) domain.RoutingDecision {
	orderScore := scoreOrder(message)
	faqScore := scoreFAQ(message)

	orderBias, faqBias := e.contextBias(ctx, sessionID)
	orderScore = capScore(orderScore + orderBias)
	faqScore = capScore(faqScore + faqBias)

	decision := decide(orderScore, faqScore, e.orderThreshold, e.faqThreshold, e.fallbackConfidence)
	slog.Debug("routed message",
		"session_id", sessionID,
		"specialist", decision.Specialist,
		"confidence", decision.Confidence,
		"order_score", orderScore,
		"faq_score", faqScore)
	return decision
}

func decide(orderScore, faqScore, orderThreshold, faqThreshold, fallback float64) domain.RoutingDecision {
	if orderScore > faqScore && orderScore > orderThreshold {
		return domain.RoutingDecision{Specialist: domain.SpecialistOrderLookup, Confidence: orderScore}
	}
	if faqScore > faqThreshold {
		return domain.RoutingDecision{Specialist: domain.SpecialistFAQ, Confidence: faqScore}
	}
	return domain.RoutingDecision{Specialist: domain.SpecialistFAQ, Confidence: fallback}
}

func scoreOrder(message string) float64 {
	var score float64
	for _, p := range orderPatterns {
		if p.re.MatchString(message) {
			score += p.weight
		}
	}
	lower := strings.ToLower(message)
	for word, weight := range orderKeywords {
		if strings.Contains(lower, word) {
			score += weight
		}
	}
	if emailPattern.MatchString(message) {
		score += 0.5
	}
	return capScore(score)
}

func scoreFAQ(message string) float64 {
	var score float64
	for _, p := range faqPatterns {
		if p.re.MatchString(message) {
			score += p.weight
		}
	}
	padded := " " + strings.ToLower(message) + " "
	for _, word := range questionWords {
		if strings.Contains(padded, " "+word+" ") {
			score += 0.1
		}
	}
	lower := strings.ToLower(message)
	for word, weight := range faqKeywords {
		if strings.Contains(lower, word) {
			score += weight
		}
	}
	return capScore(score)
}

// contextBias reads the last messages of the conversation and nudges
// scoring toward the topic already under discussion.
func (e *Engine) contextBias(ctx context.Context, sessionID string) (orderBias, faqBias float64) {
	if e.history == nil || sessionID == "" {
		return 0, 0
	}
	recent, err := e.history.History(ctx, sessionID, contextWindow)
	if err != nil {
		slog.Warn("context bias unavailable, routing on message alone",
			"session_id", sessionID, "error", err)
		return 0, 0
	}
	for _, msg := range recent {
		lower := strings.ToLower(msg.Content)
		if orderBias == 0 && containsAny(lower, orderContextWords) {
			orderBias = contextBias
		}
		if faqBias == 0 && containsAny(lower, faqContextWords) {
			faqBias = contextBias
		}
	}
	return orderBias, faqBias
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func capScore(s float64) float64 {
	if s > maxScore {
		return maxScore
	}
	return s
}
