// Package orchestrator ties sessions, routing, and specialists together
// into the conversation flow.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/zerr"

	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/routing"
	"github.com/ashureev/supportd/internal/session"
	"github.com/ashureev/supportd/internal/specialist"
)

const apologyReply = "I apologize, but I encountered an error processing your request. Please try again or contact support if the issue persists."

var resolutionIndicators = []string{"thank you", "thanks", "that helps", "perfect", "great"}

// tracking is the per-session conversation state. It is process-local:
// losing it on restart resets counters but never breaks a conversation.
type tracking struct {
	activeSpecialist domain.SpecialistName
	agentSwitches    int
	resolvedIssues   int
}

// SessionStats summarizes one conversation.
type SessionStats struct {
	MessageCount     int                   `json:"message_count"`
	AgentSwitches    int                   `json:"agent_switches"`
	ActiveSpecialist domain.SpecialistName `json:"active_specialist,omitempty"`
	ResolvedIssues   int                   `json:"resolved_issues"`
	DurationMinutes  float64               `json:"session_duration_minutes"`
}

// Result is the outcome of processing one message. Success is false when
// the specialist failed and Reply carries the apology instead.
type Result struct {
	Reply       string                `json:"response"`
	Specialist  domain.SpecialistName `json:"agent_used"`
	Confidence  float64               `json:"confidence"`
	Success     bool                  `json:"success"`
	Stats       SessionStats          `json:"session_stats"`
	Suggestions []string              `json:"suggestions,omitempty"`
}

// StartResult is the outcome of opening a session.
type StartResult struct {
	SessionID string          `json:"session_id"`
	Welcome   string          `json:"welcome_message"`
	Session   *domain.Session `json:"session"`
}

// EndResult is the outcome of closing a session.
type EndResult struct {
	Summary    string       `json:"summary"`
	FinalStats SessionStats `json:"final_stats"`
}

// SessionInfo is one row of the active-session listing.
type SessionInfo struct {
	SessionID       string    `json:"session_id"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	MessageCount    int       `json:"message_count"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// Orchestrator routes each customer message to a specialist and keeps
// the conversation record consistent around the call.
type Orchestrator struct {
	sessions    *session.Store
	engine      *routing.Engine
	specialists map[domain.SpecialistName]specialist.Specialist
	states      *cache.AgentStateCache
	now         func() time.Time

	mu       sync.Mutex
	tracking map[string]*tracking
}

// New wires the orchestrator. states may be nil.
func New(sessions *session.Store, engine *routing.Engine, states *cache.AgentStateCache, specialists ...specialist.Specialist) *Orchestrator {
	byName := make(map[domain.SpecialistName]specialist.Specialist, len(specialists))
	for _, s := range specialists {
		byName[s.Name()] = s
	}
	return &Orchestrator{
		sessions:    sessions,
		engine:      engine,
		specialists: byName,
		states:      states,
		now:         time.Now,
		tracking:    make(map[string]*tracking),
	}
}

// NewSessionID produces a unique session identifier.
func NewSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// StartSession opens a session and seeds the conversation with a
// welcome message. An empty sessionID gets a generated one.
func (o *Orchestrator) StartSession(ctx context.Context, sessionID string, userData map[string]string) (*StartResult, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	sess, err := o.sessions.Create(ctx, sessionID, userData)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.tracking[sessionID] = &tracking{}
	o.mu.Unlock()

	welcome := welcomeMessage(userData)
	if err := o.sessions.AppendMessage(ctx, sessionID, domain.ConversationMessage{
		Role:    domain.RoleAssistant,
		Content: welcome,
	}); err != nil {
		return nil, err
	}

	slog.Info("session started", "session_id", sessionID)
	return &StartResult{SessionID: sessionID, Welcome: welcome, Session: sess}, nil
}

func welcomeMessage(userData map[string]string) string {
	greeting := "Hello!"
	if name := userData["name"]; name != "" {
		greeting = fmt.Sprintf("Hello %s!", name)
	}
	return greeting + ` Welcome to customer support.

I can help you with:
- Order status and tracking: check your order status, tracking info, and delivery updates
- Questions and policies: returns, shipping, payments, warranties, and general support

To get started, share your order number (like ORD1001), or ask something like "What's your return policy?"`
}

// ProcessMessage runs one message through routing and the selected
// specialist. Specialist failures produce an apology reply with
// Success=false rather than an error; errors mean the message could not
// be processed at all (bad input, dead session, broken store).
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, message string) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, zerr.Wrap(domain.ErrInvalidInput, "empty message")
	}

	// Refresh the TTL clock before anything else; a dead session must
	// fail here, not half-way through.
	sess, err := o.sessions.Touch(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Route on the history as it stood before this message.
	decision := o.engine.Route(ctx, sessionID, message)

	track := o.track(sessionID)
	o.mu.Lock()
	if track.activeSpecialist != decision.Specialist {
		track.agentSwitches++
		track.activeSpecialist = decision.Specialist
	}
	if isResolution(message) {
		track.resolvedIssues++
	}
	o.mu.Unlock()

	if err := o.sessions.AppendMessage(ctx, sessionID, domain.ConversationMessage{
		Role:    domain.RoleUser,
		Content: message,
	}); err != nil {
		return nil, err
	}

	// The user message is recorded; from here on the caller going away
	// must not leave the conversation without an assistant turn.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	spec, ok := o.specialists[decision.Specialist]
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidInput, "no such specialist"),
			"specialist", string(decision.Specialist))
	}

	history, err := o.sessions.History(ctx, sessionID, 5)
	if err != nil {
		slog.Warn("history unavailable for specialist", "session_id", sessionID, "error", err)
		history = nil
	}

	reply, specErr := spec.Handle(ctx, specialist.Request{
		SessionID: sessionID,
		Message:   message,
		History:   history,
	})

	success := specErr == nil
	if specErr != nil {
		slog.Error("specialist failed",
			"specialist", decision.Specialist, "session_id", sessionID, "error", specErr)
		reply = apologyReply
	}

	if err := o.appendReply(ctx, sessionID, reply); err != nil {
		return nil, err
	}

	stats, err := o.stats(ctx, sess)
	if err != nil {
		slog.Warn("session stats unavailable", "session_id", sessionID, "error", err)
	}

	return &Result{
		Reply:       reply,
		Specialist:  decision.Specialist,
		Confidence:  decision.Confidence,
		Success:     success,
		Stats:       stats,
		Suggestions: suggestions(message, decision.Specialist),
	}, nil
}

// appendReply records the assistant turn. If the caller's context died
// while the specialist ran, the write still happens on a detached
// bounded context so the history never ends on a user message.
func (o *Orchestrator) appendReply(ctx context.Context, sessionID, reply string) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	return o.sessions.AppendMessage(ctx, sessionID, domain.ConversationMessage{
		Role:    domain.RoleAssistant,
		Content: reply,
	})
}

func (o *Orchestrator) track(sessionID string) *tracking {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tracking[sessionID]
	if !ok {
		t = &tracking{}
		o.tracking[sessionID] = t
	}
	return t
}

func isResolution(message string) bool {
	lower := strings.ToLower(message)
	for _, indicator := range resolutionIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func suggestions(message string, used domain.SpecialistName) []string {
	var out []string
	switch used {
	case domain.SpecialistOrderLookup:
		out = append(out,
			"Need help with returns? Ask about our return policy",
			"Questions about shipping? I can explain our shipping options")
	case domain.SpecialistFAQ:
		out = append(out,
			"Have an order to check? Provide your order number",
			"Want to see all your orders? Provide your email address")
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "return") && used != domain.SpecialistFAQ {
		out = append(out, "Ask about our return policy for detailed information")
	}
	if strings.Contains(lower, "track") && used != domain.SpecialistOrderLookup {
		out = append(out, "Provide your order number to track your package")
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// Stats returns the current statistics for a session.
func (o *Orchestrator) Stats(ctx context.Context, sessionID string) (SessionStats, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionStats{}, err
	}
	return o.stats(ctx, sess)
}

func (o *Orchestrator) stats(ctx context.Context, sess *domain.Session) (SessionStats, error) {
	count, err := o.sessions.MessageCount(ctx, sess.SessionID)
	if err != nil {
		return SessionStats{}, err
	}

	o.mu.Lock()
	track := o.tracking[sess.SessionID]
	if track == nil {
		track = &tracking{}
	}
	stats := SessionStats{
		MessageCount:     count,
		AgentSwitches:    track.agentSwitches,
		ActiveSpecialist: track.activeSpecialist,
		ResolvedIssues:   track.resolvedIssues,
	}
	o.mu.Unlock()

	minutes := sess.Duration(o.now()).Minutes()
	stats.DurationMinutes = float64(int(minutes*10)) / 10
	return stats, nil
}

// ResetConversation clears the history and counters but keeps the
// session alive.
func (o *Orchestrator) ResetConversation(ctx context.Context, sessionID string) error {
	if _, err := o.sessions.Get(ctx, sessionID); err != nil {
		return err
	}
	if _, err := o.sessions.ClearHistory(ctx, sessionID); err != nil {
		return err
	}

	o.mu.Lock()
	o.tracking[sessionID] = &tracking{}
	o.mu.Unlock()

	slog.Info("conversation reset", "session_id", sessionID)
	return nil
}

// EndSession closes a session: a summary goes into the history, the
// process-local tracking is dropped, and specialist state is cleared.
// The session record itself survives until its TTL for analytics.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) (*EndResult, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats, err := o.stats(ctx, sess)
	if err != nil {
		return nil, err
	}

	summary := sessionSummary(stats)
	if err := o.sessions.AppendMessage(ctx, sessionID, domain.ConversationMessage{
		Role:    domain.RoleAssistant,
		Content: summary,
	}); err != nil {
		return nil, err
	}
	stats.MessageCount++

	o.mu.Lock()
	delete(o.tracking, sessionID)
	o.mu.Unlock()

	if o.states != nil {
		if _, err := o.states.Clear(ctx, sessionID); err != nil {
			slog.Warn("specialist state not cleared", "session_id", sessionID, "error", err)
		}
	}

	slog.Info("session ended", "session_id", sessionID,
		"messages", stats.MessageCount, "switches", stats.AgentSwitches)
	return &EndResult{Summary: summary, FinalStats: stats}, nil
}

func sessionSummary(stats SessionStats) string {
	return fmt.Sprintf(`Thank you for using our customer support! Here's a summary of your session:

Total messages: %d
Session duration: %.1f minutes
Issues resolved: %d

Need more help? Email support@example.com, call 1-800-SUPPORT, or use the live chat on our website. Have a great day!`,
		stats.MessageCount, stats.DurationMinutes, stats.ResolvedIssues)
}

// Reap drops the tracking state of sessions that have expired, so a
// long-running process does not accumulate counters for dead sessions.
// Live sessions are never touched.
func (o *Orchestrator) Reap(ctx context.Context) {
	ids, err := o.sessions.ListActive(ctx)
	if err != nil {
		slog.Warn("tracking reap skipped", "error", err)
		return
	}
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true
	}

	o.mu.Lock()
	for id := range o.tracking {
		if !live[id] {
			delete(o.tracking, id)
		}
	}
	o.mu.Unlock()
}

// ActiveSessions lists all live sessions with their basic stats.
// Sessions that expire mid-listing are skipped.
func (o *Orchestrator) ActiveSessions(ctx context.Context) ([]SessionInfo, error) {
	ids, err := o.sessions.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := o.sessions.Get(ctx, id)
		if err != nil {
			continue
		}
		count, err := o.sessions.MessageCount(ctx, id)
		if err != nil {
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID:       id,
			CreatedAt:       sess.CreatedAt,
			LastActivityAt:  sess.LastActivityAt,
			MessageCount:    count,
			DurationMinutes: float64(int(sess.Duration(o.now()).Minutes()*10)) / 10,
		})
	}
	return infos, nil
}
