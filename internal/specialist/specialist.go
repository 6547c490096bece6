// Package specialist implements the two support specialists the router
// can delegate a message to.
package specialist

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/supportd/internal/cache"
	"github.com/ashureev/supportd/internal/domain"
)

// Request carries one routed message plus the conversation context the
// specialist may draw on.
type Request struct {
	SessionID string
	Message   string
	History   []domain.ConversationMessage
}

// Specialist answers messages for one topic area.
type Specialist interface {
	Name() domain.SpecialistName
	Handle(ctx context.Context, req Request) (string, error)
}

// recordState updates the per-session working state of a specialist.
// State is soft: losing it costs nothing but analytics, so failures are
// logged and swallowed.
func recordState(ctx context.Context, states *cache.AgentStateCache, name domain.SpecialistName, sessionID string, topics []string) {
	if states == nil || sessionID == "" {
		return
	}

	state, err := states.Get(ctx, sessionID, name)
	if err != nil {
		state = &domain.AgentState{AgentName: string(name), SessionID: sessionID}
	}
	for _, t := range topics {
		state.RecordTopic(t)
	}
	state.Queries++
	state.UpdatedAt = time.Now()

	if err := states.Put(ctx, state); err != nil {
		slog.Warn("specialist state not saved",
			"specialist", name, "session_id", sessionID, "error", err)
	}
}
