package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/orchestrator"
)

const wsReplyTimeout = 30 * time.Second

type wsInbound struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type wsOutbound struct {
	Type   string               `json:"type"`
	Result *orchestrator.Result `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ServeChat handles the WebSocket chat endpoint. Each connection is
// bound to one session; messages flow through the same orchestrator
// path as the REST API.
func (h *Handler) ServeChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "session_id query parameter required")
		return
	}
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		DomainError(w, err)
		return
	}

	opts := &websocket.AcceptOptions{}
	if h.isDevelopment() {
		opts.InsecureSkipVerify = true
	} else if h.frontendURL != "" {
		opts.OriginPatterns = []string{h.frontendURL}
	}

	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("websocket close", "error", closeErr)
		}
	}()

	slog.Info("chat connected", "session_id", sessionID)
	h.chatLoop(r.Context(), ws, sessionID)
	slog.Info("chat disconnected", "session_id", sessionID)
}

func (h *Handler) chatLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			slog.Warn("websocket read failed", "session_id", sessionID, "error", err)
			return
		}

		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.writeWS(ctx, ws, wsOutbound{Type: "error", Error: "invalid message format"})
			continue
		}

		switch in.Type {
		case "ping":
			h.writeWS(ctx, ws, wsOutbound{Type: "pong"})

		case "message":
			replyCtx, cancel := context.WithTimeout(ctx, wsReplyTimeout)
			result, err := h.orch.ProcessMessage(replyCtx, sessionID, in.Content)
			cancel()
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					h.writeWS(ctx, ws, wsOutbound{Type: "error", Error: "session expired"})
					return
				}
				h.writeWS(ctx, ws, wsOutbound{Type: "error", Error: err.Error()})
				continue
			}
			h.writeWS(ctx, ws, wsOutbound{Type: "reply", Result: result})

		default:
			h.writeWS(ctx, ws, wsOutbound{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) writeWS(ctx context.Context, ws *websocket.Conn, v wsOutbound) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("websocket encode failed", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}
