package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/jholhewres/mimiclaw/internal/bus"
)

// wsTurn is the wire shape a websocket client sends and receives: one
// chat's chat_id paired with a text body, per spec §6's websocket collaborator
// (`send(chat_id, text) -> Result`, plus ingress `push_inbound(msg)`).
type wsTurn struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// WebSocketGateway is the websocket ingress+egress collaborator: an
// http.Handler that upgrades each connecting client to a websocket and
// pairs it with a chat_id, feeding inbound turns into PushInbound and
// satisfying ChatSender by writing back to whichever connection last
// registered that chat_id. This is a thin adapter, not a faithful
// reimplementation of a production websocket gateway (no auth, no
// reconnect/backpressure handling) — those concerns are explicitly out of
// scope per spec §1.
type WebSocketGateway struct {
	PushInbound func(ctx context.Context, msg bus.Message) error
	Logger      *slog.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewWebSocketGateway constructs a gateway. pushInbound is typically
// (*bus.Bus).PushInbound.
func NewWebSocketGateway(pushInbound func(ctx context.Context, msg bus.Message) error, logger *slog.Logger) *WebSocketGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketGateway{PushInbound: pushInbound, Logger: logger, conns: make(map[string]*websocket.Conn)}
}

// ServeHTTP upgrades the connection and runs its read loop until the client
// disconnects or the request context is cancelled.
func (g *WebSocketGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.Logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	var registeredChatID string

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if registeredChatID != "" {
				g.unregister(registeredChatID, conn)
			}
			return
		}

		var turn wsTurn
		if err := json.Unmarshal(data, &turn); err != nil {
			g.Logger.Warn("websocket: malformed inbound frame", "err", err)
			continue
		}
		if turn.ChatID == "" {
			continue
		}
		if registeredChatID == "" {
			registeredChatID = turn.ChatID
			g.register(turn.ChatID, conn)
		}

		msg := bus.Message{
			Channel:   bus.ChannelWebSocket,
			ChatID:    turn.ChatID,
			MediaType: bus.MediaText,
			Content:   turn.Content,
		}
		if err := g.PushInbound(ctx, msg); err != nil {
			g.Logger.Warn("websocket: push inbound failed", "chat_id", turn.ChatID, "err", err)
		}
	}
}

func (g *WebSocketGateway) register(chatID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[chatID] = conn
}

func (g *WebSocketGateway) unregister(chatID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[chatID] == conn {
		delete(g.conns, chatID)
	}
}

// Send implements ChatSender, writing text back to chatID's registered
// connection, if one is currently open.
func (g *WebSocketGateway) Send(ctx context.Context, chatID, text string) error {
	g.mu.Lock()
	conn, ok := g.conns[chatID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("websocket: no open connection for chat_id %q", chatID)
	}

	data, err := json.Marshal(wsTurn{ChatID: chatID, Content: text})
	if err != nil {
		return fmt.Errorf("websocket: marshal outbound frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
