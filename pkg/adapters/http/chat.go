package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/chatflow/pkg/conversation"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	closeGrace = time.Second

	slowDownText   = "You are sending messages too quickly. Please wait a moment."
	unreadableText = "Your message could not be read."
	tooLongText    = "Your message is too long."
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The widget is embedded on foreign pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Chat handles GET /ws?appId=...&country=..., one conversation per connection.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	params, err := protocol.ParseConnectParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flows, err := s.backend.ListGrouped(r.Context(), params.AppID)
	if err != nil {
		s.fail(w, "Chat", err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	ctx := context.WithoutCancel(r.Context())
	sess := &chatSession{
		server: s,
		ws:     ws,
		appID:  params.AppID,
		id:     uuid.NewString(),
	}
	sess.logger = s.logger.With("app_id", params.AppID, "session_id", sess.id, "country", params.Country)
	sess.emit(ctx, domain.EventSessionStart, "")
	defer sess.emit(ctx, domain.EventSessionEnd, "")
	sess.logger.Info("chat session started")

	dialogue := conversation.NewDialogue(flows,
		conversation.WithReviewURL(s.reviewURL),
		conversation.WithAttachmentURL(func(q domain.Question) string {
			return s.attachmentURL(params.AppID, q.ID)
		}),
		conversation.WithLogger(sess.logger),
	)
	if !sess.send(ctx, dialogue.Start()) {
		return
	}

	limiter := rate.NewLimiter(s.msgRate, s.msgBurst)
	for !dialogue.Done() {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Warn("chat read failed", "err", err)
			}
			return
		}
		if !limiter.Allow() {
			if !sess.send(ctx, []protocol.ServerMessage{{Type: protocol.KindWarn, Content: slowDownText}}) {
				return
			}
			continue
		}

		msg, err := protocol.DecodeClient(data)
		if err == nil && msg.Type == protocol.KindUser {
			msg.Content, err = protocol.SanitizeInput(msg.Content, s.maxInput)
		}
		if err != nil {
			sess.logger.Warn("chat message rejected", "err", err)
			reply := protocol.ServerMessage{Type: protocol.KindError, Content: unreadableText}
			if errors.Is(err, protocol.ErrInputTooLarge) {
				reply = protocol.ServerMessage{Type: protocol.KindWarn, Content: tooLongText}
			}
			if !sess.send(ctx, []protocol.ServerMessage{reply}) {
				return
			}
			continue
		}

		if msg.Type == protocol.KindFileUpload {
			sess.emit(ctx, domain.EventUpload, string(msg.Type))
		} else {
			sess.emit(ctx, domain.EventMessageIn, string(msg.Type))
		}
		if !sess.send(ctx, dialogue.Handle(msg)) {
			return
		}
	}

	sess.logger.Info("chat session finished")
	deadline := time.Now().Add(closeGrace)
	err = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation ended"), deadline)
	if err != nil {
		sess.logger.Debug("close frame not sent", "err", err)
	}
}

type chatSession struct {
	server *Server
	ws     *websocket.Conn
	appID  string
	id     string
	logger *slog.Logger
}

// send writes messages in order and reports whether the connection is still usable.
func (c *chatSession) send(ctx context.Context, msgs []protocol.ServerMessage) bool {
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			c.logger.Error("failed to marshal chat message", "err", err)
			continue
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.logger.Warn("chat write failed", "err", err)
			return false
		}
		c.emit(ctx, domain.EventMessageOut, string(m.Type))
	}
	return true
}

func (c *chatSession) emit(ctx context.Context, typ domain.EventType, kind string) {
	ev := &domain.ChatEvent{Type: typ, AppID: c.appID, SessionID: c.id, Kind: kind}
	c.server.hooks.Emit(ctx, ev)
	c.server.observe.Emit(ctx, ev)
}
