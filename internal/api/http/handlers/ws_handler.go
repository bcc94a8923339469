package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/auth"
	"github.com/spec-kit/ticket-chat/internal/config"
	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/observability"
	"github.com/spec-kit/ticket-chat/internal/realtime"
	"github.com/spec-kit/ticket-chat/internal/service"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

const wsPrincipalKey = "ws_principal"

// WSHandler owns the streaming channel endpoint. Each connection becomes a
// hub session; the read loop handles join_ticket, typing and send_message,
// answering sends with a correlation-matched ack.
type WSHandler struct {
	hub     *realtime.Hub
	chat    *service.ChatService
	authMW  *auth.AuthMiddleware
	cfg     config.WSConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewWSHandler constructs handler.
func NewWSHandler(hub *realtime.Hub, chat *service.ChatService, authMW *auth.AuthMiddleware, cfg config.WSConfig, logger *zap.Logger, metrics *observability.Metrics) *WSHandler {
	return &WSHandler{hub: hub, chat: chat, authMW: authMW, cfg: cfg, logger: logger, metrics: metrics}
}

// Upgrade authenticates the request and gates the websocket upgrade. The
// token travels in the query string because browsers cannot set headers on
// websocket connects.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		return apperrors.NewUnauthorized("missing token")
	}
	principal, err := h.authMW.ResolveToken(c, token)
	if err != nil {
		return err
	}
	c.Locals(wsPrincipalKey, principal)
	return c.Next()
}

// Serve runs one websocket connection until the peer goes away.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		principal, ok := conn.Locals(wsPrincipalKey).(*auth.Principal)
		if !ok {
			_ = conn.Close()
			return
		}

		session := realtime.NewSession(principal.Account.ID, principal.Role, h.cfg.SendQueueSize)
		h.hub.Register(session)
		defer h.hub.Unregister(session)

		go h.writePump(conn, session)
		h.readLoop(conn, session, principal.Account)
	})
}

func (h *WSHandler) writePump(conn *websocket.Conn, session *realtime.Session) {
	pingInterval := h.cfg.PongWait() * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env := <-session.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait()))
			if err := conn.WriteJSON(env); err != nil {
				h.logger.Debug("ws write failed", zap.Error(err))
				session.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait()))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close()
				return
			}
		case <-session.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, session *realtime.Session, account *domain.Account) {
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait()))
	})

	for {
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			h.logger.Debug("ws read ended", zap.String("account_id", account.ID), zap.Error(err))
			return
		}
		h.handleEnvelope(session, account, env)
	}
}

func (h *WSHandler) handleEnvelope(session *realtime.Session, account *domain.Account, env realtime.Envelope) {
	switch env.Kind {
	case realtime.EventJoinTicket:
		var payload realtime.JoinTicketPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.TicketID == "" {
			return
		}
		h.hub.Join(session, payload.TicketID)

	case realtime.EventTyping:
		var payload realtime.TypingPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.TicketID == "" {
			return
		}
		// Unacknowledged relay; the sender id is taken from the session, not
		// the payload, so nobody can impersonate another sender.
		payload.SenderID = account.ID
		out, err := realtime.NewEnvelope(realtime.EventTyping, payload)
		if err != nil {
			return
		}
		h.hub.BroadcastRoom(payload.TicketID, out, account.ID)

	case realtime.EventSendMessage:
		var payload realtime.SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		h.handleSend(session, account, payload)

	default:
		h.logger.Debug("unknown envelope kind", zap.String("kind", string(env.Kind)))
	}
}

func (h *WSHandler) handleSend(session *realtime.Session, account *domain.Account, payload realtime.SendMessagePayload) {
	attachments := make([]service.AttachmentInput, 0, len(payload.Attachments))
	for _, att := range payload.Attachments {
		attachments = append(attachments, service.AttachmentInput{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}

	ack := realtime.MessageAckPayload{CorrelationID: payload.CorrelationID}
	msg, err := h.chat.PostMessage(context.Background(), account, observability.PathStream, service.MessageInput{
		TicketID:      payload.TicketID,
		Body:          payload.Body,
		Attachments:   attachments,
		CorrelationID: payload.CorrelationID,
	})
	if err != nil {
		ack.Error = apperrors.ToDomainError(err).Message
	} else {
		ack.OK = true
		wire := realtime.MessageToPayload(msg)
		ack.Message = &wire
	}

	env, err := realtime.NewEnvelope(realtime.EventMessageAck, ack)
	if err != nil {
		h.logger.Error("encode message_ack", zap.Error(err))
		return
	}
	select {
	case session.Send <- env:
	case <-session.Done():
	}
}
