package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/api/dto"
	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/lifecycle"
	"github.com/spec-kit/ticket-chat/internal/realtime"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

// streamChannel is the streaming side of delivery, satisfied by *Conn.
type streamChannel interface {
	Connected() bool
	SendMessage(ctx context.Context, payload realtime.SendMessagePayload, timeout time.Duration) (*realtime.MessageAckPayload, error)
}

// durableChannel is the request/response side, satisfied by *API.
type durableChannel interface {
	PersistMessage(ctx context.Context, ticketID string, req dto.SendMessageRequest) (*domain.Message, error)
}

// ChatGate tracks which tickets currently accept new messages. It is kept
// current from ticket status updates so a send against a resolved or closed
// ticket is refused before any channel is touched.
type ChatGate struct {
	mu       sync.RWMutex
	disabled map[string]struct{}
}

// NewChatGate constructs a gate with every ticket enabled.
func NewChatGate() *ChatGate {
	return &ChatGate{disabled: make(map[string]struct{})}
}

// Observe updates the gate from a ticket's current status.
func (g *ChatGate) Observe(ticketID string, status domain.TicketStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lifecycle.ChatAllowed(status) {
		delete(g.disabled, ticketID)
	} else {
		g.disabled[ticketID] = struct{}{}
	}
}

// Allowed reports whether the ticket accepts new messages.
func (g *ChatGate) Allowed(ticketID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, off := g.disabled[ticketID]
	return !off
}

// Watch keeps the gate current from status-update broadcasts. Cancel the
// returned subscription on teardown.
func (g *ChatGate) Watch(conn *Conn) *Subscription {
	return conn.Subscribe(realtime.EventTicketStatusUpdated, func(env realtime.Envelope) {
		var payload realtime.TicketPayload
		if err := env.DecodeInto(&payload); err != nil {
			return
		}
		g.Observe(payload.ID, payload.Status)
	})
}

// MessageDraft is one outgoing message before delivery.
type MessageDraft struct {
	TicketID    string
	Body        string
	Attachments []dto.AttachmentRequest
}

// DeliveryCoordinator sends messages over the streaming channel when it is
// up and the acknowledgment arrives in time, and falls back to the durable
// channel otherwise. One correlation id covers both attempts of a logical
// message, so the server-side dedup guarantees at-most-once persistence
// even when the streaming attempt landed but its ack was lost.
type DeliveryCoordinator struct {
	stream     streamChannel
	durable    durableChannel
	gate       *ChatGate
	ackTimeout time.Duration
	logger     *zap.Logger
}

// NewDeliveryCoordinator wires the two channels behind one send path.
func NewDeliveryCoordinator(stream streamChannel, durable durableChannel, gate *ChatGate, ackTimeout time.Duration, logger *zap.Logger) *DeliveryCoordinator {
	return &DeliveryCoordinator{
		stream:     stream,
		durable:    durable,
		gate:       gate,
		ackTimeout: ackTimeout,
		logger:     logger,
	}
}

// Send delivers one message and returns the authoritative persisted form.
// Validation and the chat gate run before any channel is touched, so a
// refused send performs no network work.
func (d *DeliveryCoordinator) Send(ctx context.Context, draft MessageDraft) (*domain.Message, error) {
	body := strings.TrimSpace(draft.Body)
	if draft.TicketID == "" || (body == "" && len(draft.Attachments) == 0) {
		return nil, apperrors.NewMissingFields(map[string]any{"ticket_id": draft.TicketID})
	}
	if d.gate != nil && !d.gate.Allowed(draft.TicketID) {
		return nil, apperrors.NewChatDisabled(draft.TicketID)
	}

	correlationID := uuid.NewString()

	if d.stream != nil && d.stream.Connected() {
		payload := realtime.SendMessagePayload{
			TicketID:      draft.TicketID,
			Body:          body,
			Attachments:   attachmentPayloads(draft.Attachments),
			CorrelationID: correlationID,
		}
		ack, err := d.stream.SendMessage(ctx, payload, d.ackTimeout)
		switch {
		case err == nil && ack.OK && ack.Message != nil:
			msg := realtime.PayloadToMessage(*ack.Message)
			return &msg, nil
		case err == nil && !ack.OK:
			d.logger.Debug("streaming send refused",
				zap.String("ticket_id", draft.TicketID),
				zap.String("reason", ack.Error))
		case err != nil:
			d.logger.Debug("streaming send failed, falling back",
				zap.String("ticket_id", draft.TicketID),
				zap.Error(err))
		}
	}

	msg, err := d.durable.PersistMessage(ctx, draft.TicketID, dto.SendMessageRequest{
		Body:          body,
		Attachments:   draft.Attachments,
		CorrelationID: correlationID,
	})
	if err != nil {
		if domainErr := apperrors.ToDomainError(err); domainErr.Code == apperrors.CodeChatDisabled || domainErr.Code == apperrors.CodeMissingFields {
			return nil, err
		}
		return nil, apperrors.NewDeliveryFailed(err)
	}
	return msg, nil
}

func attachmentPayloads(reqs []dto.AttachmentRequest) []realtime.AttachmentPayload {
	if len(reqs) == 0 {
		return nil
	}
	payloads := make([]realtime.AttachmentPayload, 0, len(reqs))
	for _, req := range reqs {
		payloads = append(payloads, realtime.AttachmentPayload{
			StorageKey: req.StorageKey,
			FileName:   req.FileName,
			MimeType:   req.MimeType,
			SizeBytes:  req.SizeBytes,
		})
	}
	return payloads
}
