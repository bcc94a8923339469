// Package realtime implements the streaming side of the messaging protocol:
// the wire envelope shared by server and client, and the server-side hub that
// fans events out to ticket rooms.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// EventKind identifies a streaming event.
type EventKind string

const (
	EventJoinTicket          EventKind = "join_ticket"
	EventSendMessage         EventKind = "send_message"
	EventMessageAck          EventKind = "message_ack"
	EventReceiveMessage      EventKind = "receive_message"
	EventTyping              EventKind = "typing"
	EventTicketCreated       EventKind = "ticket_created"
	EventTicketStatusUpdated EventKind = "ticket_status_updated"
	EventTicketsDeleted      EventKind = "tickets_deleted"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Kind EventKind       `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given kind.
func NewEnvelope(kind EventKind, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: kind, Data: data}, nil
}

// DecodeInto unmarshals the envelope data into payload.
func (e Envelope) DecodeInto(payload any) error {
	return json.Unmarshal(e.Data, payload)
}

// JoinTicketPayload is sent client to server, fire and forget.
type JoinTicketPayload struct {
	TicketID string `json:"ticket_id"`
}

// SendMessagePayload is sent client to server; the server answers with a
// MessageAckPayload matched on the correlation id.
type SendMessagePayload struct {
	TicketID      string              `json:"ticket_id"`
	Body          string              `json:"body"`
	Attachments   []AttachmentPayload `json:"attachments,omitempty"`
	CorrelationID string              `json:"correlation_id"`
}

// AttachmentPayload carries attachment metadata on the wire.
type AttachmentPayload struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// MessageAckPayload acknowledges a send_message. On success it carries the
// authoritative persisted message so the sender can adopt the server's id and
// timestamp.
type MessageAckPayload struct {
	CorrelationID string          `json:"correlation_id"`
	OK            bool            `json:"ok"`
	Message       *MessagePayload `json:"message,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	ID            string              `json:"id"`
	TicketID      string              `json:"ticket_id"`
	SenderID      string              `json:"sender_id"`
	SenderRole    domain.Role         `json:"sender_role"`
	SenderName    string              `json:"sender_name,omitempty"`
	SenderAvatar  *string             `json:"sender_avatar,omitempty"`
	Body          string              `json:"body"`
	Attachments   []AttachmentPayload `json:"attachments,omitempty"`
	CorrelationID string              `json:"correlation_id"`
	CreatedAt     time.Time           `json:"created_at"`
}

// TypingPayload travels both directions, unacknowledged.
type TypingPayload struct {
	TicketID string `json:"ticket_id"`
	SenderID string `json:"sender_id"`
	IsTyping bool   `json:"is_typing"`
}

// TicketPayload is broadcast on ticket creation and status changes.
type TicketPayload struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	RequesterID string                `json:"requester_id"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Category    string                `json:"category"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatedAt   time.Time             `json:"created_at"`
	ClosedAt    *time.Time            `json:"closed_at,omitempty"`
}

// TicketsDeletedPayload announces removed tickets so open lists prune
// themselves without a refetch.
type TicketsDeletedPayload struct {
	TicketIDs []string `json:"ticket_ids"`
}

// MessageToPayload converts a domain message to its wire form.
func MessageToPayload(msg *domain.Message) MessagePayload {
	attachments := make([]AttachmentPayload, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, AttachmentPayload{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return MessagePayload{
		ID:            msg.ID,
		TicketID:      msg.TicketID,
		SenderID:      msg.SenderID,
		SenderRole:    msg.SenderRole,
		SenderName:    msg.SenderName,
		SenderAvatar:  msg.SenderAvatar,
		Body:          msg.Body,
		Attachments:   attachments,
		CorrelationID: msg.CorrelationID,
		CreatedAt:     msg.CreatedAt,
	}
}

// PayloadToMessage converts a wire message back to the domain form.
func PayloadToMessage(p MessagePayload) domain.Message {
	attachments := make([]domain.AttachmentReference, 0, len(p.Attachments))
	for _, att := range p.Attachments {
		attachments = append(attachments, domain.AttachmentReference{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return domain.Message{
		ID:            p.ID,
		TicketID:      p.TicketID,
		SenderID:      p.SenderID,
		SenderRole:    p.SenderRole,
		SenderName:    p.SenderName,
		SenderAvatar:  p.SenderAvatar,
		Body:          p.Body,
		Attachments:   attachments,
		CorrelationID: p.CorrelationID,
		CreatedAt:     p.CreatedAt,
	}
}

// TicketToPayload converts a domain ticket to its wire form.
func TicketToPayload(ticket *domain.Ticket) TicketPayload {
	return TicketPayload{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		RequesterID: ticket.RequesterID,
		AssigneeID:  ticket.AssigneeID,
		Category:    ticket.Category,
		Title:       ticket.Title,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatedAt:   ticket.CreatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}
