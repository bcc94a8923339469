package events

import (
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketsDeleted      EventType = "tickets_deleted"
	EventMessageAdded        EventType = "message_added"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   string      `json:"actor_id"`
	ActorRole domain.Role `json:"actor_role"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    domain.Ticket       `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
}

// TicketsDeletedPayload payload. TicketIDs covers both single and bulk
// deletion.
type TicketsDeletedPayload struct {
	TicketIDs []string `json:"ticket_ids"`
}

// MessageAddedPayload payload. Carries the full persisted message so the
// broadcast path needs no second read.
type MessageAddedPayload struct {
	Message domain.Message `json:"message"`
}
