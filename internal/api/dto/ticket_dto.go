package dto

import (
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category string                `json:"category"`
	Title    string                `json:"title"`
	Priority domain.TicketPriority `json:"priority"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignRequest payload.
type AssignRequest struct {
	OperatorID string `json:"operator_id"`
}

// BulkDeleteRequest payload.
type BulkDeleteRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

// BulkDeleteResponse reports which ids were actually removed.
type BulkDeleteResponse struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	RequesterID string                `json:"requester_id"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Category    string                `json:"category"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ClosedAt    *time.Time            `json:"closed_at,omitempty"`
}

// TicketFromDomain maps a domain ticket to its response form.
func TicketFromDomain(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		RequesterID: ticket.RequesterID,
		AssigneeID:  ticket.AssigneeID,
		Category:    ticket.Category,
		Title:       ticket.Title,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}

// ToDomain maps a ticket response back to the domain form.
func (t TicketResponse) ToDomain() domain.Ticket {
	return domain.Ticket{
		ID:          t.ID,
		ExternalKey: t.ExternalKey,
		RequesterID: t.RequesterID,
		AssigneeID:  t.AssigneeID,
		Category:    t.Category,
		Title:       t.Title,
		Status:      t.Status,
		Priority:    t.Priority,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
	}
}
