package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-chat/internal/cache"
	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/lifecycle"
	"github.com/spec-kit/ticket-chat/internal/repository"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

// TicketService coordinates ticket workflows: creation, listing, the
// lifecycle transitions, assignment and deletion.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	warmCache  *cache.MessageCache
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	WarmCache   *cache.MessageCache
	Dispatcher  events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		warmCache:  deps.WarmCache,
		dispatcher: deps.Dispatcher,
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Category string
	Title    string
	Priority domain.TicketPriority
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Category   *string
	Limit      int
	Offset     int
}

// CreateTicket creates a ticket for a requester.
func (s *TicketService) CreateTicket(ctx context.Context, requesterID string, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	category := strings.TrimSpace(input.Category)
	if title == "" || category == "" {
		return nil, apperrors.NewValidationError("category and title required", nil)
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: requesterID,
		Category:    category,
		Title:       title,
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		ActorID:   requesterID,
		ActorRole: domain.RoleRequester,
		Payload:   events.TicketCreatedPayload{Ticket: *ticket},
	})
	return ticket, nil
}

// ListTickets returns tickets visible to the principal: requesters see their
// own, operators see everything.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.Account, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Category:   filter.Category,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if actor.Role == domain.RoleRequester {
		repoFilter.RequesterID = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicket fetches a ticket, ensuring the principal may see it.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.Account, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role == domain.RoleRequester && ticket.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// UpdateStatus applies a lifecycle transition for the acting principal. The
// transition table is enforced here regardless of what any client showed.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.Account, ticketID string, requested domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	res := lifecycle.Transition(ticket.Status, requested, actor.Role)
	if !res.Allowed {
		return nil, apperrors.NewTransitionDenied(res.Reason)
	}

	oldStatus := ticket.Status
	ticket.Status = res.Next
	if res.Next == domain.TicketStatusClosed {
		now := time.Now()
		ticket.ClosedAt = &now
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TicketID:  ticket.ID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Payload: events.TicketStatusChangedPayload{
			Ticket:    *ticket,
			OldStatus: oldStatus,
		},
	})
	return ticket, nil
}

// Assign sets the operator working a ticket.
func (s *TicketService) Assign(ctx context.Context, actor *domain.Account, ticketID, operatorID string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleOperator {
		return nil, apperrors.NewForbidden("only operators may assign tickets")
	}
	ticket, err := s.GetTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	ticket.AssigneeID = &operatorID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// DeleteTicket removes one ticket and its messages.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.Account, ticketID string) error {
	if actor.Role != domain.RoleOperator {
		return apperrors.NewForbidden("only operators may delete tickets")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return apperrors.MapError(err)
	}
	s.warmCache.Evict(ctx, ticketID)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketsDeleted,
		TicketID:  ticketID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Payload:   events.TicketsDeletedPayload{TicketIDs: []string{ticketID}},
	})
	return nil
}

// BulkDeleteTickets removes every listed ticket that is Closed and returns
// the ids actually deleted. Ids for tickets that are missing or not Closed
// are silently skipped so a stale selection cannot fail the whole batch.
func (s *TicketService) BulkDeleteTickets(ctx context.Context, actor *domain.Account, ids []string) ([]string, error) {
	if actor.Role != domain.RoleOperator {
		return nil, apperrors.NewForbidden("only operators may delete tickets")
	}
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("no ticket ids provided", nil)
	}
	deleted, err := s.tickets.DeleteManyClosed(ctx, ids)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(deleted) > 0 {
		s.warmCache.Evict(ctx, deleted...)
		s.publishEvent(ctx, events.Event{
			Type:      events.EventTicketsDeleted,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Payload:   events.TicketsDeletedPayload{TicketIDs: deleted},
		})
	}
	return deleted, nil
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
