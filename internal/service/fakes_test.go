package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/repository"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	order   []string
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, ticket := range tickets {
		copied := *ticket
		repo.tickets[ticket.ID] = &copied
		repo.order = append(repo.order, ticket.ID)
	}
	return repo
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = fmt.Sprintf("tck-%d", r.seq)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	r.order = append(r.order, ticket.ID)
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticket, 0, len(r.order))
	for _, id := range r.order {
		ticket := r.tickets[id]
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		out = append(out, *ticket)
	}
	return out, nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	r.remove(id)
	return nil
}

func (r *fakeTicketRepo) DeleteManyClosed(_ context.Context, ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		ticket, ok := r.tickets[id]
		if !ok || ticket.Status != domain.TicketStatusClosed {
			continue
		}
		r.remove(id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (r *fakeTicketRepo) remove(id string) {
	delete(r.tickets, id)
	for i, known := range r.order {
		if known == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	seq      int
	byCorr   map[string]*domain.Message
	byTicket map[string][]domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		byCorr:   make(map[string]*domain.Message),
		byTicket: make(map[string][]domain.Message),
	}
}

func (r *fakeMessageRepo) CreateIdempotent(_ context.Context, msg *domain.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byCorr[msg.CorrelationID]; ok {
		*msg = *existing
		return false, nil
	}
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	msg.CreatedAt = time.Now()
	copied := *msg
	r.byCorr[msg.CorrelationID] = &copied
	r.byTicket[msg.TicketID] = append(r.byTicket[msg.TicketID], copied)
	return true, nil
}

func (r *fakeMessageRepo) GetByCorrelationID(_ context.Context, correlationID string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.byCorr[correlationID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *msg
	return &copied, nil
}

func (r *fakeMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byTicket[ticketID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *fakeMessageRepo) ListRecentByTicket(_ context.Context, ticketID string, limit int) ([]domain.Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byTicket[ticketID]
	total := len(msgs)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, total, nil
}

type fakeAttachmentRepo struct {
	mu        sync.Mutex
	seq       int
	byMessage map[string][]domain.AttachmentReference
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{byMessage: make(map[string][]domain.AttachmentReference)}
}

func (r *fakeAttachmentRepo) Create(_ context.Context, att *domain.AttachmentReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	att.ID = fmt.Sprintf("att-%d", r.seq)
	r.byMessage[att.MessageID] = append(r.byMessage[att.MessageID], *att)
	return nil
}

func (r *fakeAttachmentRepo) ListByMessage(_ context.Context, messageID string) ([]domain.AttachmentReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	atts := r.byMessage[messageID]
	out := make([]domain.AttachmentReference, len(atts))
	copy(out, atts)
	return out, nil
}

type capturingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *capturingDispatcher) published() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.Event, len(d.events))
	copy(out, d.events)
	return out
}
