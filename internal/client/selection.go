package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/realtime"
)

// ticketDeleter is the durable-channel slice the coordinator needs,
// satisfied by *API.
type ticketDeleter interface {
	BulkDeleteTickets(ctx context.Context, ids []string) ([]string, error)
}

// DeleteOutcome reports the result of a bulk delete, including where the
// caller should navigate when the ticket it had open was among the removed.
type DeleteOutcome struct {
	DeletedIDs []string
	// NextTicketID is set when the open ticket was deleted and another
	// ticket remains to land on.
	NextTicketID string
	// ListEmpty is set when the open ticket was deleted and nothing
	// remains.
	ListEmpty bool
}

// SelectionCoordinator tracks multi-select state over the ticket list. Only
// closed tickets are selectable; the selection is pruned against the list
// on every refresh so stale ids never reach a delete request in bulk.
type SelectionCoordinator struct {
	deleter ticketDeleter
	store   CacheStore
	logger  *zap.Logger

	mu         sync.Mutex
	order      []string
	statuses   map[string]domain.TicketStatus
	selected   map[string]struct{}
	openTicket string
}

// NewSelectionCoordinator constructs an empty coordinator. The store may be
// nil; when present its windows for deleted tickets are evicted so a
// recreated view cannot hydrate from a dead thread.
func NewSelectionCoordinator(deleter ticketDeleter, store CacheStore, logger *zap.Logger) *SelectionCoordinator {
	return &SelectionCoordinator{
		deleter:  deleter,
		store:    store,
		logger:   logger,
		statuses: make(map[string]domain.TicketStatus),
		selected: make(map[string]struct{}),
	}
}

func (s *SelectionCoordinator) evictWindows(ids []string) {
	if s.store == nil {
		return
	}
	for _, id := range ids {
		s.store.Evict(id)
	}
}

// Refresh replaces the known ticket list and prunes the selection: ids that
// vanished or are no longer closed drop out.
func (s *SelectionCoordinator) Refresh(tickets []domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.statuses = make(map[string]domain.TicketStatus, len(tickets))
	for _, ticket := range tickets {
		s.order = append(s.order, ticket.ID)
		s.statuses[ticket.ID] = ticket.Status
	}
	for id := range s.selected {
		if s.statuses[id] != domain.TicketStatusClosed {
			delete(s.selected, id)
		}
	}
}

// ApplyStatus records a live status change for one ticket. A ticket that
// leaves the closed state stays selected until the next refresh prunes it;
// the server ignores non-closed ids on delete regardless.
func (s *SelectionCoordinator) ApplyStatus(ticketID string, status domain.TicketStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.statuses[ticketID]; known {
		s.statuses[ticketID] = status
	}
}

// SetOpenTicket records which ticket's chat view is active, if any.
func (s *SelectionCoordinator) SetOpenTicket(ticketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openTicket = ticketID
}

// Toggle flips selection for one ticket. Non-closed tickets are not
// selectable; toggling one is a no-op and reports false.
func (s *SelectionCoordinator) Toggle(ticketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statuses[ticketID] != domain.TicketStatusClosed {
		return false
	}
	if _, on := s.selected[ticketID]; on {
		delete(s.selected, ticketID)
	} else {
		s.selected[ticketID] = struct{}{}
	}
	return true
}

// SelectAllEligible selects every closed ticket in the current list.
func (s *SelectionCoordinator) SelectAllEligible() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.statuses[id] == domain.TicketStatusClosed {
			s.selected[id] = struct{}{}
		}
	}
	return len(s.selected)
}

// Clear drops the whole selection.
func (s *SelectionCoordinator) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]struct{})
}

// Selected returns the selected ids in list order.
func (s *SelectionCoordinator) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

func (s *SelectionCoordinator) selectedLocked() []string {
	ids := make([]string, 0, len(s.selected))
	for _, id := range s.order {
		if _, on := s.selected[id]; on {
			ids = append(ids, id)
		}
	}
	return ids
}

// DeleteSelected removes the selection through the durable channel and
// reconciles local state with the ids the server actually deleted. The
// selection is cleared on success even for ids the server skipped.
func (s *SelectionCoordinator) DeleteSelected(ctx context.Context) (DeleteOutcome, error) {
	s.mu.Lock()
	ids := s.selectedLocked()
	s.mu.Unlock()

	if len(ids) == 0 {
		return DeleteOutcome{}, nil
	}

	deleted, err := s.deleter.BulkDeleteTickets(ctx, ids)
	if err != nil {
		s.logger.Warn("bulk delete failed", zap.Int("requested", len(ids)), zap.Error(err))
		return DeleteOutcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]struct{}, len(deleted))
	for _, id := range deleted {
		removed[id] = struct{}{}
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if _, gone := removed[id]; gone {
			delete(s.statuses, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.selected = make(map[string]struct{})
	s.evictWindows(deleted)

	outcome := DeleteOutcome{DeletedIDs: deleted}
	if _, gone := removed[s.openTicket]; gone {
		s.openTicket = ""
		if len(s.order) > 0 {
			outcome.NextTicketID = s.order[0]
		} else {
			outcome.ListEmpty = true
		}
	}
	return outcome, nil
}

// Watch keeps the list current from deletion and status broadcasts: tickets
// removed elsewhere drop out immediately, status changes feed the
// selectability checks. Cancel both subscriptions on teardown.
func (s *SelectionCoordinator) Watch(conn *Conn) []*Subscription {
	deleted := conn.Subscribe(realtime.EventTicketsDeleted, func(env realtime.Envelope) {
		var payload realtime.TicketsDeletedPayload
		if err := env.DecodeInto(&payload); err != nil {
			return
		}
		s.removeTickets(payload.TicketIDs)
	})
	updated := conn.Subscribe(realtime.EventTicketStatusUpdated, func(env realtime.Envelope) {
		var payload realtime.TicketPayload
		if err := env.DecodeInto(&payload); err != nil {
			return
		}
		s.ApplyStatus(payload.ID, payload.Status)
	})
	return []*Subscription{deleted, updated}
}

func (s *SelectionCoordinator) removeTickets(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		removed[id] = struct{}{}
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, gone := removed[id]; gone {
			delete(s.statuses, id)
			delete(s.selected, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.evictWindows(ids)
}

// RedirectFrom answers where to navigate when ticketID's chat view must be
// left, as after a single delete or a close. It returns the next ticket in
// list order, or ok=false when none remains.
func (s *SelectionCoordinator) RedirectFrom(ticketID string) (next string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if id != ticketID {
			return id, true
		}
	}
	return "", false
}
