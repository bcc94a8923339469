package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

type fakeDeleter struct {
	deleted  []string
	err      error
	requests [][]string
}

func (f *fakeDeleter) BulkDeleteTickets(_ context.Context, ids []string) ([]string, error) {
	f.requests = append(f.requests, ids)
	if f.err != nil {
		return nil, f.err
	}
	if f.deleted != nil {
		return f.deleted, nil
	}
	return ids, nil
}

func selectionTickets() []domain.Ticket {
	return []domain.Ticket{
		{ID: "t1", Status: domain.TicketStatusOpen},
		{ID: "t2", Status: domain.TicketStatusClosed},
		{ID: "t3", Status: domain.TicketStatusClosed},
		{ID: "t4", Status: domain.TicketStatusResolved},
		{ID: "t5", Status: domain.TicketStatusClosed},
	}
}

func TestSelectionToggleClosedOnly(t *testing.T) {
	coord := NewSelectionCoordinator(&fakeDeleter{}, nil, zap.NewNop())
	coord.Refresh(selectionTickets())

	require.False(t, coord.Toggle("t1"), "open ticket is not selectable")
	require.False(t, coord.Toggle("t4"), "resolved ticket is not selectable")
	require.False(t, coord.Toggle("missing"))
	require.True(t, coord.Toggle("t2"))
	require.Equal(t, []string{"t2"}, coord.Selected())

	// Toggling again deselects.
	require.True(t, coord.Toggle("t2"))
	require.Empty(t, coord.Selected())
}

func TestSelectionSelectAllEligible(t *testing.T) {
	coord := NewSelectionCoordinator(&fakeDeleter{}, nil, zap.NewNop())
	coord.Refresh(selectionTickets())

	require.Equal(t, 3, coord.SelectAllEligible())
	require.Equal(t, []string{"t2", "t3", "t5"}, coord.Selected())

	coord.Clear()
	require.Empty(t, coord.Selected())
}

func TestSelectionRefreshPrunes(t *testing.T) {
	coord := NewSelectionCoordinator(&fakeDeleter{}, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	coord.SelectAllEligible()

	// t2 reopened elsewhere, t5 vanished from the list.
	coord.Refresh([]domain.Ticket{
		{ID: "t1", Status: domain.TicketStatusOpen},
		{ID: "t2", Status: domain.TicketStatusOpen},
		{ID: "t3", Status: domain.TicketStatusClosed},
	})

	require.Equal(t, []string{"t3"}, coord.Selected())
}

func TestSelectionApplyStatusKeepsUntilPrune(t *testing.T) {
	coord := NewSelectionCoordinator(&fakeDeleter{}, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	require.True(t, coord.Toggle("t2"))

	coord.ApplyStatus("t2", domain.TicketStatusOpen)
	require.Equal(t, []string{"t2"}, coord.Selected(),
		"a live status change does not evict until the next refresh")
	require.False(t, coord.Toggle("t2"), "but the ticket is no longer toggleable")

	coord.Refresh([]domain.Ticket{{ID: "t2", Status: domain.TicketStatusOpen}})
	require.Empty(t, coord.Selected())
}

func TestSelectionDeleteSelectedRedirectsToNext(t *testing.T) {
	deleter := &fakeDeleter{}
	coord := NewSelectionCoordinator(deleter, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	coord.SetOpenTicket("t3")
	require.True(t, coord.Toggle("t2"))
	require.True(t, coord.Toggle("t3"))

	outcome, err := coord.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Equal(t, [][]string{{"t2", "t3"}}, deleter.requests)
	require.Equal(t, []string{"t2", "t3"}, outcome.DeletedIDs)
	require.Equal(t, "t1", outcome.NextTicketID, "the open ticket was deleted, land on the next remaining one")
	require.False(t, outcome.ListEmpty)
	require.Empty(t, coord.Selected())
}

func TestSelectionDeleteSelectedEmptyList(t *testing.T) {
	deleter := &fakeDeleter{}
	coord := NewSelectionCoordinator(deleter, nil, zap.NewNop())
	coord.Refresh([]domain.Ticket{{ID: "t1", Status: domain.TicketStatusClosed}})
	coord.SetOpenTicket("t1")
	require.True(t, coord.Toggle("t1"))

	outcome, err := coord.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Empty(t, outcome.NextTicketID)
	require.True(t, outcome.ListEmpty)
}

func TestSelectionDeleteSelectedOpenTicketSurvives(t *testing.T) {
	deleter := &fakeDeleter{}
	coord := NewSelectionCoordinator(deleter, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	coord.SetOpenTicket("t1")
	coord.SelectAllEligible()

	outcome, err := coord.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Empty(t, outcome.NextTicketID, "no redirect when the open ticket was not deleted")
	require.False(t, outcome.ListEmpty)
}

func TestSelectionDeleteSelectedHonorsServerSkips(t *testing.T) {
	// The server reports which ids it really removed; skipped ones stay in
	// the local list.
	deleter := &fakeDeleter{deleted: []string{"t2"}}
	coord := NewSelectionCoordinator(deleter, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	require.True(t, coord.Toggle("t2"))
	require.True(t, coord.Toggle("t3"))

	outcome, err := coord.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"t2"}, outcome.DeletedIDs)

	next, ok := coord.RedirectFrom("t3")
	require.True(t, ok)
	require.Equal(t, "t1", next)
}

func TestSelectionDeleteSelectedError(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("server unavailable")}
	coord := NewSelectionCoordinator(deleter, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	require.True(t, coord.Toggle("t2"))

	_, err := coord.DeleteSelected(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"t2"}, coord.Selected(), "a failed delete keeps the selection for retry")
}

func TestSelectionDeleteSelectedEmptySelection(t *testing.T) {
	deleter := &fakeDeleter{}
	coord := NewSelectionCoordinator(deleter, nil, zap.NewNop())
	coord.Refresh(selectionTickets())

	outcome, err := coord.DeleteSelected(context.Background())
	require.NoError(t, err)
	require.Empty(t, outcome.DeletedIDs)
	require.Empty(t, deleter.requests, "nothing selected means no request at all")
}

func TestSelectionLiveDeletionPrunes(t *testing.T) {
	coord := NewSelectionCoordinator(&fakeDeleter{}, nil, zap.NewNop())
	coord.Refresh(selectionTickets())
	require.True(t, coord.Toggle("t2"))
	require.True(t, coord.Toggle("t3"))

	// Another operator deleted t2 and t4; the broadcast prunes immediately.
	coord.removeTickets([]string{"t2", "t4"})
	require.Equal(t, []string{"t3"}, coord.Selected())

	next, ok := coord.RedirectFrom("t1")
	require.True(t, ok)
	require.Equal(t, "t3", next)
}

func TestSelectionDeleteEvictsCachedWindows(t *testing.T) {
	store := NewSessionCache()
	require.NoError(t, store.Put("t1", bufferMessages(2)))
	require.NoError(t, store.Put("t2", bufferMessages(2)))
	require.NoError(t, store.Put("t3", bufferMessages(2)))

	coord := NewSelectionCoordinator(&fakeDeleter{}, store, zap.NewNop())
	coord.Refresh(selectionTickets())
	require.True(t, coord.Toggle("t2"))
	require.True(t, coord.Toggle("t3"))

	_, err := coord.DeleteSelected(context.Background())
	require.NoError(t, err)

	// A recreated view for a deleted ticket must not hydrate from the dead
	// thread; surviving tickets keep their window.
	_, ok := store.Get("t2")
	require.False(t, ok)
	_, ok = store.Get("t3")
	require.False(t, ok)
	_, ok = store.Get("t1")
	require.True(t, ok)
}

func TestSelectionLiveDeletionEvictsCachedWindows(t *testing.T) {
	store := NewSessionCache()
	require.NoError(t, store.Put("t2", bufferMessages(2)))
	require.NoError(t, store.Put("t3", bufferMessages(2)))

	coord := NewSelectionCoordinator(&fakeDeleter{}, store, zap.NewNop())
	coord.Refresh(selectionTickets())

	coord.removeTickets([]string{"t2"})

	_, ok := store.Get("t2")
	require.False(t, ok)
	_, ok = store.Get("t3")
	require.True(t, ok)
}

func TestSelectionRedirectFrom(t *testing.T) {
	coord := NewSelectionCoordinator(&fakeDeleter{}, nil, zap.NewNop())
	coord.Refresh(selectionTickets())

	next, ok := coord.RedirectFrom("t1")
	require.True(t, ok)
	require.Equal(t, "t2", next)

	coord.Refresh([]domain.Ticket{{ID: "t9", Status: domain.TicketStatusOpen}})
	_, ok = coord.RedirectFrom("t9")
	require.False(t, ok, "leaving the only ticket lands on the empty state")
}
