package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spec-kit/ticket-chat/internal/api/dto"
	"github.com/spec-kit/ticket-chat/internal/domain"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

// API is the durable request/response channel. Every call is authenticated
// with the bearer token supplied at construction.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPI constructs the durable channel client against baseURL, e.g.
// "http://localhost:8080".
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PersistMessage appends a message over the durable channel. The server
// deduplicates on the correlation id, so replaying a send that may already
// have landed via the streaming channel is safe.
func (a *API) PersistMessage(ctx context.Context, ticketID string, req dto.SendMessageRequest) (*domain.Message, error) {
	var resp dto.MessageResponse
	path := fmt.Sprintf("/api/tickets/%s/messages", ticketID)
	if err := a.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	msg := resp.ToDomain()
	return &msg, nil
}

// RecentHistory fetches the most recent window of a ticket thread along
// with the total thread length.
func (a *API) RecentHistory(ctx context.Context, ticketID string) (*dto.HistoryResponse, error) {
	var resp dto.HistoryResponse
	path := fmt.Sprintf("/api/tickets/%s/messages?recent=1", ticketID)
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FullHistory fetches the entire ticket thread.
func (a *API) FullHistory(ctx context.Context, ticketID string) (*dto.HistoryResponse, error) {
	var resp dto.HistoryResponse
	path := fmt.Sprintf("/api/tickets/%s/messages", ticketID)
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTickets fetches the tickets visible to the authenticated account.
func (a *API) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	var resp []dto.TicketResponse
	if err := a.do(ctx, http.MethodGet, "/api/tickets", nil, &resp); err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, 0, len(resp))
	for _, item := range resp {
		tickets = append(tickets, item.ToDomain())
	}
	return tickets, nil
}

// GetTicket fetches one ticket.
func (a *API) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var resp dto.TicketResponse
	if err := a.do(ctx, http.MethodGet, "/api/tickets/"+ticketID, nil, &resp); err != nil {
		return nil, err
	}
	ticket := resp.ToDomain()
	return &ticket, nil
}

// UpdateTicketStatus requests a lifecycle transition.
func (a *API) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	var resp dto.TicketResponse
	req := dto.UpdateStatusRequest{Status: status}
	if err := a.do(ctx, http.MethodPatch, "/api/tickets/"+ticketID+"/status", req, &resp); err != nil {
		return nil, err
	}
	ticket := resp.ToDomain()
	return &ticket, nil
}

// DeleteTicket removes one ticket.
func (a *API) DeleteTicket(ctx context.Context, ticketID string) error {
	return a.do(ctx, http.MethodDelete, "/api/tickets/"+ticketID, nil, nil)
}

// BulkDeleteTickets removes the closed tickets among ids and returns the ids
// the server actually deleted.
func (a *API) BulkDeleteTickets(ctx context.Context, ids []string) ([]string, error) {
	var resp dto.BulkDeleteResponse
	req := dto.BulkDeleteRequest{TicketIDs: ids}
	if err := a.do(ctx, http.MethodPost, "/api/tickets/bulk-delete", req, &resp); err != nil {
		return nil, err
	}
	return resp.DeletedIDs, nil
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if envelope.Error != nil {
			return apperrors.NewDomainError(envelope.Error.Code, envelope.Error.Message, resp.StatusCode, nil)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil && envelope.Data != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}
