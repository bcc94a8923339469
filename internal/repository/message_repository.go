package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// MessageRepository manages ticket thread messages. Persistence is
// idempotent on the client correlation id: retried sends with the same id
// resolve to the original row instead of creating a duplicate.
type MessageRepository interface {
	// CreateIdempotent persists msg unless a message with the same
	// correlation id already exists. It fills in the server-assigned id and
	// timestamp either way and reports whether a new row was created.
	CreateIdempotent(ctx context.Context, msg *domain.Message) (created bool, err error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Message, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	// ListRecentByTicket returns the most recent limit messages in ascending
	// order plus the total count for the ticket.
	ListRecentByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, int, error)
}

const messageColumns = `m.id, m.ticket_id, m.sender_account_id, m.sender_role, m.body,
               m.client_correlation_id, m.created_at, a.name, a.avatar_url`

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) CreateIdempotent(ctx context.Context, msg *domain.Message) (bool, error) {
	const insert = `
        INSERT INTO ticket_messages (ticket_id, sender_account_id, sender_role, body, client_correlation_id)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (client_correlation_id) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, insert,
		msg.TicketID,
		msg.SenderID,
		msg.SenderRole,
		msg.Body,
		msg.CorrelationID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err == nil {
		return true, nil
	}
	if err != pgx.ErrNoRows {
		return false, err
	}

	// Conflict: a prior send with this correlation id won. Adopt its row.
	existing, err := r.GetByCorrelationID(ctx, msg.CorrelationID)
	if err != nil {
		return false, err
	}
	*msg = *existing
	return false, nil
}

func (r *messageRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM ticket_messages m JOIN accounts a ON a.id = m.sender_account_id
        WHERE m.client_correlation_id=$1`
	row := r.pool.QueryRow(ctx, query, correlationID)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM ticket_messages m JOIN accounts a ON a.id = m.sender_account_id
        WHERE m.ticket_id=$1 ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) ListRecentByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ticket_messages WHERE ticket_id=$1`, ticketID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT ` + messageColumns + `
        FROM (
            SELECT * FROM ticket_messages
            WHERE ticket_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2
        ) m JOIN accounts a ON a.id = m.sender_account_id
        ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	if err := row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.SenderID,
		&msg.SenderRole,
		&msg.Body,
		&msg.CorrelationID,
		&msg.CreatedAt,
		&msg.SenderName,
		&msg.SenderAvatar,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}
