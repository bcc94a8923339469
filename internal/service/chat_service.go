package service

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/cache"
	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/lifecycle"
	"github.com/spec-kit/ticket-chat/internal/observability"
	"github.com/spec-kit/ticket-chat/internal/repository"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

// ChatService owns message persistence and history. It is the single write
// path for both delivery channels, so the correlation-id idempotency holds
// whether a message arrives over the websocket or the HTTP fallback.
type ChatService struct {
	tickets     repository.TicketRepository
	messages    repository.MessageRepository
	attachments repository.AttachmentRepository
	warmCache   *cache.MessageCache
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	TicketRepo     repository.TicketRepository
	MessageRepo    repository.MessageRepository
	AttachmentRepo repository.AttachmentRepository
	WarmCache      *cache.MessageCache
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	return &ChatService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		attachments: deps.AttachmentRepo,
		warmCache:   deps.WarmCache,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// AttachmentInput defines attachment metadata on a send.
type AttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// MessageInput describes a message send from either delivery channel.
type MessageInput struct {
	TicketID      string
	Body          string
	Attachments   []AttachmentInput
	CorrelationID string
}

// PostMessage validates, persists and announces one message. Duplicate
// correlation ids resolve to the originally persisted message without a new
// row or a second broadcast.
func (s *ChatService) PostMessage(ctx context.Context, sender *domain.Account, path observability.DeliveryPath, input MessageInput) (*domain.Message, error) {
	body := strings.TrimSpace(input.Body)
	if input.TicketID == "" || input.CorrelationID == "" || (body == "" && len(input.Attachments) == 0) {
		s.metrics.RecordDelivery(observability.PathRejected)
		return nil, apperrors.NewMissingFields(map[string]any{
			"ticket_id":      input.TicketID != "",
			"correlation_id": input.CorrelationID != "",
			"content":        body != "" || len(input.Attachments) > 0,
		})
	}

	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}
	if sender.Role == domain.RoleRequester && ticket.RequesterID != sender.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	if !lifecycle.ChatAllowed(ticket.Status) {
		return nil, apperrors.NewChatDisabled(ticket.ID)
	}

	msg := &domain.Message{
		TicketID:      ticket.ID,
		SenderID:      sender.ID,
		SenderRole:    sender.Role,
		SenderName:    sender.Name,
		SenderAvatar:  sender.AvatarURL,
		Body:          body,
		CorrelationID: input.CorrelationID,
	}
	created, err := s.messages.CreateIdempotent(ctx, msg)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !created {
		// A retried send after a lost ack; the original row is authoritative.
		// Its attachments live in their own table and must ride along, or an
		// attachment-only retry would come back empty.
		attachments, err := s.attachments.ListByMessage(ctx, msg.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		msg.Attachments = attachments
		s.metrics.RecordDuplicate()
		s.logger.Debug("duplicate send suppressed",
			zap.String("ticket_id", ticket.ID),
			zap.String("correlation_id", input.CorrelationID))
		return msg, nil
	}

	for _, att := range input.Attachments {
		record := &domain.AttachmentReference{
			MessageID:  msg.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		}
		if err := s.attachments.Create(ctx, record); err != nil {
			return nil, apperrors.MapError(err)
		}
		msg.Attachments = append(msg.Attachments, *record)
	}

	s.metrics.RecordDelivery(path)
	s.warmCache.Append(ctx, msg)

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventMessageAdded,
			TicketID:  ticket.ID,
			ActorID:   sender.ID,
			ActorRole: sender.Role,
			Payload:   events.MessageAddedPayload{Message: *msg},
		})
	}
	return msg, nil
}

// HistoryPage is one read of a ticket's thread.
type HistoryPage struct {
	Messages []domain.Message
	Total    int
}

// RecentHistory returns the warm window of a ticket's thread: up to limit
// most recent messages plus the total count so callers can tell whether
// older messages exist. The Redis cache is consulted first; a miss reads
// Postgres and repopulates it.
func (s *ChatService) RecentHistory(ctx context.Context, actor *domain.Account, ticketID string, limit int) (*HistoryPage, error) {
	if err := s.authorizeRead(ctx, actor, ticketID); err != nil {
		return nil, err
	}

	if cached, ok := s.warmCache.Recent(ctx, ticketID); ok && len(cached) < limit {
		// The window is seeded only by a full durable read and appends never
		// create it, so an under-limit window is the whole thread. At the
		// limit the durable store must supply the total.
		return &HistoryPage{Messages: cached, Total: len(cached)}, nil
	}

	msgs, total, err := s.messages.ListRecentByTicket(ctx, ticketID, limit)
	if err != nil {
		return nil, apperrors.NewHistoryLoadFailed(err)
	}
	msgs, err = s.attachMetadata(ctx, msgs)
	if err != nil {
		return nil, apperrors.NewHistoryLoadFailed(err)
	}
	s.warmCache.Replace(ctx, ticketID, msgs)
	return &HistoryPage{Messages: msgs, Total: total}, nil
}

// FullHistory returns the complete thread from the durable store, used by
// the client's "load earlier" operation.
func (s *ChatService) FullHistory(ctx context.Context, actor *domain.Account, ticketID string) (*HistoryPage, error) {
	if err := s.authorizeRead(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewHistoryLoadFailed(err)
	}
	msgs, err = s.attachMetadata(ctx, msgs)
	if err != nil {
		return nil, apperrors.NewHistoryLoadFailed(err)
	}
	return &HistoryPage{Messages: msgs, Total: len(msgs)}, nil
}

func (s *ChatService) authorizeRead(ctx context.Context, actor *domain.Account, ticketID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return apperrors.MapError(err)
	}
	if actor.Role == domain.RoleRequester && ticket.RequesterID != actor.ID {
		return apperrors.NewForbidden("access denied")
	}
	return nil
}

func (s *ChatService) attachMetadata(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	for i := range msgs {
		attachments, err := s.attachments.ListByMessage(ctx, msgs[i].ID)
		if err != nil {
			return nil, err
		}
		msgs[i].Attachments = attachments
	}
	return msgs, nil
}
