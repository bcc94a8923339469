package dto

import (
	"time"

	"github.com/spec-kit/ticket-chat/internal/domain"
)

// SendMessageRequest is the durable-channel send payload. CorrelationID
// must match the id used on any prior streaming attempt for the same
// logical message.
type SendMessageRequest struct {
	Body          string              `json:"body"`
	Attachments   []AttachmentRequest `json:"attachments,omitempty"`
	CorrelationID string              `json:"correlation_id"`
}

// AttachmentRequest describes attachment input.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// MessageResponse represents a persisted thread message.
type MessageResponse struct {
	ID            string               `json:"id"`
	TicketID      string               `json:"ticket_id"`
	SenderID      string               `json:"sender_id"`
	SenderRole    domain.Role          `json:"sender_role"`
	SenderName    string               `json:"sender_name,omitempty"`
	SenderAvatar  *string              `json:"sender_avatar,omitempty"`
	Body          string               `json:"body"`
	Attachments   []AttachmentResponse `json:"attachments,omitempty"`
	CorrelationID string               `json:"correlation_id"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// HistoryResponse is one read of a ticket thread. Total lets the reader
// detect that older messages exist beyond the returned window.
type HistoryResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
}

// MessageFromDomain maps a domain message to its response form.
func MessageFromDomain(msg *domain.Message) MessageResponse {
	attachments := make([]AttachmentResponse, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, AttachmentResponse{
			ID:        att.ID,
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		})
	}
	return MessageResponse{
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

// ToDomain maps a message response back to the domain form.
func (m MessageResponse) ToDomain() domain.Message {
	attachments := make([]domain.AttachmentReference, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		attachments = append(attachments, domain.AttachmentReference{
			ID:        att.ID,
			MessageID: m.ID,
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		})
	}
	return domain.Message{
		ID:            m.ID,
		TicketID:      m.TicketID,
		SenderID:      m.SenderID,
		SenderRole:    m.SenderRole,
		SenderName:    m.SenderName,
		SenderAvatar:  m.SenderAvatar,
		Body:          m.Body,
		Attachments:   attachments,
		CorrelationID: m.CorrelationID,
		CreatedAt:     m.CreatedAt,
	}
}
