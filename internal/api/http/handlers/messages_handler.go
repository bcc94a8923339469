package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-chat/internal/api/dto"
	"github.com/spec-kit/ticket-chat/internal/auth"
	"github.com/spec-kit/ticket-chat/internal/observability"
	"github.com/spec-kit/ticket-chat/internal/service"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

// MessagesHandler serves the durable channel: message history and the
// fallback persist endpoint.
type MessagesHandler struct {
	service   *service.ChatService
	bufferCap int
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(chatService *service.ChatService, bufferCap int) *MessagesHandler {
	return &MessagesHandler{service: chatService, bufferCap: bufferCap}
}

// History GET /api/tickets/:id/messages. With ?recent=1 it returns only the
// warm window (most recent bufferCap messages) plus the total count.
func (h *MessagesHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var page *service.HistoryPage
	var err error
	if c.QueryBool("recent") {
		page, err = h.service.RecentHistory(c.UserContext(), principal.Account, c.Params("id"), h.bufferCap)
	} else {
		page, err = h.service.FullHistory(c.UserContext(), principal.Account, c.Params("id"))
	}
	if err != nil {
		return err
	}

	items := make([]dto.MessageResponse, 0, len(page.Messages))
	for i := range page.Messages {
		items = append(items, dto.MessageFromDomain(&page.Messages[i]))
	}
	return c.JSON(fiber.Map{"data": dto.HistoryResponse{Messages: items, Total: page.Total}})
}

// Send POST /api/tickets/:id/messages. This is the durable fallback path;
// retries with the same correlation id are answered with the original row.
func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	attachments := make([]service.AttachmentInput, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, service.AttachmentInput{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}

	msg, err := h.service.PostMessage(c.UserContext(), principal.Account, observability.PathDurable, service.MessageInput{
		TicketID:      c.Params("id"),
		Body:          req.Body,
		Attachments:   attachments,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageFromDomain(msg)})
}
