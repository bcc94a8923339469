package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/events"
	"github.com/spec-kit/ticket-chat/internal/realtime"
)

// BroadcastWorker forwards domain events to the websocket hub so everyone
// with the ticket room open sees changes live.
type BroadcastWorker struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

// StartBroadcastWorker subscribes the worker to the dispatcher.
func StartBroadcastWorker(dispatcher events.Dispatcher, hub *realtime.Hub, logger *zap.Logger) *BroadcastWorker {
	w := &BroadcastWorker{hub: hub, logger: logger}
	if dispatcher == nil {
		return w
	}
	dispatcher.Subscribe(events.EventMessageAdded, w.handleMessageAdded)
	dispatcher.Subscribe(events.EventTicketCreated, w.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketStatusChanged, w.handleTicketStatusChanged)
	dispatcher.Subscribe(events.EventTicketsDeleted, w.handleTicketsDeleted)
	return w
}

func (w *BroadcastWorker) handleMessageAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessageAddedPayload)
	if !ok {
		return nil
	}
	env, err := realtime.NewEnvelope(realtime.EventReceiveMessage, realtime.MessageToPayload(&payload.Message))
	if err != nil {
		w.logger.Error("encode receive_message", zap.Error(err))
		return err
	}
	// The sender already holds the authoritative message from the ack or the
	// fallback response; only the rest of the room needs the broadcast.
	w.hub.BroadcastRoom(event.TicketID, env, payload.Message.SenderID)
	return nil
}

func (w *BroadcastWorker) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	env, err := realtime.NewEnvelope(realtime.EventTicketCreated, realtime.TicketToPayload(&payload.Ticket))
	if err != nil {
		w.logger.Error("encode ticket_created", zap.Error(err))
		return err
	}
	w.hub.BroadcastRole(domain.RoleOperator, env)
	return nil
}

func (w *BroadcastWorker) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	env, err := realtime.NewEnvelope(realtime.EventTicketStatusUpdated, realtime.TicketToPayload(&payload.Ticket))
	if err != nil {
		w.logger.Error("encode ticket_status_updated", zap.Error(err))
		return err
	}
	w.hub.BroadcastRoom(event.TicketID, env, "")
	return nil
}

func (w *BroadcastWorker) handleTicketsDeleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketsDeletedPayload)
	if !ok || len(payload.TicketIDs) == 0 {
		return nil
	}
	env, err := realtime.NewEnvelope(realtime.EventTicketsDeleted, realtime.TicketsDeletedPayload{
		TicketIDs: payload.TicketIDs,
	})
	if err != nil {
		w.logger.Error("encode tickets_deleted", zap.Error(err))
		return err
	}
	w.hub.BroadcastAll(env)
	return nil
}
