package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/api/dto"
	"github.com/spec-kit/ticket-chat/internal/domain"
	"github.com/spec-kit/ticket-chat/internal/realtime"
	apperrors "github.com/spec-kit/ticket-chat/pkg/util"
)

type fakeStream struct {
	connected bool
	ack       *realtime.MessageAckPayload
	err       error
	calls     int
	lastSent  realtime.SendMessagePayload
}

func (f *fakeStream) Connected() bool { return f.connected }

func (f *fakeStream) SendMessage(_ context.Context, payload realtime.SendMessagePayload, _ time.Duration) (*realtime.MessageAckPayload, error) {
	f.calls++
	f.lastSent = payload
	return f.ack, f.err
}

type fakeDurable struct {
	msg      *domain.Message
	err      error
	calls    int
	lastReq  dto.SendMessageRequest
	ticketID string
}

func (f *fakeDurable) PersistMessage(_ context.Context, ticketID string, req dto.SendMessageRequest) (*domain.Message, error) {
	f.calls++
	f.ticketID = ticketID
	f.lastReq = req
	return f.msg, f.err
}

func TestDeliverySendValidation(t *testing.T) {
	stream := &fakeStream{connected: true}
	durable := &fakeDurable{}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	cases := []struct {
		name  string
		draft MessageDraft
	}{
		{name: "missing ticket", draft: MessageDraft{Body: "hello"}},
		{name: "blank body", draft: MessageDraft{TicketID: "t1", Body: "   "}},
		{name: "empty draft", draft: MessageDraft{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coord.Send(context.Background(), tc.draft)
			require.True(t, apperrors.IsCode(err, apperrors.CodeMissingFields))
		})
	}
	require.Zero(t, stream.calls, "rejected send must not touch the streaming channel")
	require.Zero(t, durable.calls, "rejected send must not touch the durable channel")
}

func TestDeliverySendAttachmentOnly(t *testing.T) {
	stream := &fakeStream{connected: false}
	durable := &fakeDurable{msg: &domain.Message{ID: "m1", TicketID: "t1"}}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	msg, err := coord.Send(context.Background(), MessageDraft{
		TicketID:    "t1",
		Attachments: []dto.AttachmentRequest{{StorageKey: "k", FileName: "f.png"}},
	})
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
}

func TestDeliverySendChatGateRefusal(t *testing.T) {
	stream := &fakeStream{connected: true}
	durable := &fakeDurable{}
	gate := NewChatGate()
	gate.Observe("t1", domain.TicketStatusClosed)
	coord := NewDeliveryCoordinator(stream, durable, gate, time.Second, zap.NewNop())

	_, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeChatDisabled))
	require.Zero(t, stream.calls)
	require.Zero(t, durable.calls)

	// Reopening the ticket lifts the gate.
	gate.Observe("t1", domain.TicketStatusOpen)
	durable.msg = &domain.Message{ID: "m1"}
	stream.connected = false
	_, err = coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.NoError(t, err)
}

func TestDeliverySendStreamingAckWins(t *testing.T) {
	stream := &fakeStream{
		connected: true,
		ack: &realtime.MessageAckPayload{
			OK:      true,
			Message: &realtime.MessagePayload{ID: "m1", TicketID: "t1", Body: "hi"},
		},
	}
	durable := &fakeDurable{}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	msg, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Zero(t, durable.calls, "a won race must not hit the durable channel")
	require.NotEmpty(t, stream.lastSent.CorrelationID)
}

func TestDeliverySendFallsBackOnTimeout(t *testing.T) {
	stream := &fakeStream{connected: true, err: ErrAckTimeout}
	durable := &fakeDurable{msg: &domain.Message{ID: "m2", TicketID: "t1", Body: "hi"}}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	msg, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, "m2", msg.ID)
	require.Equal(t, 1, stream.calls)
	require.Equal(t, 1, durable.calls)
	require.Equal(t, "t1", durable.ticketID)
	require.Equal(t, stream.lastSent.CorrelationID, durable.lastReq.CorrelationID,
		"both attempts of one logical message must share a correlation id")
}

func TestDeliverySendFallsBackOnRefusedAck(t *testing.T) {
	stream := &fakeStream{
		connected: true,
		ack:       &realtime.MessageAckPayload{OK: false, Error: "persist failed"},
	}
	durable := &fakeDurable{msg: &domain.Message{ID: "m3"}}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	msg, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, "m3", msg.ID)
}

func TestDeliverySendSkipsStreamWhenDisconnected(t *testing.T) {
	stream := &fakeStream{connected: false}
	durable := &fakeDurable{msg: &domain.Message{ID: "m4"}}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	msg, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.NoError(t, err)
	require.Equal(t, "m4", msg.ID)
	require.Zero(t, stream.calls)
}

func TestDeliverySendBothChannelsExhausted(t *testing.T) {
	stream := &fakeStream{connected: true, err: ErrAckTimeout}
	durable := &fakeDurable{err: errors.New("connection refused")}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	_, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeDeliveryFailed))
}

func TestDeliverySendPreservesServerRefusalCodes(t *testing.T) {
	stream := &fakeStream{connected: false}
	durable := &fakeDurable{err: apperrors.NewChatDisabled("t1")}
	coord := NewDeliveryCoordinator(stream, durable, nil, time.Second, zap.NewNop())

	_, err := coord.Send(context.Background(), MessageDraft{TicketID: "t1", Body: "hi"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeChatDisabled),
		"a server-side gate refusal must not be disguised as a delivery failure")
}
