package domain

// TypingSignal is the ephemeral presence indicator for a ticket room. It is
// never persisted and has no identity beyond (ticket, sender); receivers let
// it expire on a timer.
type TypingSignal struct {
	TicketID string
	SenderID string
	Active   bool
}
