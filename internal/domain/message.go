package domain

import "time"

// Role identifies which side of a ticket conversation an actor is on.
type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleOperator  Role = "OPERATOR"
)

// Message captures one chat entry in a ticket thread. Messages are immutable
// once persisted and are destroyed only when their ticket is deleted. The
// CorrelationID is generated by the sending client and deduplicates the
// message across the streaming and durable delivery paths.
type Message struct {
	ID            string
	TicketID      string
	SenderID      string
	SenderRole    Role
	SenderName    string
	SenderAvatar  *string
	Body          string
	Attachments   []AttachmentReference
	CorrelationID string
	CreatedAt     time.Time
}

// AttachmentReference stores metadata for a message attachment. Blob storage
// lives outside this service; only the storage key travels through it.
type AttachmentReference struct {
	ID         string
	MessageID  string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
