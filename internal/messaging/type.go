package messaging

import (
	"context"
	"time"
)

// Message is a chat message as held in feature state. Pending is true from
// the optimistic insert until the durable write resolves.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	SentAt         time.Time
	Pending        bool
	ReadBy         []string
}

// messageWire is the shape shared by the message:new payload and the
// persistence API.
type messageWire struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

func (w messageWire) toMessage() Message {
	return Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		Body:           w.Body,
		SentAt:         w.SentAt,
	}
}

func toWire(m Message) messageWire {
	return messageWire{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		SentAt:         m.SentAt,
	}
}

// readWire is the message:read payload.
type readWire struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// sendRequest is the durable write issued alongside the emitted event.
type sendRequest struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
	ClientRef      string `json:"client_ref"`
}

// Poster is the slice of the durable client this feature needs.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}
