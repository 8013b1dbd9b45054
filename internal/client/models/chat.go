package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Source is a grounding reference attached to a model answer.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is one turn of a conversation. Timestamp is unix milliseconds.
type Message struct {
	ID        string   `json:"id"`
	Role      Role     `json:"role"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"`
	IsError   bool     `json:"isError,omitempty"`
	Sources   []Source `json:"sources,omitempty"`
}

// ChatSession is a titled, ordered list of messages.
//
// CreatedAt and UpdatedAt are unix milliseconds. UpdatedAt is restamped by
// every mutation made through the chat store.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// NewMessage returns a message with a fresh id stamped with the current time.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// Clone returns a deep copy of the session so callers can read it without
// racing the store that owns the original.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = CloneMessages(s.Messages)
	return out
}

func (m Message) Clone() Message {
	if m.Sources != nil {
		m.Sources = append([]Source(nil), m.Sources...)
	}
	return m
}

// CloneMessages deep-copies ms. A nil slice stays nil.
func CloneMessages(ms []Message) []Message {
	if ms == nil {
		return nil
	}
	out := make([]Message, len(ms))
	for i, m := range ms {
		out[i] = m.Clone()
	}
	return out
}
