package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/orangecat/internal/client/collection"
	"github.com/dmitrijs2005/orangecat/internal/client/models"
	"github.com/dmitrijs2005/orangecat/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/orangecat/internal/common"
	"github.com/dmitrijs2005/orangecat/internal/logging"
	"github.com/google/uuid"
)

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New Encrypted Chat"

// SessionPatch is a partial update. Nil fields are left unchanged.
type SessionPatch struct {
	Title    *string
	Messages []models.Message
}

// ChatStore is the chat history kept in an encrypted collection. Mutations
// only touch memory; the collection store writes them back after the
// debounce window.
type ChatStore struct {
	store *collection.Store[models.ChatSession]
	now   func() time.Time
}

var _ SessionListener = (*ChatStore)(nil)

func NewChatStore(repo blobs.Repository, debounce time.Duration, log logging.Logger) *ChatStore {
	return &ChatStore{
		store: collection.New[models.ChatSession](repo, common.BlobChats, debounce, log),
		now:   time.Now,
	}
}

// SetClock replaces the time source used for stamps.
func (c *ChatStore) SetClock(now func() time.Time) {
	c.now = now
}

func (c *ChatStore) stamp() int64 {
	return c.now().UnixMilli()
}

// NewSession builds an empty session. It is not stored until AddSession.
func (c *ChatStore) NewSession(title string) models.ChatSession {
	if title == "" {
		title = DefaultSessionTitle
	}
	now := c.stamp()
	return models.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddSession puts s at the front of the list.
func (c *ChatStore) AddSession(s models.ChatSession) error {
	if s.ID == "" {
		return fmt.Errorf("session id is required: %w", common.ErrValidation)
	}
	s = s.Clone()
	if s.Messages == nil {
		s.Messages = []models.Message{}
	}
	return c.store.Update(func(items []models.ChatSession) []models.ChatSession {
		return append([]models.ChatSession{s}, items...)
	})
}

// UpdateSession applies patch to the session and stamps UpdatedAt.
func (c *ChatStore) UpdateSession(id string, patch SessionPatch) error {
	messages := models.CloneMessages(patch.Messages)
	return c.modify(id, func(s *models.ChatSession) error {
		if patch.Title != nil {
			s.Title = *patch.Title
		}
		if messages != nil {
			s.Messages = messages
		}
		return nil
	})
}

// AppendMessage adds msg to the end of the session.
func (c *ChatStore) AppendMessage(sessionID string, msg models.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required: %w", common.ErrValidation)
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", msg.Role, common.ErrValidation)
	}
	msg = msg.Clone()
	return c.modify(sessionID, func(s *models.ChatSession) error {
		s.Messages = append(s.Messages, msg)
		return nil
	})
}

// UpdateMessage replaces the message with msg.ID. A streamed answer calls
// this for every chunk and the debounce folds the burst into one write.
func (c *ChatStore) UpdateMessage(sessionID string, msg models.Message) error {
	msg = msg.Clone()
	return c.modify(sessionID, func(s *models.ChatSession) error {
		for i := range s.Messages {
			if s.Messages[i].ID == msg.ID {
				s.Messages[i] = msg
				return nil
			}
		}
		return fmt.Errorf("message %s: %w", msg.ID, common.ErrNotFound)
	})
}

func (c *ChatStore) DeleteSession(id string) error {
	return c.store.TryUpdate(func(items []models.ChatSession) ([]models.ChatSession, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i:i], items[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	})
}

// ClearAll removes every session and deletes the stored blob.
func (c *ChatStore) ClearAll(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Sessions returns a copy of all sessions in display order.
func (c *ChatStore) Sessions() ([]models.ChatSession, error) {
	var out []models.ChatSession
	err := c.store.View(func(items []models.ChatSession) {
		out = make([]models.ChatSession, len(items))
		for i, s := range items {
			out[i] = s.Clone()
		}
	})
	return out, err
}

func (c *ChatStore) Session(id string) (models.ChatSession, error) {
	var (
		out   models.ChatSession
		found bool
	)
	err := c.store.View(func(items []models.ChatSession) {
		for _, s := range items {
			if s.ID == id {
				out, found = s.Clone(), true
				return
			}
		}
	})
	if err != nil {
		return models.ChatSession{}, err
	}
	if !found {
		return models.ChatSession{}, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	}
	return out, nil
}

// MostRecent returns the session with the newest UpdatedAt.
func (c *ChatStore) MostRecent() (models.ChatSession, error) {
	var (
		out   models.ChatSession
		found bool
	)
	err := c.store.View(func(items []models.ChatSession) {
		for _, s := range items {
			if !found || s.UpdatedAt > out.UpdatedAt {
				out, found = s, true
			}
		}
		if found {
			out = out.Clone()
		}
	})
	if err != nil {
		return models.ChatSession{}, err
	}
	if !found {
		return models.ChatSession{}, fmt.Errorf("no sessions: %w", common.ErrNotFound)
	}
	return out, nil
}

// Flush writes pending changes without waiting for the debounce.
func (c *ChatStore) Flush(ctx context.Context) error {
	return c.store.Flush(ctx)
}

func (c *ChatStore) OnUnlock(ctx context.Context, masterKey string) error {
	return c.store.OnUnlock(ctx, masterKey)
}

func (c *ChatStore) OnLock(ctx context.Context) error {
	return c.store.OnLock(ctx)
}

func (c *ChatStore) OnReset(ctx context.Context) error {
	return c.store.OnReset(ctx)
}

// modify runs fn on the session with the given id and stamps it. When fn
// fails the collection is left as it was.
func (c *ChatStore) modify(id string, fn func(s *models.ChatSession) error) error {
	now := c.stamp()
	return c.store.TryUpdate(func(items []models.ChatSession) ([]models.ChatSession, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			s := items[i].Clone()
			if err := fn(&s); err != nil {
				return nil, err
			}
			s.UpdatedAt = now
			items[i] = s
			return items, nil
		}
		return nil, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	})
}
