package conversation

import (
	"log/slog"
	"time"

	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
)

// DefaultIdleTimeout is how long an active conversation may sit without a
// message before the janitor closes it.
const DefaultIdleTimeout = 72 * time.Hour

// Janitor closes conversations that went silent. Only bot-owned active
// conversations are swept; threads waiting for or held by a human agent stay
// open until the agent closes them.
type Janitor struct {
	store       store.Store
	idleTimeout time.Duration
}

// NewJanitor creates a janitor with the given idle timeout. A non-positive
// timeout falls back to DefaultIdleTimeout.
func NewJanitor(st store.Store, idleTimeout time.Duration) *Janitor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Janitor{store: st, idleTimeout: idleTimeout}
}

// Sweep closes all active conversations whose last message is older than the
// idle timeout. It returns how many conversations were closed.
func (j *Janitor) Sweep() int {
	convs, err := j.store.ListOpenConversations()
	if err != nil {
		slog.Error("Janitor Sweep failed to list conversations", "error", err)
		return 0
	}
	cutoff := time.Now().Add(-j.idleTimeout)
	closed := 0
	for i := range convs {
		conv := convs[i].Conversation
		if conv.Status != models.ConversationStatusActive {
			continue
		}
		if conv.LastMessageAt.IsZero() || conv.LastMessageAt.After(cutoff) {
			continue
		}
		err := updateWithRetry(j.store, &conv, func(c *models.Conversation) {
			c.Status = models.ConversationStatusClosed
			c.UpdatedAt = time.Now()
		})
		if err != nil {
			slog.Error("Janitor Sweep failed to close conversation", "conversationID", conv.ID, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		slog.Info("Janitor Sweep closed idle conversations", "closed", closed)
	}
	return closed
}
