// Package conversation implements the message pipeline and agent actions
// for FlowSync.
//
// The Controller is the single entry point for inbound customer messages.
// The AgentService applies operator actions to a conversation. Both write
// through the store with optimistic concurrency on the conversation row.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowsync/flowsync/internal/classifier"
	"github.com/flowsync/flowsync/internal/models"
	"github.com/flowsync/flowsync/internal/store"
)

// historyLimit caps how many messages are loaded for classification.
const historyLimit = 20

// maxUpdateRetries bounds the optimistic-concurrency retry loop.
const maxUpdateRetries = 3

// updateWithRetry applies mutate to the conversation and writes it back.
// On a version conflict it re-reads the row, reapplies the mutation, and
// tries again, a bounded number of times.
func updateWithRetry(st store.Store, conv *models.Conversation, mutate func(*models.Conversation)) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		mutate(conv)
		err := st.UpdateConversation(conv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
		fresh, readErr := st.GetConversation(conv.ID)
		if readErr != nil {
			return readErr
		}
		if fresh == nil {
			return models.ErrConversationNotFound
		}
		*conv = *fresh
	}
	return models.ErrVersionConflict
}

// Controller processes inbound customer messages.
type Controller struct {
	store      store.Store
	classifier *classifier.Classifier
	defaults   models.BotConfig
}

// Opts holds optional controller configuration.
type Opts struct {
	// Defaults is the bot configuration used when none is stored.
	Defaults models.BotConfig
}

// Option configures controller creation.
type Option func(*Opts)

// WithDefaults overrides the fallback bot configuration.
func WithDefaults(cfg models.BotConfig) Option {
	return func(o *Opts) { o.Defaults = cfg }
}

// NewController creates a controller.
func NewController(st store.Store, cls *classifier.Classifier, opts ...Option) *Controller {
	cfg := Opts{Defaults: models.DefaultBotConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Controller{store: st, classifier: cls, defaults: cfg.Defaults}
}

// ProcessInbound handles one inbound customer message end to end: it finds
// or creates the conversation, persists the user message before anything
// else, applies the ownership short-circuits, classifies, and persists the
// bot reply. The user message write is never rolled back by later failures.
func (c *Controller) ProcessInbound(ctx context.Context, req models.InboundRequest) (*models.ProcessResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	conv, err := c.lookupOrCreate(req)
	if err != nil {
		return nil, err
	}

	cfg, err := c.store.GetBotConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		defaults := c.defaults
		cfg = &defaults
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderUser,
		Content:        req.Message,
	}
	if err := c.store.AddMessage(userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	if conv.Status == models.ConversationStatusWithHuman {
		slog.Debug("Controller skipping reply, conversation owned by human", "conversationID", conv.ID)
		return &models.ProcessResult{ConversationID: conv.ID, Status: models.ProcessStatusWithHuman}, nil
	}
	if !cfg.IsBotActive {
		slog.Debug("Controller skipping reply, bot is inactive", "conversationID", conv.ID)
		return &models.ProcessResult{ConversationID: conv.ID, Status: models.ProcessStatusBotInactive}, nil
	}

	history, err := c.store.GetRecentMessages(conv.ID, historyLimit)
	if err != nil {
		return nil, err
	}

	result := c.classifier.Classify(ctx, req.Message, history, cfg)

	botMsg := &models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderBot,
		Content:        result.Response,
		Intent:         result.Intent,
	}
	if err := c.store.AddMessage(botMsg); err != nil {
		return nil, fmt.Errorf("failed to save bot message: %w", err)
	}

	err = updateWithRetry(c.store, conv, func(cv *models.Conversation) {
		cv.CurrentIntent = result.Intent
		cv.LastMessageAt = time.Now().UTC()
		if req.CustomerName != "" && cv.CustomerName == "" {
			cv.CustomerName = req.CustomerName
		}
		if result.RequiresHuman {
			cv.Status = models.ConversationStatusWaitingHuman
		}
	})
	if err != nil {
		return nil, err
	}

	return &models.ProcessResult{
		ConversationID: conv.ID,
		Status:         models.ProcessStatusAnswered,
		Intent:         result.Intent,
		Confidence:     result.Confidence,
		Response:       result.Response,
		RequiresHuman:  result.RequiresHuman,
	}, nil
}

// lookupOrCreate finds the conversation for a phone number, creating it
// when absent. A concurrent create loses the unique-constraint race and
// re-reads the winner's row.
func (c *Controller) lookupOrCreate(req models.InboundRequest) (*models.Conversation, error) {
	conv, err := c.store.GetConversationByPhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &models.Conversation{
		PhoneNumber:   req.PhoneNumber,
		CustomerName:  req.CustomerName,
		Status:        models.ConversationStatusActive,
		LastMessageAt: time.Now().UTC(),
	}
	err = c.store.CreateConversation(conv)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, models.ErrDuplicatePhone) {
		return nil, err
	}
	conv, err = c.store.GetConversationByPhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation for %s vanished after duplicate create", req.PhoneNumber)
	}
	return conv, nil
}
