// Package store provides storage backends for FlowSync.
//
// Three implementations share the Store interface: PostgresStore for
// production, SQLiteStore for single-node deployments, and InMemoryStore
// for tests. Lookups that find nothing return (nil, nil); callers that
// need a hard failure on absence use the typed errors in models.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowsync/flowsync/internal/models"
)

// Store defines the persistence operations used by the conversation
// controller, the agent action handler, and the integration endpoints.
type Store interface {
	// CreateConversation inserts a new conversation. It returns
	// models.ErrDuplicatePhone when a conversation with the same phone
	// number already exists.
	CreateConversation(conv *models.Conversation) error
	// GetConversation returns the conversation with the given ID, or
	// (nil, nil) when it does not exist.
	GetConversation(id string) (*models.Conversation, error)
	// GetConversationByPhone returns the conversation for the given
	// canonical phone number, or (nil, nil) when none exists.
	GetConversationByPhone(phone string) (*models.Conversation, error)
	// UpdateConversation persists conv using compare-and-swap on its
	// version column. It returns models.ErrVersionConflict when the row
	// was modified since conv was read, and models.ErrConversationNotFound
	// when the row no longer exists. On success conv.Version is bumped.
	UpdateConversation(conv *models.Conversation) error
	// ListOpenConversations returns all conversations that are not closed,
	// most recent activity first, each with its full message history.
	ListOpenConversations() ([]models.ConversationWithMessages, error)

	// AddMessage appends a message to a conversation's history.
	AddMessage(msg *models.Message) error
	// GetRecentMessages returns up to limit most recent messages for the
	// conversation in chronological order.
	GetRecentMessages(conversationID string, limit int) ([]models.Message, error)

	// GetBotConfig returns the singleton bot configuration, or (nil, nil)
	// when none has been saved yet.
	GetBotConfig() (*models.BotConfig, error)
	// SaveBotConfig upserts the singleton bot configuration.
	SaveBotConfig(cfg *models.BotConfig) error

	// SaveIntegration upserts an integration keyed by (user_id, type).
	SaveIntegration(integ *models.Integration) error
	// GetIntegration returns the integration with the given ID and type,
	// or (nil, nil) when none matches.
	GetIntegration(id string, typ models.IntegrationType) (*models.Integration, error)
	// GetIntegrationByUser returns the user's integration of the given
	// type, or (nil, nil) when none exists.
	GetIntegrationByUser(userID string, typ models.IntegrationType) (*models.Integration, error)
	// TouchIntegration updates an integration's status and last sync time.
	TouchIntegration(id string, status models.IntegrationStatus, at time.Time) error

	// ListWorkflowsByTrigger returns the active workflows triggered by the
	// given integration.
	ListWorkflowsByTrigger(integrationID string) ([]models.Workflow, error)
	// AddWorkflowLog records one workflow execution.
	AddWorkflowLog(log *models.WorkflowLog) error
	// RecordWorkflowRun increments a workflow's run count and stamps its
	// last run time.
	RecordWorkflowRun(workflowID string, at time.Time) error

	// Close releases the underlying resources.
	Close() error
}

// Opts holds optional configuration for store construction.
type Opts struct {
	// DSN is the database connection string.
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports whether a DSN targets postgres or sqlite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a thread-safe in-memory Store used in tests.
type InMemoryStore struct {
	mu            sync.Mutex
	conversations map[string]models.Conversation
	byPhone       map[string]string
	messages      map[string][]models.Message
	botConfig     *models.BotConfig
	integrations  map[string]models.Integration
	workflows     map[string]models.Workflow
	workflowLogs  []models.WorkflowLog
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.Conversation),
		byPhone:       make(map[string]string),
		messages:      make(map[string][]models.Message),
		integrations:  make(map[string]models.Integration),
		workflows:     make(map[string]models.Workflow),
	}
}

// CreateConversation inserts a conversation, enforcing phone uniqueness.
func (s *InMemoryStore) CreateConversation(conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPhone[conv.PhoneNumber]; exists {
		return models.ErrDuplicatePhone
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.Version = 1
	s.conversations[conv.ID] = *conv
	s.byPhone[conv.PhoneNumber] = conv.ID
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	c := conv
	return &c, nil
}

// GetConversationByPhone retrieves a conversation by phone number.
func (s *InMemoryStore) GetConversationByPhone(phone string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, nil
	}
	conv := s.conversations[id]
	c := conv
	return &c, nil
}

// UpdateConversation persists a conversation with version checking.
func (s *InMemoryStore) UpdateConversation(conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.conversations[conv.ID]
	if !ok {
		return models.ErrConversationNotFound
	}
	if current.Version != conv.Version {
		return models.ErrVersionConflict
	}
	conv.Version++
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conv.ID] = *conv
	return nil
}

// ListOpenConversations returns all non-closed conversations with their
// message histories, most recent activity first.
func (s *InMemoryStore) ListOpenConversations() ([]models.ConversationWithMessages, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationWithMessages
	for _, conv := range s.conversations {
		if conv.Status == models.ConversationStatusClosed {
			continue
		}
		msgs := make([]models.Message, len(s.messages[conv.ID]))
		copy(msgs, s.messages[conv.ID])
		out = append(out, models.ConversationWithMessages{Conversation: conv, Messages: msgs})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

// AddMessage appends a message to a conversation.
func (s *InMemoryStore) AddMessage(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

// GetRecentMessages returns the limit most recent messages in
// chronological order.
func (s *InMemoryStore) GetRecentMessages(conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// GetBotConfig returns the stored bot configuration.
func (s *InMemoryStore) GetBotConfig() (*models.BotConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.botConfig == nil {
		return nil, nil
	}
	cfg := *s.botConfig
	cfg.EscalationKeywords = append([]string(nil), s.botConfig.EscalationKeywords...)
	return &cfg, nil
}

// SaveBotConfig stores the bot configuration.
func (s *InMemoryStore) SaveBotConfig(cfg *models.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	c.EscalationKeywords = append([]string(nil), cfg.EscalationKeywords...)
	c.UpdatedAt = time.Now().UTC()
	s.botConfig = &c
	return nil
}

// SaveIntegration upserts an integration keyed by (user_id, type).
func (s *InMemoryStore) SaveIntegration(integ *models.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.integrations {
		if existing.UserID == integ.UserID && existing.Type == integ.Type {
			integ.ID = id
			integ.CreatedAt = existing.CreatedAt
			s.integrations[id] = *integ
			return nil
		}
	}
	if integ.ID == "" {
		integ.ID = uuid.NewString()
	}
	if integ.CreatedAt.IsZero() {
		integ.CreatedAt = time.Now().UTC()
	}
	s.integrations[integ.ID] = *integ
	return nil
}

// GetIntegration retrieves an integration by ID and type.
func (s *InMemoryStore) GetIntegration(id string, typ models.IntegrationType) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integ, ok := s.integrations[id]
	if !ok || integ.Type != typ {
		return nil, nil
	}
	i := integ
	return &i, nil
}

// GetIntegrationByUser retrieves a user's integration of the given type.
func (s *InMemoryStore) GetIntegrationByUser(userID string, typ models.IntegrationType) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, integ := range s.integrations {
		if integ.UserID == userID && integ.Type == typ {
			i := integ
			return &i, nil
		}
	}
	return nil, nil
}

// TouchIntegration updates an integration's status and last sync time.
func (s *InMemoryStore) TouchIntegration(id string, status models.IntegrationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integ, ok := s.integrations[id]
	if !ok {
		return nil
	}
	integ.Status = status
	integ.LastSyncAt = at
	s.integrations[id] = integ
	return nil
}

// AddWorkflow stores a workflow. Used to seed test fixtures.
func (s *InMemoryStore) AddWorkflow(wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	s.workflows[wf.ID] = *wf
	return nil
}

// ListWorkflowsByTrigger returns active workflows triggered by the
// integration.
func (s *InMemoryStore) ListWorkflowsByTrigger(integrationID string) ([]models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Workflow
	for _, wf := range s.workflows {
		if wf.IsActive && wf.TriggerIntegrationID == integrationID {
			out = append(out, wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddWorkflowLog records a workflow execution.
func (s *InMemoryStore) AddWorkflowLog(log *models.WorkflowLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	s.workflowLogs = append(s.workflowLogs, *log)
	return nil
}

// WorkflowLogs returns a copy of the recorded workflow logs. Used in tests.
func (s *InMemoryStore) WorkflowLogs() []models.WorkflowLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WorkflowLog, len(s.workflowLogs))
	copy(out, s.workflowLogs)
	return out
}

// RecordWorkflowRun increments a workflow's run counter.
func (s *InMemoryStore) RecordWorkflowRun(workflowID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil
	}
	wf.RunCount++
	wf.LastRunAt = at
	s.workflows[workflowID] = wf
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
