package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/flowsync/flowsync/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLiteStore at the path given in the options and
// runs migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite DSN is required")
	}
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open database", "error", err, "dsn", cfg.DSN)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		slog.Error("SQLiteStore migration failed", "error", err)
		return nil, fmt.Errorf("failed to apply sqlite migrations: %w", err)
	}
	slog.Debug("SQLiteStore initialized", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// isSQLiteUniqueViolation reports whether err is a sqlite unique constraint
// violation.
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *SQLiteStore) CreateConversation(conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.Version = 1
	_, err := s.db.Exec(`INSERT INTO conversations (id, phone_number, customer_name, status, current_intent, assigned_agent_id, last_message_at, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.PhoneNumber, nilIfEmpty(conv.CustomerName), string(conv.Status), nilIfEmpty(string(conv.CurrentIntent)), nilIfEmpty(conv.AssignedAgentID), conv.LastMessageAt, conv.CreatedAt, conv.UpdatedAt, conv.Version)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return models.ErrDuplicatePhone
		}
		slog.Error("SQLiteStore CreateConversation failed", "error", err, "phone", conv.PhoneNumber)
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var customerName, currentIntent, agentID sql.NullString
	err := row.Scan(&conv.ID, &conv.PhoneNumber, &customerName, &conv.Status, &currentIntent, &agentID, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt, &conv.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.CustomerName = stringOrEmpty(customerName)
	conv.CurrentIntent = models.Intent(stringOrEmpty(currentIntent))
	conv.AssignedAgentID = stringOrEmpty(agentID)
	return &conv, nil
}

const sqliteConversationColumns = `id, phone_number, customer_name, status, current_intent, assigned_agent_id, last_message_at, created_at, updated_at, version`

func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+sqliteConversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := s.scanConversation(row)
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) GetConversationByPhone(phone string) (*models.Conversation, error) {
	row := s.db.QueryRow(`SELECT `+sqliteConversationColumns+` FROM conversations WHERE phone_number = ?`, phone)
	conv, err := s.scanConversation(row)
	if err != nil {
		slog.Error("SQLiteStore GetConversationByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get conversation by phone: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) UpdateConversation(conv *models.Conversation) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE conversations
		SET customer_name = ?, status = ?, current_intent = ?, assigned_agent_id = ?, last_message_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		nilIfEmpty(conv.CustomerName), string(conv.Status), nilIfEmpty(string(conv.CurrentIntent)), nilIfEmpty(conv.AssignedAgentID), conv.LastMessageAt, now, conv.ID, conv.Version)
	if err != nil {
		slog.Error("SQLiteStore UpdateConversation failed", "error", err, "id", conv.ID)
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		existing, err := s.GetConversation(conv.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return models.ErrConversationNotFound
		}
		return models.ErrVersionConflict
	}
	conv.Version++
	conv.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) ListOpenConversations() ([]models.ConversationWithMessages, error) {
	rows, err := s.db.Query(`SELECT ` + sqliteConversationColumns + ` FROM conversations WHERE status != 'closed' ORDER BY last_message_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListOpenConversations failed", "error", err)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()
	var out []models.ConversationWithMessages
	for rows.Next() {
		var conv models.Conversation
		var customerName, currentIntent, agentID sql.NullString
		if err := rows.Scan(&conv.ID, &conv.PhoneNumber, &customerName, &conv.Status, &currentIntent, &agentID, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt, &conv.Version); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.CustomerName = stringOrEmpty(customerName)
		conv.CurrentIntent = models.Intent(stringOrEmpty(currentIntent))
		conv.AssignedAgentID = stringOrEmpty(agentID)
		out = append(out, models.ConversationWithMessages{Conversation: conv})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	for i := range out {
		msgs, err := s.GetRecentMessages(out[i].ID, 0)
		if err != nil {
			return nil, err
		}
		out[i].Messages = msgs
	}
	return out, nil
}

func (s *SQLiteStore) AddMessage(msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, conversation_id, sender, content, intent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Sender), msg.Content, nilIfEmpty(string(msg.Intent)), msg.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "conversationID", msg.ConversationID)
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecentMessages(conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender, content, intent, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at DESC`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetRecentMessages failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var intent sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &intent, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Intent = models.Intent(stringOrEmpty(intent))
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) GetBotConfig() (*models.BotConfig, error) {
	row := s.db.QueryRow(`SELECT is_bot_active, welcome_message, business_context, escalation_keywords, updated_at FROM bot_config WHERE id = 1`)
	var cfg models.BotConfig
	var keywords string
	err := row.Scan(&cfg.IsBotActive, &cfg.WelcomeMessage, &cfg.BusinessContext, &keywords, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetBotConfig failed", "error", err)
		return nil, fmt.Errorf("failed to get bot config: %w", err)
	}
	cfg.EscalationKeywords = decodeKeywords(keywords)
	return &cfg, nil
}

func (s *SQLiteStore) SaveBotConfig(cfg *models.BotConfig) error {
	keywords, err := encodeKeywords(cfg.EscalationKeywords)
	if err != nil {
		return fmt.Errorf("failed to encode escalation keywords: %w", err)
	}
	cfg.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(`INSERT INTO bot_config (id, is_bot_active, welcome_message, business_context, escalation_keywords, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET is_bot_active = excluded.is_bot_active, welcome_message = excluded.welcome_message, business_context = excluded.business_context, escalation_keywords = excluded.escalation_keywords, updated_at = excluded.updated_at`,
		cfg.IsBotActive, cfg.WelcomeMessage, cfg.BusinessContext, keywords, cfg.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveBotConfig failed", "error", err)
		return fmt.Errorf("failed to save bot config: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveIntegration(integ *models.Integration) error {
	if integ.ID == "" {
		integ.ID = uuid.NewString()
	}
	if integ.CreatedAt.IsZero() {
		integ.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO integrations (id, user_id, type, name, credentials, config, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, type) DO UPDATE SET name = excluded.name, credentials = excluded.credentials, config = excluded.config, status = excluded.status`,
		integ.ID, integ.UserID, string(integ.Type), integ.Name, rawOrNil(integ.Credentials), rawOrNil(integ.Config), string(integ.Status), integ.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveIntegration failed", "error", err, "userID", integ.UserID, "type", integ.Type)
		return fmt.Errorf("failed to save integration: %w", err)
	}
	existing, err := s.GetIntegrationByUser(integ.UserID, integ.Type)
	if err != nil {
		return err
	}
	if existing != nil {
		integ.ID = existing.ID
		integ.CreatedAt = existing.CreatedAt
	}
	return nil
}

func (s *SQLiteStore) scanIntegration(row *sql.Row) (*models.Integration, error) {
	var integ models.Integration
	var credentials, config sql.NullString
	var lastSync sql.NullTime
	err := row.Scan(&integ.ID, &integ.UserID, &integ.Type, &integ.Name, &credentials, &config, &integ.Status, &lastSync, &integ.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	integ.Credentials = rawFromColumn(credentials)
	integ.Config = rawFromColumn(config)
	integ.LastSyncAt = timeOrZero(lastSync)
	return &integ, nil
}

const sqliteIntegrationColumns = `id, user_id, type, name, credentials, config, status, last_sync_at, created_at`

func (s *SQLiteStore) GetIntegration(id string, typ models.IntegrationType) (*models.Integration, error) {
	row := s.db.QueryRow(`SELECT `+sqliteIntegrationColumns+` FROM integrations WHERE id = ? AND type = ?`, id, string(typ))
	integ, err := s.scanIntegration(row)
	if err != nil {
		slog.Error("SQLiteStore GetIntegration failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return integ, nil
}

func (s *SQLiteStore) GetIntegrationByUser(userID string, typ models.IntegrationType) (*models.Integration, error) {
	row := s.db.QueryRow(`SELECT `+sqliteIntegrationColumns+` FROM integrations WHERE user_id = ? AND type = ?`, userID, string(typ))
	integ, err := s.scanIntegration(row)
	if err != nil {
		slog.Error("SQLiteStore GetIntegrationByUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get integration by user: %w", err)
	}
	return integ, nil
}

func (s *SQLiteStore) TouchIntegration(id string, status models.IntegrationStatus, at time.Time) error {
	_, err := s.db.Exec(`UPDATE integrations SET status = ?, last_sync_at = ? WHERE id = ?`, string(status), at, id)
	if err != nil {
		slog.Error("SQLiteStore TouchIntegration failed", "error", err, "id", id)
		return fmt.Errorf("failed to touch integration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListWorkflowsByTrigger(integrationID string) ([]models.Workflow, error) {
	rows, err := s.db.Query(`SELECT id, user_id, name, trigger_integration_id, is_active, run_count, last_run_at FROM workflows WHERE trigger_integration_id = ? AND is_active = 1 ORDER BY name`, integrationID)
	if err != nil {
		slog.Error("SQLiteStore ListWorkflowsByTrigger failed", "error", err, "integrationID", integrationID)
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()
	var out []models.Workflow
	for rows.Next() {
		var wf models.Workflow
		var triggerID sql.NullString
		var lastRun sql.NullTime
		if err := rows.Scan(&wf.ID, &wf.UserID, &wf.Name, &triggerID, &wf.IsActive, &wf.RunCount, &lastRun); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		wf.TriggerIntegrationID = stringOrEmpty(triggerID)
		wf.LastRunAt = timeOrZero(lastRun)
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AddWorkflowLog(log *models.WorkflowLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO workflow_logs (id, workflow_id, user_id, status, input_data, output_data, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.WorkflowID, log.UserID, log.Status, rawOrNil(log.InputData), rawOrNil(log.OutputData), log.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddWorkflowLog failed", "error", err, "workflowID", log.WorkflowID)
		return fmt.Errorf("failed to add workflow log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordWorkflowRun(workflowID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE workflows SET run_count = run_count + 1, last_run_at = ? WHERE id = ?`, at, workflowID)
	if err != nil {
		slog.Error("SQLiteStore RecordWorkflowRun failed", "error", err, "workflowID", workflowID)
		return fmt.Errorf("failed to record workflow run: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
