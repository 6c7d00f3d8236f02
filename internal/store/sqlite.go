package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Env1ct/Conversa/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite supports one writer at a time. Keep the pool small to avoid
	// contention while leaving some read concurrency.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

// Migrate creates the schema. Idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT 'starter',
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chatbots (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			model_tier TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			welcome_message TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chatbots_tenant ON chatbots(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS widgets (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			chatbot_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			primary_color TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			allowed_domains TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_widgets_tenant ON widgets(tenant_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			widget_id TEXT,
			chatbot_id TEXT,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			rating INTEGER,
			feedback TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_tenant_created ON conversations(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT,
			tokens_in INTEGER,
			tokens_out INTEGER,
			latency_ms INTEGER,
			cost_usd REAL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC3339Nano text so lexicographic order matches
// chronological order.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// --- Tenants ---

func (s *SQLiteStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, plan, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, string(t.Plan), t.Active, encodeTime(t.CreatedAt), encodeTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, plan, active, created_at, updated_at FROM tenants WHERE id = ?`, id)
	var t model.Tenant
	var plan, created, updated string
	if err := row.Scan(&t.ID, &t.Name, &plan, &t.Active, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	t.Plan = model.Plan(plan)
	t.CreatedAt = decodeTime(created)
	t.UpdatedAt = decodeTime(updated)
	return &t, nil
}

func (s *SQLiteStore) SetTenantPlan(ctx context.Context, id string, plan model.Plan) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET plan = ?, updated_at = ? WHERE id = ?`,
		string(plan), encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set tenant plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Chatbots ---

func (s *SQLiteStore) CreateChatbot(ctx context.Context, c *model.Chatbot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chatbots (id, tenant_id, name, model_tier, system_prompt, welcome_message, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.ModelTier, c.SystemPrompt, c.WelcomeMessage, c.Active,
		encodeTime(c.CreatedAt), encodeTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert chatbot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChatbot(ctx context.Context, tenantID, id string) (*model.Chatbot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, model_tier, system_prompt, welcome_message, active, created_at, updated_at
		 FROM chatbots WHERE id = ? AND tenant_id = ?`, id, tenantID)
	var c model.Chatbot
	var created, updated string
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.ModelTier, &c.SystemPrompt, &c.WelcomeMessage, &c.Active, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chatbot: %w", err)
	}
	c.CreatedAt = decodeTime(created)
	c.UpdatedAt = decodeTime(updated)
	return &c, nil
}

// --- Widgets ---

func (s *SQLiteStore) CreateWidget(ctx context.Context, w *model.Widget) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO widgets (id, tenant_id, chatbot_id, title, primary_color, position, allowed_domains, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.TenantID, w.ChatbotID, w.Title, w.PrimaryColor, w.Position,
		strings.Join(w.AllowedDomains, ","), w.Active, encodeTime(w.CreatedAt), encodeTime(w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert widget: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetWidget(ctx context.Context, id string) (*model.Widget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, chatbot_id, title, primary_color, position, allowed_domains, active, created_at, updated_at
		 FROM widgets WHERE id = ?`, id)
	var w model.Widget
	var domains, created, updated string
	if err := row.Scan(&w.ID, &w.TenantID, &w.ChatbotID, &w.Title, &w.PrimaryColor, &w.Position, &domains, &w.Active, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get widget: %w", err)
	}
	if domains != "" {
		w.AllowedDomains = strings.Split(domains, ",")
	}
	w.CreatedAt = decodeTime(created)
	w.UpdatedAt = decodeTime(updated)
	return &w, nil
}

// --- Conversations ---

func (s *SQLiteStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, widget_id, chatbot_id, user_id, status, rating, feedback, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.WidgetID, c.ChatbotID, c.UserID, string(c.Status), c.Rating, c.Feedback,
		encodeTime(c.CreatedAt), encodeTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	var c model.Conversation
	var widgetID, chatbotID, feedback sql.NullString
	var rating sql.NullInt64
	var status, created, updated string
	if err := row.Scan(&c.ID, &c.TenantID, &widgetID, &chatbotID, &c.UserID, &status, &rating, &feedback, &created, &updated); err != nil {
		return nil, err
	}
	if widgetID.Valid {
		c.WidgetID = &widgetID.String
	}
	if chatbotID.Valid {
		c.ChatbotID = &chatbotID.String
	}
	if rating.Valid {
		r := int(rating.Int64)
		c.Rating = &r
	}
	if feedback.Valid {
		c.Feedback = &feedback.String
	}
	c.Status = model.ConversationStatus(status)
	c.CreatedAt = decodeTime(created)
	c.UpdatedAt = decodeTime(updated)
	return &c, nil
}

const conversationCols = `id, tenant_id, widget_id, chatbot_id, user_id, status, rating, feedback, created_at, updated_at`

func (s *SQLiteStore) GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = ? AND tenant_id = ?`, id, tenantID)
	c, err := s.scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, tenantID string, limit, offset int) ([]model.Conversation, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE tenant_id = ?`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE tenant_id = ?
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		c, err := s.scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetConversationStatus(ctx context.Context, tenantID, id string, status model.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		string(status), encodeTime(time.Now()), id, tenantID)
	if err != nil {
		return fmt.Errorf("set conversation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RateConversation(ctx context.Context, tenantID, id string, rating int, feedback string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET rating = ?, feedback = ?, updated_at = ? WHERE id = ? AND tenant_id = ?`,
		rating, feedback, encodeTime(time.Now()), id, tenantID)
	if err != nil {
		return fmt.Errorf("rate conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Messages ---

func (s *SQLiteStore) AppendMessage(ctx context.Context, m *model.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender, content, model, tokens_in, tokens_out, latency_ms, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Sender), m.Content,
		m.Model, m.TokensIn, m.TokensOut, m.LatencyMs, m.CostUSD, encodeTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const messageCols = `id, conversation_id, sender, content, model, tokens_in, tokens_out, latency_ms, cost_usd, created_at`

func scanMessage(rows *sql.Rows) (model.Message, error) {
	var m model.Message
	var mdl sql.NullString
	var tokensIn, tokensOut, latency sql.NullInt64
	var cost sql.NullFloat64
	var sender, created string
	if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &mdl, &tokensIn, &tokensOut, &latency, &cost, &created); err != nil {
		return m, err
	}
	m.Sender = model.Sender(sender)
	if mdl.Valid {
		m.Model = &mdl.String
	}
	if tokensIn.Valid {
		v := int(tokensIn.Int64)
		m.TokensIn = &v
	}
	if tokensOut.Valid {
		v := int(tokensOut.Int64)
		m.TokensOut = &v
	}
	if latency.Valid {
		v := latency.Int64
		m.LatencyMs = &v
	}
	if cost.Valid {
		v := cost.Float64
		m.CostUSD = &v
	}
	m.CreatedAt = decodeTime(created)
	return m, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// --- Usage counts ---

func (s *SQLiteStore) CountConversationsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE tenant_id = ? AND created_at >= ?`,
		tenantID, encodeTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountMessagesSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.tenant_id = ? AND m.created_at >= ?`,
		tenantID, encodeTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
