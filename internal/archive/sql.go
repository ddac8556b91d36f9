package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/h1v3-io/chatwidget/pkg/protocol"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		route      TEXT NOT NULL DEFAULT '',
		user_info  TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender          TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversation_messages_conv ON conversation_messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
`

// SQLStore implements Store over sqlx. Timestamps are stored as Unix
// nanoseconds so both drivers share one schema.
type SQLStore struct {
	db *sqlx.DB

	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// Open connects to driver/dsn, enables WAL for sqlite and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if driver == DriverSQLite {
		// One writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: wal: %w", err)
		}
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. It does not migrate.
func New(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Migrate creates the schema if it is missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// DB exposes the underlying connection.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

// stamp returns t in Unix nanoseconds, strictly after the previous stamp
// so messages written in one process keep their insertion order.
func (s *SQLStore) stamp(t time.Time) int64 {
	if t.IsZero() {
		t = s.now()
	}
	n := t.UnixNano()
	s.mu.Lock()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	s.mu.Unlock()
	return n
}

func (s *SQLStore) SaveConversation(ctx context.Context, c *protocol.Conversation) error {
	info, err := encodeInfo(c.UserInfo)
	if err != nil {
		return fmt.Errorf("archive: save conversation: %w", err)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	updated := s.stamp(c.UpdatedAt)

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO conversations (id, route, user_info, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			route=excluded.route, user_info=excluded.user_info, updated_at=excluded.updated_at
	`), c.ID, c.Route, info, created.UnixNano(), updated)
	if err != nil {
		return fmt.Errorf("archive: save conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) EnsureConversation(ctx context.Context, id, route string) error {
	now := s.stamp(time.Time{})
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO conversations (id, route, user_info, created_at, updated_at)
		VALUES (?, ?, '{}', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`), id, route, now, now)
	if err != nil {
		return fmt.Errorf("archive: ensure conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg protocol.ArchivedMessage) (protocol.ArchivedMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	at := s.stamp(msg.CreatedAt)
	msg.CreatedAt = time.Unix(0, at).UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return msg, fmt.Errorf("archive: append message: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`), at, msg.ConversationID)
	if err != nil {
		return msg, fmt.Errorf("archive: append message: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return msg, fmt.Errorf("archive: append message: %w", err)
	} else if n == 0 {
		return msg, ErrNotFound
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO conversation_messages (id, conversation_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), msg.ID, msg.ConversationID, string(msg.Sender), msg.Content, at)
	if err != nil {
		return msg, fmt.Errorf("archive: append message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return msg, fmt.Errorf("archive: append message: %w", err)
	}
	return msg, nil
}

type conversationRow struct {
	ID        string `db:"id"`
	Route     string `db:"route"`
	UserInfo  string `db:"user_info"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r conversationRow) conversation() *protocol.Conversation {
	info := map[string]string{}
	if r.UserInfo != "" {
		json.Unmarshal([]byte(r.UserInfo), &info)
	}
	return &protocol.Conversation{
		ID:        r.ID,
		Route:     r.Route,
		UserInfo:  info,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, r.UpdatedAt).UTC(),
	}
}

type messageRow struct {
	ID             string `db:"id"`
	ConversationID string `db:"conversation_id"`
	Sender         string `db:"sender"`
	Content        string `db:"content"`
	CreatedAt      int64  `db:"created_at"`
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (*protocol.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT id, route, user_info, created_at, updated_at FROM conversations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get conversation: %w", err)
	}

	var msgs []messageRow
	err = s.db.SelectContext(ctx, &msgs, s.db.Rebind(`
		SELECT id, conversation_id, sender, content, created_at
		FROM conversation_messages WHERE conversation_id = ? ORDER BY created_at, id
	`), id)
	if err != nil {
		return nil, fmt.Errorf("archive: load messages: %w", err)
	}

	c := row.conversation()
	c.Messages = make([]protocol.ArchivedMessage, len(msgs))
	for i, m := range msgs {
		c.Messages[i] = protocol.ArchivedMessage{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Sender:         protocol.Sender(m.Sender),
			Content:        m.Content,
			CreatedAt:      time.Unix(0, m.CreatedAt).UTC(),
		}
	}
	return c, nil
}

func (s *SQLStore) ListConversations(ctx context.Context, f Filter) ([]*protocol.Conversation, error) {
	query := "SELECT id, route, user_info, created_at, updated_at FROM conversations WHERE 1=1"
	var args []any
	if f.Route != "" {
		query += " AND route = ?"
		args = append(args, f.Route)
	}
	if !f.Since.IsZero() {
		query += " AND updated_at >= ?"
		args = append(args, f.Since.UnixNano())
	}
	query += " ORDER BY updated_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("archive: list conversations: %w", err)
	}
	out := make([]*protocol.Conversation, len(rows))
	for i, r := range rows {
		out[i] = r.conversation()
	}
	return out, nil
}

func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixNano()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM conversation_messages
		WHERE conversation_id IN (SELECT id FROM conversations WHERE updated_at < ?)
	`), cutoff); err != nil {
		return 0, fmt.Errorf("archive: prune messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM conversations WHERE updated_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive: prune conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	return n, nil
}

func encodeInfo(info map[string]string) (string, error) {
	if info == nil {
		return "{}", nil
	}
	b, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
