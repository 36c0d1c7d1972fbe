package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/store"
	_ "modernc.org/sqlite"
)

// Store persists threads in a SQLite database. Each message is stored as one
// JSON document; tool call ownership is indexed separately.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
	log    *logger.Logger
}

// Open creates or opens a thread database. ":memory:" keeps it in memory.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		dbPath: dbPath,
		log:    logger.WithComponent("sqlite_store"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		id TEXT NOT NULL,
		agent TEXT,
		is_streaming INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (thread_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);

	CREATE TABLE IF NOT EXISTS tool_calls (
		thread_id TEXT NOT NULL,
		tool_call_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		PRIMARY KEY (thread_id, tool_call_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO threads (id) VALUES (?)`, msg.ThreadID); err != nil {
		return fmt.Errorf("failed to record thread: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (thread_id, id, agent, is_streaming, payload) VALUES (?, ?, ?, ?, ?)`,
		msg.ThreadID, msg.ID, string(msg.Agent), msg.IsStreaming, string(payload))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("message %s: %w", msg.ID, store.ErrExists)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := indexToolCalls(ctx, tx, msg); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	s.log.Debug("Message appended", "thread_id", msg.ThreadID, "message_id", msg.ID)
	return nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE messages SET agent = ?, is_streaming = ?, payload = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE thread_id = ? AND id = ?`,
		string(msg.Agent), msg.IsStreaming, string(payload), msg.ThreadID, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", msg.ID, store.ErrNotFound)
	}

	if err := indexToolCalls(ctx, tx, msg); err != nil {
		return err
	}
	return tx.Commit()
}

func indexToolCalls(ctx context.Context, tx *sql.Tx, msg chat.Message) error {
	for _, tc := range msg.ToolCalls {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO tool_calls (thread_id, tool_call_id, message_id) VALUES (?, ?, ?)`,
			msg.ThreadID, tc.ID, msg.ID)
		if err != nil {
			return fmt.Errorf("failed to index tool call %s: %w", tc.ID, err)
		}
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, threadID, messageID string) (chat.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM messages WHERE thread_id = ? AND id = ?`, threadID, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
	}
	return msg, err
}

func (s *Store) History(ctx context.Context, threadID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) FindByToolCallID(ctx context.Context, threadID, toolCallID string) (chat.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT m.payload FROM tool_calls t
		 JOIN messages m ON m.thread_id = t.thread_id AND m.id = t.message_id
		 WHERE t.thread_id = ? AND t.tool_call_id = ?`, threadID, toolCallID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Message{}, fmt.Errorf("tool call %s: %w", toolCallID, store.ErrNotFound)
	}
	return msg, err
}

func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM threads ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (chat.Message, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, err
		}
		return chat.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	var msg chat.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return chat.Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ store.ThreadStore = (*Store)(nil)
