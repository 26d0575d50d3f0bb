// Package sqlite provides a SQLite-backed audit log driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/recall/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id                  TEXT PRIMARY KEY,
	platform            TEXT NOT NULL,
	platform_message_id TEXT NOT NULL,
	group_id            TEXT NOT NULL DEFAULT '',
	user_id             TEXT NOT NULL DEFAULT '',
	content             TEXT NOT NULL,
	response            TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	reply_to_message_id TEXT NOT NULL DEFAULT '',
	thread_id           TEXT NOT NULL DEFAULT '',
	memory_ids          TEXT NOT NULL DEFAULT '[]',
	created_at          INTEGER NOT NULL,
	UNIQUE (platform, platform_message_id)
);
CREATE INDEX IF NOT EXISTS messages_scope_idx ON messages (user_id, group_id, created_at);
`

const columns = `id, platform, platform_message_id, group_id, user_id, content, response,
	model, reply_to_message_id, thread_id, memory_ids, created_at`

// Driver implements storage.Driver using SQLite.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{db: db}, nil
}

// SaveMessage inserts msg unless its platform key already exists.
func (d *Driver) SaveMessage(ctx context.Context, msg *storage.Message) (bool, error) {
	if err := storage.Prepare(msg); err != nil {
		return false, err
	}

	memoryIDs, err := json.Marshal(nonNil(msg.MemoryIDs))
	if err != nil {
		return false, fmt.Errorf("failed to encode memory ids: %w", err)
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_message_id) DO NOTHING`,
		msg.ID, msg.Platform, msg.PlatformMessageID, msg.GroupID, msg.UserID, msg.Content,
		msg.Response, msg.Model, msg.ReplyToMessageID, msg.ThreadID, string(memoryIDs),
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// GetMessage retrieves a message by its platform key.
func (d *Driver) GetMessage(ctx context.Context, platform, platformMessageID string) (*storage.Message, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM messages WHERE platform = ? AND platform_message_id = ?`,
		platform, platformMessageID,
	)

	msg, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Platform: platform, PlatformMessageID: platformMessageID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns matching messages, newest first.
func (d *Driver) ListMessages(ctx context.Context, filter storage.Filter) ([]*storage.Message, error) {
	var (
		where []string
		args  []any
	)
	if filter.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, filter.Platform)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.GroupID != "" {
		where = append(where, "group_id = ?")
		args = append(args, filter.GroupID)
	}

	query := `SELECT ` + columns + ` FROM messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var result []*storage.Message
	for rows.Next() {
		msg, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*storage.Message, error) {
	var (
		msg       storage.Message
		memoryIDs string
		createdAt int64
	)
	err := s.Scan(
		&msg.ID, &msg.Platform, &msg.PlatformMessageID, &msg.GroupID, &msg.UserID,
		&msg.Content, &msg.Response, &msg.Model, &msg.ReplyToMessageID, &msg.ThreadID,
		&memoryIDs, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(memoryIDs), &msg.MemoryIDs); err != nil {
		return nil, fmt.Errorf("failed to decode memory ids: %w", err)
	}
	if len(msg.MemoryIDs) == 0 {
		msg.MemoryIDs = nil
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &msg, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
