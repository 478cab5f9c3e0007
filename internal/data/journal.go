package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devricklin/discord-relay/internal/biz/domain"
	"github.com/devricklin/discord-relay/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// journalRepo implements the reply journal
type journalRepo struct {
	db *sql.DB
}

// NewJournalRepo creates a new reply journal
func NewJournalRepo(dbPath string) (repo.JournalRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS replies (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL,
			reply TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			received_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Create index
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_replies_completed_at ON replies(completed_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &journalRepo{db: db}, nil
}

// Append stores a reply attempt
func (r *journalRepo) Append(ctx context.Context, rec *domain.ReplyRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO replies (id, message_id, channel_id, author_id, author_name, prompt, reply, outcome, error, received_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.MessageID,
		rec.ChannelID,
		rec.AuthorID,
		rec.AuthorName,
		rec.Prompt,
		rec.Reply,
		string(rec.Outcome),
		rec.Error,
		rec.ReceivedAt.UnixMilli(),
		rec.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append reply: %w", err)
	}
	return nil
}

// Recent lists the newest records first
func (r *journalRepo) Recent(ctx context.Context, limit int) ([]*domain.ReplyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, channel_id, author_id, author_name, prompt, reply, outcome, error, received_at, completed_at
		FROM replies
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReplyRecord
	for rows.Next() {
		var rec domain.ReplyRecord
		var outcome string
		var receivedAt, completedAt int64
		if err := rows.Scan(&rec.ID, &rec.MessageID, &rec.ChannelID, &rec.AuthorID, &rec.AuthorName,
			&rec.Prompt, &rec.Reply, &outcome, &rec.Error, &receivedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.ReceivedAt = time.UnixMilli(receivedAt)
		rec.CompletedAt = time.UnixMilli(completedAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate replies: %w", err)
	}

	return records, nil
}

// Prune deletes records completed before the cutoff
func (r *journalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM replies WHERE completed_at < ?
	`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune replies: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (r *journalRepo) Close() error {
	return r.db.Close()
}
