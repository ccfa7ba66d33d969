package link

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/h1v3-io/zenslack/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("link store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("link store: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("link store: busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ticket_links (
			channel_id TEXT NOT NULL,
			chat_id    TEXT NOT NULL,
			ticket_id  INTEGER NOT NULL,
			status     TEXT NOT NULL DEFAULT 'open',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (channel_id, chat_id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_links_ticket ON ticket_links(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_links_status ON ticket_links(status);
	`)
	if err != nil {
		return fmt.Errorf("link store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, channelID, chatID string, ticketID int64) (*protocol.TicketLink, error) {
	now := time.Now().UTC().Truncate(time.Second)
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ticket_links (channel_id, chat_id, ticket_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, channelID, chatID, ticketID, string(protocol.LinkOpen), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("link store: insert: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("link store: insert %s/%s: %w", channelID, chatID, ErrAlreadyExists)
	}
	return &protocol.TicketLink{
		ChannelID: channelID,
		ChatID:    chatID,
		TicketID:  ticketID,
		Status:    protocol.LinkOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetByRoot(ctx context.Context, channelID, chatID string) (*protocol.TicketLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT channel_id, chat_id, ticket_id, status, created_at, updated_at
		FROM ticket_links WHERE channel_id = ? AND chat_id = ?`, channelID, chatID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link store: %s/%s: %w", channelID, chatID, ErrNotFound)
		}
		return nil, fmt.Errorf("link store: get by root: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) GetByTicket(ctx context.Context, chatID string, ticketID int64) (*protocol.TicketLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT channel_id, chat_id, ticket_id, status, created_at, updated_at
		FROM ticket_links WHERE ticket_id = ? AND chat_id = ?`, ticketID, chatID)

	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link store: ticket %d (%s): %w", ticketID, chatID, ErrNotFound)
		}
		return nil, fmt.Errorf("link store: get by ticket: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) MarkResolved(ctx context.Context, channelID, chatID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `UPDATE ticket_links SET status = ?, updated_at = ? WHERE channel_id = ? AND chat_id = ?`,
		string(protocol.LinkResolved), now, channelID, chatID)
	if err != nil {
		return fmt.Errorf("link store: mark resolved: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("link store: mark resolved %s/%s: %w", channelID, chatID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*protocol.TicketLink, error) {
	query := "SELECT channel_id, chat_id, ticket_id, status, created_at, updated_at FROM ticket_links WHERE 1=1"
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.ChannelID != "" {
		query += " AND channel_id = ?"
		args = append(args, filter.ChannelID)
	}
	query += " ORDER BY created_at DESC, chat_id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("link store: list: %w", err)
	}
	defer rows.Close()

	var links []*protocol.TicketLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("link store: list scan: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLink(s scannable) (*protocol.TicketLink, error) {
	var l protocol.TicketLink
	var status, createdAt, updatedAt string

	if err := s.Scan(&l.ChannelID, &l.ChatID, &l.TicketID, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	l.Status = protocol.LinkStatus(status)
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &l, nil
}
