package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MessageRepository defines the interface for direct message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *Message) error
	Conversation(ctx context.Context, userID, otherID int64) ([]Message, error)
	MarkRead(ctx context.Context, id, receiverID int64) error
	UnreadCount(ctx context.Context, receiverID int64) (int, error)
}

// SQLiteMessageRepository implements MessageRepository using SQLite.
type SQLiteMessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new SQLite-backed message repository.
func NewMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

const messageColumns = "id, sender_id, receiver_id, content, message_type, is_read, created_at"

// Create inserts a new message and assigns its identifier.
func (r *SQLiteMessageRepository) Create(ctx context.Context, msg *Message) error {
	now := time.Now().UTC().Format(time.RFC3339)
	msg.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	if msg.MessageType == "" {
		msg.MessageType = MessageTypeText
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content, message_type, is_read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		msg.SenderID, msg.ReceiverID, msg.Content, msg.MessageType, now,
	)
	if err != nil {
		return fmt.Errorf("creating message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new message id: %w", err)
	}
	msg.ID = id

	return nil
}

// Conversation returns all messages between two accounts, oldest first.
// Direction does not matter: both halves of the exchange are included.
func (r *SQLiteMessageRepository) Conversation(ctx context.Context, userID, otherID int64) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		 ORDER BY created_at ASC, id ASC`,
		userID, otherID, otherID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessageFrom(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// MarkRead marks a message read. Only the receiver may mark it, so the
// receiver ID is part of the predicate rather than a separate check.
func (r *SQLiteMessageRepository) MarkRead(ctx context.Context, id, receiverID int64) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE messages SET is_read = 1 WHERE id = ? AND receiver_id = ?", id, receiverID)
	if err != nil {
		return fmt.Errorf("marking message read: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// UnreadCount returns how many unread messages an account has.
func (r *SQLiteMessageRepository) UnreadCount(ctx context.Context, receiverID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0", receiverID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// scanMessageFrom scans a message from any scanner.
func scanMessageFrom(s scanner) (*Message, error) {
	var m Message
	var isRead int
	var createdAt string

	err := s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.MessageType, &isRead, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	m.IsRead = isRead != 0
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &m, nil
}
