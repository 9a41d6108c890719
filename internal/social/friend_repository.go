package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FriendRepository defines the interface for friend request persistence.
type FriendRepository interface {
	Create(ctx context.Context, req *FriendRequest) error
	GetByID(ctx context.Context, id int64) (*FriendRequest, error)
	ListForUser(ctx context.Context, userID int64) ([]FriendRequest, error)
	Resolve(ctx context.Context, id int64, status string) error
}

// SQLiteFriendRepository implements FriendRepository using SQLite.
// The UNIQUE (from_user_id, to_user_id) constraint keeps duplicate
// requests out without a separate existence check.
type SQLiteFriendRepository struct {
	db *sql.DB
}

// NewFriendRepository creates a new SQLite-backed friend request repository.
func NewFriendRepository(db *sql.DB) *SQLiteFriendRepository {
	return &SQLiteFriendRepository{db: db}
}

const friendColumns = "id, from_user_id, to_user_id, status, created_at"

// Create inserts a new pending friend request.
func (r *SQLiteFriendRepository) Create(ctx context.Context, req *FriendRequest) error {
	if req.FromUserID == req.ToUserID {
		return ErrSelfRequest
	}

	now := time.Now().UTC().Format(time.RFC3339)
	req.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	req.Status = FriendRequestPending

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO friend_requests (from_user_id, to_user_id, status, created_at)
		 VALUES (?, ?, ?, ?)`,
		req.FromUserID, req.ToUserID, req.Status, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrRequestExists
		}
		return fmt.Errorf("creating friend request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new friend request id: %w", err)
	}
	req.ID = id

	return nil
}

// GetByID retrieves a friend request by its identifier.
func (r *SQLiteFriendRepository) GetByID(ctx context.Context, id int64) (*FriendRequest, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+friendColumns+" FROM friend_requests WHERE id = ?", id)
	return scanFriendRequestFrom(row)
}

// ListForUser returns requests sent to or by an account, newest first.
func (r *SQLiteFriendRepository) ListForUser(ctx context.Context, userID int64) ([]FriendRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+friendColumns+` FROM friend_requests
		 WHERE from_user_id = ? OR to_user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friend requests: %w", err)
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		req, err := scanFriendRequestFrom(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friend requests: %w", err)
	}

	if requests == nil {
		requests = []FriendRequest{}
	}
	return requests, nil
}

// Resolve moves a pending request to accepted or declined. A request
// that was already resolved stays as it is.
func (r *SQLiteFriendRepository) Resolve(ctx context.Context, id int64, status string) error {
	if status != FriendRequestAccepted && status != FriendRequestDeclined {
		return fmt.Errorf("invalid friend request status: %q", status)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE friend_requests SET status = ? WHERE id = ? AND status = ?",
		status, id, FriendRequestPending,
	)
	if err != nil {
		return fmt.Errorf("resolving friend request: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrRequestResolved
	}
	return nil
}

// scanFriendRequestFrom scans a friend request from any scanner.
func scanFriendRequestFrom(s scanner) (*FriendRequest, error) {
	var req FriendRequest
	var createdAt string

	err := s.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &req.Status, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("scanning friend request: %w", err)
	}

	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &req, nil
}
