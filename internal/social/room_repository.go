package social

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RoomRepository defines the interface for study room persistence.
//
// Join must hold the capacity check and the membership insert in one
// transaction: two concurrent joins must not push a room past its
// member limit.
type RoomRepository interface {
	Create(ctx context.Context, room *StudyRoom) error
	GetByID(ctx context.Context, id int64) (*StudyRoom, error)
	List(ctx context.Context, subject string) ([]StudyRoom, error)
	Join(ctx context.Context, roomID, userID int64) error
	Leave(ctx context.Context, roomID, userID int64) error
	Members(ctx context.Context, roomID int64) ([]UserSummary, error)
	Delete(ctx context.Context, id int64) error
}

// SQLiteRoomRepository implements RoomRepository using SQLite.
type SQLiteRoomRepository struct {
	db *sql.DB
}

// NewRoomRepository creates a new SQLite-backed study room repository.
func NewRoomRepository(db *sql.DB) *SQLiteRoomRepository {
	return &SQLiteRoomRepository{db: db}
}

const roomColumns = "id, name, description, subject, current_members, max_members, is_public, created_by, created_at"

// defaultMaxMembers caps room size when the creator leaves it unset.
const defaultMaxMembers = 20

// Create inserts a new study room and assigns its identifier.
// The creator is not auto-joined; callers Join explicitly.
func (r *SQLiteRoomRepository) Create(ctx context.Context, room *StudyRoom) error {
	now := time.Now().UTC().Format(time.RFC3339)
	room.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	if room.MaxMembers <= 0 {
		room.MaxMembers = defaultMaxMembers
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO study_rooms (name, description, subject, current_members, max_members, is_public, created_by, created_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
		room.Name, room.Description, room.Subject, room.MaxMembers,
		boolToInt(room.IsPublic), nullInt64(room.CreatedBy), now,
	)
	if err != nil {
		return fmt.Errorf("creating study room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new room id: %w", err)
	}
	room.ID = id

	return nil
}

// GetByID retrieves a study room by its identifier.
func (r *SQLiteRoomRepository) GetByID(ctx context.Context, id int64) (*StudyRoom, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM study_rooms WHERE id = ?", id)
	return scanRoomFrom(row)
}

// List returns study rooms oldest first. A non-empty subject filters exactly.
func (r *SQLiteRoomRepository) List(ctx context.Context, subject string) ([]StudyRoom, error) {
	query := "SELECT " + roomColumns + " FROM study_rooms"
	var args []any
	if subject != "" {
		query += " WHERE subject = ?"
		args = append(args, subject)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing study rooms: %w", err)
	}
	defer rows.Close()

	var rooms []StudyRoom
	for rows.Next() {
		room, err := scanRoomFrom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating study rooms: %w", err)
	}

	if rooms == nil {
		rooms = []StudyRoom{}
	}
	return rooms, nil
}

// Join adds a user to a room, enforcing the member limit.
//
// The capacity check, the membership insert, and the counter bump run in
// one transaction so the limit holds under concurrent joins.
func (r *SQLiteRoomRepository) Join(ctx context.Context, roomID, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning join transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current, limit int
	err = tx.QueryRowContext(ctx,
		"SELECT current_members, max_members FROM study_rooms WHERE id = ?", roomID,
	).Scan(&current, &limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("checking room capacity: %w", err)
	}

	if current >= limit {
		return ErrRoomFull
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO study_room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)",
		roomID, userID, now,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyMember
		}
		return fmt.Errorf("adding room member: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE study_rooms SET current_members = current_members + 1 WHERE id = ?", roomID,
	); err != nil {
		return fmt.Errorf("updating room member count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing join: %w", err)
	}
	return nil
}

// Leave removes a user from a room.
func (r *SQLiteRoomRepository) Leave(ctx context.Context, roomID, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning leave transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx,
		"DELETE FROM study_room_members WHERE room_id = ? AND user_id = ?", roomID, userID)
	if err != nil {
		return fmt.Errorf("removing room member: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotMember
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE study_rooms SET current_members = current_members - 1 WHERE id = ? AND current_members > 0", roomID,
	); err != nil {
		return fmt.Errorf("updating room member count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing leave: %w", err)
	}
	return nil
}

// Members returns the accounts currently in a room, oldest joiner first.
func (r *SQLiteRoomRepository) Members(ctx context.Context, roomID int64) ([]UserSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.display_name
		 FROM study_room_members m JOIN users u ON u.id = m.user_id
		 WHERE m.room_id = ? ORDER BY m.joined_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing room members: %w", err)
	}
	defer rows.Close()

	var members []UserSummary
	for rows.Next() {
		var m UserSummary
		if err := rows.Scan(&m.ID, &m.Username, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("scanning room member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating room members: %w", err)
	}

	if members == nil {
		members = []UserSummary{}
	}
	return members, nil
}

// Delete removes a study room. Memberships cascade.
func (r *SQLiteRoomRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM study_rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting study room: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// scanRoomFrom scans a study room from any scanner.
func scanRoomFrom(s scanner) (*StudyRoom, error) {
	var room StudyRoom
	var isPublic int
	var createdBy sql.NullInt64
	var createdAt string

	err := s.Scan(&room.ID, &room.Name, &room.Description, &room.Subject,
		&room.CurrentMembers, &room.MaxMembers, &isPublic, &createdBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("scanning study room: %w", err)
	}

	room.IsPublic = isPublic != 0
	if createdBy.Valid {
		room.CreatedBy = createdBy.Int64
	}
	room.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &room, nil
}

// Helper functions.

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
