package social

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostRepository defines the interface for post persistence.
type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	GetByID(ctx context.Context, id int64) (*Post, error)
	List(ctx context.Context, category string) ([]Post, error)
	AddLike(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// SQLitePostRepository implements PostRepository using SQLite.
// Listing joins the author row so feed rendering needs no second query.
type SQLitePostRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new SQLite-backed post repository.
func NewPostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{db: db}
}

const postColumns = `p.id, p.title, p.content, p.author_id, p.category, p.tags,
	p.likes, p.comments, p.created_at, u.username, u.display_name`

// Create inserts a new post and assigns its identifier.
func (r *SQLitePostRepository) Create(ctx context.Context, post *Post) error {
	now := time.Now().UTC().Format(time.RFC3339)
	post.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	if post.Tags == nil {
		post.Tags = []string{}
	}
	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return fmt.Errorf("encoding post tags: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (title, content, author_id, category, tags, likes, comments, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
		post.Title, post.Content, post.AuthorID, post.Category, string(tags), now,
	)
	if err != nil {
		return fmt.Errorf("creating post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new post id: %w", err)
	}
	post.ID = id

	return nil
}

// GetByID retrieves a post with its author summary.
func (r *SQLitePostRepository) GetByID(ctx context.Context, id int64) (*Post, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM posts p JOIN users u ON u.id = p.author_id WHERE p.id = ?", id)
	return scanPostFrom(row)
}

// List returns posts newest first. A non-empty category filters exactly.
func (r *SQLitePostRepository) List(ctx context.Context, category string) ([]Post, error) {
	query := "SELECT " + postColumns + " FROM posts p JOIN users u ON u.id = p.author_id"
	var args []any
	if category != "" {
		query += " WHERE p.category = ?"
		args = append(args, category)
	}
	query += " ORDER BY p.created_at DESC, p.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPostFrom(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}

	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

// AddLike increments a post's like counter.
func (r *SQLitePostRepository) AddLike(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "UPDATE posts SET likes = likes + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("liking post: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPostNotFound
	}
	return nil
}

// Delete removes a post by identifier.
func (r *SQLitePostRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPostNotFound
	}
	return nil
}

// scanner is an interface over sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanPostFrom scans a post (with author summary) from any scanner.
func scanPostFrom(s scanner) (*Post, error) {
	var p Post
	var tags, createdAt string

	err := s.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.Category,
		&tags, &p.Likes, &p.Comments, &createdAt,
		&p.Author.Username, &p.Author.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("scanning post: %w", err)
	}

	p.Author.ID = p.AuthorID
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding post tags: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &p, nil
}
