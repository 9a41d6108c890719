package social

import (
	"errors"
	"time"
)

// UserSummary is the slice of an account that content records embed:
// enough to render an author line without another lookup.
type UserSummary struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// Post is a study post published to the shared feed.
type Post struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	AuthorID  int64       `json:"author_id"`
	Author    UserSummary `json:"author"`
	Category  string      `json:"category,omitempty"`
	Tags      []string    `json:"tags"`
	Likes     int         `json:"likes"`
	Comments  int         `json:"comments"`
	CreatedAt time.Time   `json:"created_at"`
}

// StudyRoom is a shared space users join to study a subject together.
// CurrentMembers is maintained by the membership operations and never
// exceeds MaxMembers.
type StudyRoom struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	CurrentMembers int       `json:"current_members"`
	MaxMembers     int       `json:"max_members"`
	IsPublic       bool      `json:"is_public"`
	CreatedBy      int64     `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Message is a direct message between two accounts.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	ReceiverID  int64     `json:"receiver_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Friend request states.
const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestDeclined = "declined"
)

// FriendRequest is a pending or resolved connection between two accounts.
// At most one request exists per ordered (from, to) pair.
type FriendRequest struct {
	ID         int64     `json:"id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sentinel errors for social operations.
var (
	ErrPostNotFound    = errors.New("post not found")
	ErrRoomNotFound    = errors.New("study room not found")
	ErrRoomFull        = errors.New("study room is full")
	ErrAlreadyMember   = errors.New("already a member of this room")
	ErrNotMember       = errors.New("not a member of this room")
	ErrMessageNotFound = errors.New("message not found")
	ErrRequestNotFound = errors.New("friend request not found")
	ErrRequestExists   = errors.New("friend request already exists")
	ErrRequestResolved = errors.New("friend request already resolved")
	ErrSelfRequest     = errors.New("cannot send a friend request to yourself")
)
