package social

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studysocial/studysocial-core/internal/auth"
)

// SeedSampleData populates demo accounts, posts, and study rooms for
// local development. It runs only when the database has no posts yet, so
// restarting a demo instance does not duplicate content.
//
// Demo accounts share the given password. Never enable this in production.
func SeedSampleData(
	ctx context.Context,
	users auth.UserRepository,
	posts PostRepository,
	rooms RoomRepository,
	demoPassword string,
	logger *slog.Logger,
) error {
	existing, err := posts.List(ctx, "")
	if err != nil {
		return fmt.Errorf("checking existing posts: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("sample data exists, skipping seed")
		return nil
	}

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return fmt.Errorf("hashing demo password: %w", err)
	}

	demoUsers := []auth.User{
		{Username: "alice.chen", Email: "alice@studysocial.local", DisplayName: "Alice Chen"},
		{Username: "bob.okafor", Email: "bob@studysocial.local", DisplayName: "Bob Okafor"},
		{Username: "carla.reyes", Email: "carla@studysocial.local", DisplayName: "Carla Reyes"},
	}
	ids := make([]int64, 0, len(demoUsers))
	for i := range demoUsers {
		u := demoUsers[i]
		u.PasswordHash = hash
		u.Role = auth.RoleUser
		u.IsActive = true
		if err := users.Create(ctx, &u); err != nil {
			return fmt.Errorf("creating demo user %s: %w", u.Username, err)
		}
		ids = append(ids, u.ID)
	}

	demoPosts := []Post{
		{
			Title:    "Spaced repetition actually works",
			Content:  "Three weeks of Anki for organic chemistry and my retention doubled. Happy to share my deck setup.",
			AuthorID: ids[0],
			Category: "study-tips",
			Tags:     []string{"memory", "chemistry"},
		},
		{
			Title:    "Looking for a calculus study partner",
			Content:  "Working through Stewart chapter 7 this week. Anyone up for a daily problem session?",
			AuthorID: ids[1],
			Category: "partners",
			Tags:     []string{"calculus"},
		},
		{
			Title:    "Library quiet hours changed",
			Content:  "Heads up: the east wing is now quiet-only after 6pm.",
			AuthorID: ids[2],
			Category: "campus",
			Tags:     []string{},
		},
	}
	for i := range demoPosts {
		if err := posts.Create(ctx, &demoPosts[i]); err != nil {
			return fmt.Errorf("creating demo post: %w", err)
		}
	}

	demoRooms := []StudyRoom{
		{Name: "Organic Chemistry Crunch", Description: "Exam prep for orgo II", Subject: "chemistry", MaxMembers: 10, IsPublic: true, CreatedBy: ids[0]},
		{Name: "Calculus Daily", Description: "One integral a day", Subject: "mathematics", MaxMembers: 20, IsPublic: true, CreatedBy: ids[1]},
	}
	for i := range demoRooms {
		room := &demoRooms[i]
		if err := rooms.Create(ctx, room); err != nil {
			return fmt.Errorf("creating demo room: %w", err)
		}
		if err := rooms.Join(ctx, room.ID, room.CreatedBy); err != nil {
			return fmt.Errorf("joining demo room: %w", err)
		}
	}

	logger.Info("sample data seeded",
		"users", len(demoUsers),
		"posts", len(demoPosts),
		"rooms", len(demoRooms),
	)
	return nil
}
