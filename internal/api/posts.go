package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/studysocial/studysocial-core/internal/auth"
	"github.com/studysocial/studysocial-core/internal/social"
)

// createPostRequest is the request body for POST /posts.
type createPostRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (r createPostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Content, validation.Required, validation.Length(1, 10000)), //nolint:mnd // post body cap
		validation.Field(&r.Category, validation.Length(0, 64)),
	)
}

// handleListPosts returns the feed, optionally filtered by category.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.logger.Error("list posts failed", "error", err)
		writeInternalError(w, "failed to list posts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"posts": posts,
		"count": len(posts),
	})
}

// handleCreatePost publishes a post authored by the caller.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	post := &social.Post{
		Title:    req.Title,
		Content:  req.Content,
		AuthorID: user.ID,
		Author: social.UserSummary{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
		},
		Category: req.Category,
		Tags:     req.Tags,
	}

	if err := s.posts.Create(r.Context(), post); err != nil {
		s.logger.Error("create post failed", "error", err)
		writeInternalError(w, "failed to create post")
		return
	}

	s.hub.Broadcast("post.created", post)

	writeJSON(w, http.StatusCreated, post)
}

// handleGetPost returns one post by identifier.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	post, err := s.posts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, social.ErrPostNotFound) {
			writeNotFound(w, "post not found")
			return
		}
		s.logger.Error("get post failed", "error", err)
		writeInternalError(w, "failed to load post")
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// handleLikePost increments a post's like counter.
func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.posts.AddLike(r.Context(), id); err != nil {
		if errors.Is(err, social.ErrPostNotFound) {
			writeNotFound(w, "post not found")
			return
		}
		s.logger.Error("like post failed", "error", err)
		writeInternalError(w, "failed to like post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"liked": id})
}

// handleDeletePost removes a post. Authors delete their own; moderators
// delete anything.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	post, err := s.posts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, social.ErrPostNotFound) {
			writeNotFound(w, "post not found")
			return
		}
		s.logger.Error("get post failed", "error", err)
		writeInternalError(w, "failed to delete post")
		return
	}

	if post.AuthorID != user.ID && !auth.HasPermission(user.Role, auth.PermUserModerate) {
		writeForbidden(w, "not the author of this post")
		return
	}

	if err := s.posts.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete post failed", "error", err)
		writeInternalError(w, "failed to delete post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
