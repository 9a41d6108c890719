package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studysocial/studysocial-core/internal/auth"
	"github.com/studysocial/studysocial-core/internal/social"
)

// createFriendRequestBody is the request body for POST /friends/requests.
type createFriendRequestBody struct {
	ToUserID int64 `json:"to_user_id"`
}

// handleListFriendRequests returns requests sent to or by the caller.
func (s *Server) handleListFriendRequests(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	requests, err := s.friends.ListForUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list friend requests failed", "error", err)
		writeInternalError(w, "failed to list friend requests")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

// handleCreateFriendRequest sends a friend request from the caller.
func (s *Server) handleCreateFriendRequest(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req createFriendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ToUserID <= 0 {
		writeBadRequest(w, "to_user_id must name a user id")
		return
	}

	if _, err := s.users.GetByID(r.Context(), req.ToUserID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("load request target failed", "error", err)
		writeInternalError(w, "failed to create friend request")
		return
	}

	fr := &social.FriendRequest{
		FromUserID: user.ID,
		ToUserID:   req.ToUserID,
	}

	if err := s.friends.Create(r.Context(), fr); err != nil {
		switch {
		case errors.Is(err, social.ErrSelfRequest):
			writeBadRequest(w, "cannot send a friend request to yourself")
		case errors.Is(err, social.ErrRequestExists):
			writeConflict(w, "friend request already exists")
		default:
			s.logger.Error("create friend request failed", "error", err)
			writeInternalError(w, "failed to create friend request")
		}
		return
	}

	s.hub.Broadcast(userChannel(req.ToUserID), map[string]any{
		"event":   "friend_request",
		"request": fr,
	})

	writeJSON(w, http.StatusCreated, fr)
}

// handleAcceptFriendRequest accepts a pending request addressed to the caller.
func (s *Server) handleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.resolveFriendRequest(w, r, social.FriendRequestAccepted)
}

// handleDeclineFriendRequest declines a pending request addressed to the caller.
func (s *Server) handleDeclineFriendRequest(w http.ResponseWriter, r *http.Request) {
	s.resolveFriendRequest(w, r, social.FriendRequestDeclined)
}

// resolveFriendRequest moves a pending request to the given state.
// Only the addressee may resolve it.
func (s *Server) resolveFriendRequest(w http.ResponseWriter, r *http.Request, status string) {
	user := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	fr, err := s.friends.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, social.ErrRequestNotFound) {
			writeNotFound(w, "friend request not found")
			return
		}
		s.logger.Error("load friend request failed", "error", err)
		writeInternalError(w, "failed to resolve friend request")
		return
	}

	if fr.ToUserID != user.ID {
		writeForbidden(w, "not the addressee of this request")
		return
	}

	if err := s.friends.Resolve(r.Context(), id, status); err != nil {
		if errors.Is(err, social.ErrRequestResolved) {
			writeConflict(w, "friend request already resolved")
			return
		}
		s.logger.Error("resolve friend request failed", "error", err)
		writeInternalError(w, "failed to resolve friend request")
		return
	}

	fr.Status = status
	s.hub.Broadcast(userChannel(fr.FromUserID), map[string]any{
		"event":   "friend_request_" + status,
		"request": fr,
	})

	writeJSON(w, http.StatusOK, fr)
}
