package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/studysocial/studysocial-core/internal/social"
)

// createRoomRequest is the request body for POST /study-rooms.
type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	MaxMembers  int    `json:"max_members"`
	IsPublic    *bool  `json:"is_public"`
}

func (r createRoomRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Description, validation.Length(0, 1000)), //nolint:mnd // description cap
		validation.Field(&r.Subject, validation.Length(0, 64)),
		validation.Field(&r.MaxMembers, validation.Min(0), validation.Max(500)), //nolint:mnd // room size cap
	)
}

// handleListRooms returns study rooms, optionally filtered by subject.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.List(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		s.logger.Error("list rooms failed", "error", err)
		writeInternalError(w, "failed to list study rooms")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"study_rooms": rooms,
		"count":       len(rooms),
	})
}

// handleCreateRoom creates a study room and joins the creator to it.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	room := &social.StudyRoom{
		Name:        req.Name,
		Description: req.Description,
		Subject:     req.Subject,
		MaxMembers:  req.MaxMembers,
		IsPublic:    isPublic,
		CreatedBy:   user.ID,
	}

	if err := s.rooms.Create(r.Context(), room); err != nil {
		s.logger.Error("create room failed", "error", err)
		writeInternalError(w, "failed to create study room")
		return
	}

	if err := s.rooms.Join(r.Context(), room.ID, user.ID); err != nil {
		s.logger.Error("creator join failed", "room_id", room.ID, "error", err)
	} else {
		room.CurrentMembers = 1
	}

	s.hub.Broadcast("room.created", room)

	writeJSON(w, http.StatusCreated, room)
}

// handleGetRoom returns one study room by identifier.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	room, err := s.rooms.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, social.ErrRoomNotFound) {
			writeNotFound(w, "study room not found")
			return
		}
		s.logger.Error("get room failed", "error", err)
		writeInternalError(w, "failed to load study room")
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// handleRoomMembers returns the accounts currently in a room.
func (s *Server) handleRoomMembers(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	members, err := s.rooms.Members(r.Context(), id)
	if err != nil {
		s.logger.Error("list room members failed", "error", err)
		writeInternalError(w, "failed to list room members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// handleJoinRoom adds the caller to a study room.
// A full room returns 409; joining twice returns 409 as well.
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.rooms.Join(r.Context(), id, user.ID); err != nil {
		switch {
		case errors.Is(err, social.ErrRoomNotFound):
			writeNotFound(w, "study room not found")
		case errors.Is(err, social.ErrRoomFull):
			writeConflict(w, "study room is full")
		case errors.Is(err, social.ErrAlreadyMember):
			writeConflict(w, "already a member of this room")
		default:
			s.logger.Error("join room failed", "error", err)
			writeInternalError(w, "failed to join study room")
		}
		return
	}

	s.hub.Broadcast(roomChannel(id), map[string]any{
		"event":    "member_joined",
		"room_id":  id,
		"user_id":  user.ID,
		"username": user.Username,
	})

	writeJSON(w, http.StatusOK, map[string]any{"joined": id})
}

// handleLeaveRoom removes the caller from a study room.
func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.rooms.Leave(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, social.ErrNotMember) {
			writeConflict(w, "not a member of this room")
			return
		}
		s.logger.Error("leave room failed", "error", err)
		writeInternalError(w, "failed to leave study room")
		return
	}

	s.hub.Broadcast(roomChannel(id), map[string]any{
		"event":   "member_left",
		"room_id": id,
		"user_id": user.ID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"left": id})
}

// roomChannel names the WebSocket channel for a room's events.
func roomChannel(roomID int64) string {
	return "room." + strconv.FormatInt(roomID, 10)
}
