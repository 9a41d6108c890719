package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/studysocial/studysocial-core/internal/auth"
	"github.com/studysocial/studysocial-core/internal/social"
)

// sendMessageRequest is the request body for POST /messages.
type sendMessageRequest struct {
	ReceiverID  int64  `json:"receiver_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

func (r sendMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ReceiverID, validation.Required, validation.Min(1)),
		validation.Field(&r.Content, validation.Required, validation.Length(1, 4000)), //nolint:mnd // message body cap
		validation.Field(&r.MessageType, validation.In(
			"", social.MessageTypeText, social.MessageTypeImage, social.MessageTypeFile,
		)),
	)
}

// handleListMessages returns the caller's conversation with another user.
// The other party is named by the "with" query parameter.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	other, err := parseID(r.URL.Query().Get("with"))
	if err != nil {
		writeBadRequest(w, "the 'with' query parameter must name a user id")
		return
	}

	messages, err := s.messages.Conversation(r.Context(), user.ID, other)
	if err != nil {
		s.logger.Error("load conversation failed", "error", err)
		writeInternalError(w, "failed to load conversation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// handleSendMessage stores a direct message and pushes it to the
// receiver's WebSocket channel.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.ReceiverID == user.ID {
		writeBadRequest(w, "cannot message yourself")
		return
	}

	// The receiver must exist and be active.
	receiver, err := s.users.GetByID(r.Context(), req.ReceiverID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "receiver not found")
			return
		}
		s.logger.Error("load receiver failed", "error", err)
		writeInternalError(w, "failed to send message")
		return
	}
	if !receiver.IsActive {
		writeNotFound(w, "receiver not found")
		return
	}

	msg := &social.Message{
		SenderID:    user.ID,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		MessageType: req.MessageType,
	}

	if err := s.messages.Create(r.Context(), msg); err != nil {
		s.logger.Error("create message failed", "error", err)
		writeInternalError(w, "failed to send message")
		return
	}

	s.hub.Broadcast(userChannel(req.ReceiverID), msg)

	writeJSON(w, http.StatusCreated, msg)
}

// handleMarkMessageRead marks one of the caller's received messages read.
func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.messages.MarkRead(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, social.ErrMessageNotFound) {
			writeNotFound(w, "message not found")
			return
		}
		s.logger.Error("mark message read failed", "error", err)
		writeInternalError(w, "failed to mark message read")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"read": id})
}

// userChannel names the WebSocket channel for a user's direct events.
func userChannel(userID int64) string {
	return "user." + strconv.FormatInt(userID, 10)
}
