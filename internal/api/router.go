package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studysocial/studysocial-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Auth endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket handshake authenticates with a single-use ticket from
		// POST /auth/ws-ticket; browsers cannot set an Authorization header here.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - the ticket carries the caller identity
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Member directory
			r.Get("/users/me", s.handleMe)
			r.Get("/users", s.handleListUsers)

			// Study posts
			r.Route("/posts", func(r chi.Router) {
				r.Get("/", s.handleListPosts)
				r.Post("/", s.handleCreatePost)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPost)
					r.Post("/like", s.handleLikePost)
					r.Delete("/", s.handleDeletePost)
				})
			})

			// Study rooms
			r.Route("/study-rooms", func(r chi.Router) {
				r.Get("/", s.handleListRooms)
				r.Post("/", s.handleCreateRoom)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRoom)
					r.Get("/members", s.handleRoomMembers)
					r.Post("/join", s.handleJoinRoom)
					r.Post("/leave", s.handleLeaveRoom)
				})
			})

			// Direct messages
			r.Route("/messages", func(r chi.Router) {
				r.Get("/", s.handleListMessages)
				r.Post("/", s.handleSendMessage)
				r.Post("/{id}/read", s.handleMarkMessageRead)
			})

			// Friend requests
			r.Route("/friends/requests", func(r chi.Router) {
				r.Get("/", s.handleListFriendRequests)
				r.Post("/", s.handleCreateFriendRequest)
				r.Post("/{id}/accept", s.handleAcceptFriendRequest)
				r.Post("/{id}/decline", s.handleDeclineFriendRequest)
			})

			// Admin surface
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleAdmin, auth.RoleSuperAdmin))
				r.Get("/users", s.handleAdminListUsers)
				r.Patch("/users/{id}", s.handleAdminUpdateUser)
				r.Delete("/users/{id}", s.handleAdminDeleteUser)
				r.Get("/audit", s.handleListAuditLogs)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
