package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studysocial/studysocial-core/internal/audit"
	"github.com/studysocial/studysocial-core/internal/auth"
)

// handleMe returns the authenticated account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := identityFromContext(r.Context())
	if user == nil {
		writeUnauthorized(w, "invalid or missing token")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleListUsers returns the member directory, optionally filtered by a
// search term over username and display name.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	// Directory entries carry no hash (json:"-") but strip them anyway
	// before they cross the package boundary.
	public := make([]auth.User, 0, len(users))
	for i := range users {
		public = append(public, *users[i].Public())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": public,
		"count": len(public),
	})
}

// handleAdminListUsers returns all accounts for the admin surface.
func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.logger.Error("admin list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	public := make([]auth.User, 0, len(users))
	for i := range users {
		public = append(public, *users[i].Public())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": public,
		"count": len(public),
	})
}

// adminUpdateUserRequest is the PATCH body for account moderation.
// Absent fields are left unchanged.
type adminUpdateUserRequest struct {
	DisplayName *string    `json:"display_name,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Role        *auth.Role `json:"role,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// handleAdminUpdateUser modifies an account's moderation fields.
//
// Role changes and touching another admin account require super_admin.
// Admins cannot deactivate themselves.
func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) { //nolint:gocognit // moderation rules: role and self-protection checks per field
	caller := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req adminUpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	target, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("load user failed", "error", err)
		writeInternalError(w, "failed to update user")
		return
	}

	// Only super_admin may touch admin or super_admin accounts.
	if target.Role != auth.RoleUser && caller.Role != auth.RoleSuperAdmin {
		writeForbidden(w, "only a super admin can modify admin accounts")
		return
	}

	if req.Role != nil {
		if !auth.HasPermission(caller.Role, auth.PermRoleManage) {
			writeForbidden(w, "only a super admin can change roles")
			return
		}
		if !auth.IsValidRole(*req.Role) {
			writeBadRequest(w, "invalid role: must be user, admin, or super_admin")
			return
		}
		if target.ID == caller.ID && *req.Role != caller.Role {
			writeForbidden(w, "cannot change your own role")
			return
		}
		target.Role = *req.Role
	}

	if req.IsActive != nil {
		if target.ID == caller.ID && !*req.IsActive {
			writeForbidden(w, "cannot deactivate your own account")
			return
		}
		target.IsActive = *req.IsActive
	}

	if req.DisplayName != nil {
		target.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		target.Email = *req.Email
	}

	if err := s.users.Update(r.Context(), target); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "email already registered")
			return
		}
		s.logger.Error("update user failed", "error", err)
		writeInternalError(w, "failed to update user")
		return
	}

	action := audit.ActionRoleChange
	if req.Role == nil && req.IsActive != nil {
		action = audit.ActionDeactivate
		if *req.IsActive {
			action = audit.ActionReactivate
		}
	}
	s.auditLog(action, "user", strconv.FormatInt(target.ID, 10), caller.Username, map[string]any{
		"target_username": target.Username,
		"role":            target.Role,
		"is_active":       target.IsActive,
	})

	writeJSON(w, http.StatusOK, target.Public())
}

// handleAdminDeleteUser removes an account. Its identifier is never
// reused. Deleting admin accounts or yourself requires the same rules as
// updates.
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	caller := identityFromContext(r.Context())

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if id == caller.ID {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	target, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("load user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	if target.Role != auth.RoleUser && caller.Role != auth.RoleSuperAdmin {
		writeForbidden(w, "only a super admin can delete admin accounts")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.auditLog(audit.ActionDelete, "user", strconv.FormatInt(id, 10), caller.Username, map[string]any{
		"target_username": target.Username,
	})

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
