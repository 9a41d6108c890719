package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermDirectoryRead Permission = "directory:read"
	PermPostPublish   Permission = "post:publish"
	PermRoomJoin      Permission = "room:join"
	PermRoomManage    Permission = "room:manage"
	PermMessageSend   Permission = "message:send"
	PermUserModerate  Permission = "user:moderate"
	PermAuditRead     Permission = "audit:read"
	PermRoleManage    Permission = "role:manage"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermDirectoryRead,
		PermPostPublish,
		PermRoomJoin,
		PermMessageSend,
	},
	RoleAdmin: {
		PermDirectoryRead,
		PermPostPublish,
		PermRoomJoin,
		PermRoomManage,
		PermMessageSend,
		PermUserModerate,
		PermAuditRead,
	},
	RoleSuperAdmin: {
		PermDirectoryRead,
		PermPostPublish,
		PermRoomJoin,
		PermRoomManage,
		PermMessageSend,
		PermUserModerate,
		PermAuditRead,
		PermRoleManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// RoleIn returns true if the role appears in the allowed set. An empty
// allowed set denies everything: the guard fails closed.
func RoleIn(role Role, allowed ...Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
