package domain

// Role governs a member's default visibility and mutation rights within a
// single workspace.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleMember  Role = "MEMBER"
	RoleVisitor Role = "VISITOR"
)

// Member is a user's participation record within one workspace.
type Member struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        Role   `json:"role"`
}

// Identity is the authenticated caller as supplied by the auth layer.
// It is consumed opaquely; the engine never issues or validates sessions.
type Identity struct {
	UserID       string `json:"user_id"`
	IsAdmin      bool   `json:"is_admin"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}
