// Package rbac maps the two board roles to the actions they may perform.
package rbac

type Role string
type Action string

const (
	RoleVisitor Role = "visitor"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead      Action = "read"
	ActionSubmit    Action = "submit"
	ActionDelete    Action = "delete"
	ActionViewOwner Action = "view_owner"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleVisitor:
		return action == ActionRead || action == ActionSubmit
	default:
		return false
	}
}

// For returns the role of a client given its admin status.
func For(isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return RoleVisitor
}
