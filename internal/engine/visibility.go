package engine

import "github.com/r3dhorse/task-management-system-sub000/internal/domain"

// canView is the visibility guard. It runs server-side on every read path;
// nothing leaves the boundary before passing it.
//
// Visitors only ever see tasks they follow, and never archived ones.
// Confidential tasks are visible to the creator, the assignee, and followers
// only, regardless of role. Global admin identities see everything.
func canView(task *domain.Task, identity domain.Identity, role domain.Role) bool {
	if identity.IsAdmin || identity.IsSuperAdmin {
		return true
	}
	if role == domain.RoleVisitor {
		if task.Status == domain.StatusArchived {
			return false
		}
		return task.IsFollower(identity.UserID)
	}
	if task.IsConfidential {
		return task.CreatedBy == identity.UserID ||
			task.IsAssignee(identity.UserID) ||
			task.IsFollower(identity.UserID)
	}
	return true
}

// filterVisible returns only the tasks the caller may see, preserving order.
func filterVisible(tasks []*domain.Task, identity domain.Identity, role domain.Role) []*domain.Task {
	visible := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if canView(t, identity, role) {
			visible = append(visible, t)
		}
	}
	return visible
}
