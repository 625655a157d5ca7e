package engine

import (
	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

// actorContext captures the actor's role and relation to one task. It is
// computed once per request and consulted by every permission rule.
type actorContext struct {
	userID     string
	role       domain.Role
	isAdmin    bool // workspace ADMIN or a global admin identity
	isCreator  bool
	isAssignee bool
	isFollower bool
}

func newActorContext(task *domain.Task, identity domain.Identity, role domain.Role) actorContext {
	return actorContext{
		userID:     identity.UserID,
		role:       role,
		isAdmin:    role == domain.RoleAdmin || identity.IsAdmin || identity.IsSuperAdmin,
		isCreator:  task.CreatedBy == identity.UserID,
		isAssignee: task.IsAssignee(identity.UserID),
		isFollower: task.IsFollower(identity.UserID),
	}
}

// memberFollower reports whether the actor follows the task while holding
// MEMBER role, which unlocks edits on IN_PROGRESS tasks.
func (a actorContext) memberFollower() bool {
	return a.isFollower && a.role == domain.RoleMember
}

// editRule describes who may edit non-status fields while the task sits in a
// given status. One row per status keeps every rule independently testable.
type editRule struct {
	visitorMayEdit bool // visitors may edit fields (never status)
	assigneeScoped bool // assignee, MEMBER-role follower, or admin only
	adminOnly      bool
}

var fieldEditRules = map[domain.Status]editRule{
	domain.StatusBacklog:    {visitorMayEdit: true},
	domain.StatusTodo:       {visitorMayEdit: true},
	domain.StatusInProgress: {assigneeScoped: true},
	domain.StatusInReview:   {},
	domain.StatusDone:       {adminOnly: true},
	domain.StatusArchived:   {visitorMayEdit: true},
}

// canEditFields applies the per-status edit rule for non-status fields.
func canEditFields(status domain.Status, a actorContext) bool {
	rule := fieldEditRules[status]
	switch {
	case a.isAdmin:
		return true
	case rule.adminOnly:
		return false
	case rule.assigneeScoped:
		return a.isAssignee || a.memberFollower()
	case a.role == domain.RoleVisitor:
		return rule.visitorMayEdit
	default:
		return true
	}
}

// canChangeStatus gates a status transition from -> to.
func canChangeStatus(from, to domain.Status, a actorContext) bool {
	// Visitors never change status, in any state.
	if a.role == domain.RoleVisitor && !a.isAdmin {
		return false
	}
	// ARCHIVED is reached only through the archive action.
	if to == domain.StatusArchived {
		return false
	}
	if a.isAdmin {
		return true
	}
	// ARCHIVED and DONE are terminal for non-admins.
	if from == domain.StatusArchived || from == domain.StatusDone {
		return false
	}
	// Completing a task is open to every member, from any status. A missing
	// reviewer does not block IN_REVIEW -> DONE here; the client may warn.
	if to == domain.StatusDone {
		return true
	}
	// Handing over for review is open to every member even when IN_PROGRESS
	// field edits are assignee-scoped.
	if from == domain.StatusInProgress && to == domain.StatusInReview {
		return true
	}
	return canEditFields(from, a)
}

// canReassign gates changing the assignee. newAssignee is empty when the
// update unassigns.
func canReassign(task *domain.Task, a actorContext, newAssignee string) bool {
	if a.isAdmin || a.isAssignee {
		return true
	}
	// Self-assignment onto an unassigned task.
	return task.AssigneeID == nil && newAssignee == a.userID
}

// canArchive gates the soft-delete. Once DONE, only admins may archive.
func canArchive(task *domain.Task, a actorContext) bool {
	if task.Status == domain.StatusDone {
		return a.isAdmin
	}
	return a.isAdmin || a.isCreator || a.isAssignee
}
