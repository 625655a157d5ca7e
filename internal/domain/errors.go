package domain

import "fmt"

// TaskNotFoundError is returned when a task does not exist, and also when it
// exists but is not visible to the caller. The two cases are deliberately
// indistinguishable so restricted tasks cannot be probed for existence.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// ServiceNotFoundError is returned when a referenced service does not exist.
type ServiceNotFoundError struct {
	ServiceID string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service not found: %s", e.ServiceID)
}

// NotMemberError is returned when the actor has no membership in the
// workspace the operation targets.
type NotMemberError struct {
	UserID      string
	WorkspaceID string
}

func (e *NotMemberError) Error() string {
	return fmt.Sprintf("user %s is not a member of workspace %s", e.UserID, e.WorkspaceID)
}

// PermissionDeniedError is returned when the actor's role or relation to the
// task does not permit the attempted mutation.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Reason
}

// ValidationError is returned when a request is rejected before any mutation
// is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}
