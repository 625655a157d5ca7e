package domain

import "time"

// Status represents the workflow states a task can be in.
type Status string

const (
	StatusBacklog    Status = "BACKLOG"
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusInReview   Status = "IN_REVIEW"
	StatusDone       Status = "DONE"
	StatusArchived   Status = "ARCHIVED"
)

// Valid reports whether s is one of the known workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusArchived:
		return true
	}
	return false
}

// IsOpen reports whether s is an active working state. Open tasks are the
// ones the overdue sweep demotes back to BACKLOG.
func (s Status) IsOpen() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusInReview
}

// PositionStep is the gap left between consecutive tasks within a status
// column, so a task can later be dropped between two neighbours without
// renumbering the whole column.
const PositionStep = 1000

// Task is the core domain entity.
type Task struct {
	ID             string    `json:"id"`
	Number         int64     `json:"number"`
	Name           string    `json:"name"`
	Status         Status    `json:"status"`
	WorkspaceID    string    `json:"workspace_id"`
	ServiceID      string    `json:"service_id"`
	AssigneeID     *string   `json:"assignee_id,omitempty"`
	ReviewerID     *string   `json:"reviewer_id,omitempty"`
	Position       float64   `json:"position"`
	DueDate        time.Time `json:"due_date"`
	Description    string    `json:"description,omitempty"`
	AttachmentID   *string   `json:"attachment_id,omitempty"`
	IsConfidential bool      `json:"is_confidential"`
	CreatedBy      string    `json:"created_by"`
	Followers      []string  `json:"followers"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsFollower reports whether the given user is subscribed to the task.
func (t *Task) IsFollower(userID string) bool {
	for _, f := range t.Followers {
		if f == userID {
			return true
		}
	}
	return false
}

// IsAssignee reports whether the given user is the current assignee.
func (t *Task) IsAssignee(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// SyncFollowers ensures the creator and the current assignee are always in
// the follower set. Existing followers are never dropped.
func (t *Task) SyncFollowers() {
	if t.CreatedBy != "" && !t.IsFollower(t.CreatedBy) {
		t.Followers = append(t.Followers, t.CreatedBy)
	}
	if t.AssigneeID != nil && *t.AssigneeID != "" && !t.IsFollower(*t.AssigneeID) {
		t.Followers = append(t.Followers, *t.AssigneeID)
	}
}
