package domain

import "time"

// Action classifies a single audited change.
type Action string

const (
	ActionCreated         Action = "CREATED"
	ActionStatusChanged   Action = "STATUS_CHANGED"
	ActionAssigneeChanged Action = "ASSIGNEE_CHANGED"
	ActionReviewerChanged Action = "REVIEWER_CHANGED"
	ActionServiceChanged  Action = "SERVICE_CHANGED"
	ActionWorkspaceMoved  Action = "WORKSPACE_CHANGED"
	ActionDueDateChanged  Action = "DUE_DATE_CHANGED"
	ActionNameChanged     Action = "NAME_CHANGED"
	ActionDescription     Action = "DESCRIPTION_CHANGED"
	ActionAttachmentAdded Action = "ATTACHMENT_ADDED"
	ActionAttachmentGone  Action = "ATTACHMENT_REMOVED"
	ActionFollowers       Action = "FOLLOWERS_CHANGED"
	ActionConfidentiality Action = "CONFIDENTIALITY_CHANGED"
	ActionUpdated         Action = "UPDATED"
)

// HistoryEntry is one immutable audit record. Old/new values hold display
// strings resolved at write time, never raw foreign keys, so renaming or
// deleting the referenced entity later cannot corrupt the trail.
type HistoryEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Action    Action    `json:"action"`
	Field     string    `json:"field,omitempty"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryPageSize caps how many entries a single history read returns.
const HistoryPageSize = 100
