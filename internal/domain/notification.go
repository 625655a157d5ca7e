package domain

import "time"

// NotificationType classifies a notification for the recipient's inbox.
type NotificationType string

const (
	NotificationTaskAssigned NotificationType = "TASK_ASSIGNED"
	NotificationTaskUpdated  NotificationType = "TASK_UPDATED"
)

// Notification is one inbox entry for one recipient. Delivery beyond the
// inbox row (chat, push) happens downstream of the published event.
type Notification struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	WorkspaceID string           `json:"workspace_id"`
	TaskID      string           `json:"task_id"`
	CreatedAt   time.Time        `json:"created_at"`
	Read        bool             `json:"read"`
}
