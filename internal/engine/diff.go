package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

// Field names used in diffs and audit rows.
const (
	FieldName           = "name"
	FieldDescription    = "description"
	FieldStatus         = "status"
	FieldAssignee       = "assignee_id"
	FieldReviewer       = "reviewer_id"
	FieldService        = "service_id"
	FieldWorkspace      = "workspace_id"
	FieldDueDate        = "due_date"
	FieldPosition       = "position"
	FieldAttachment     = "attachment_id"
	FieldConfidentially = "is_confidential"
	FieldFollowers      = "followers"
)

// UpdateRequest is a partial task mutation. Nil pointers mean the field is
// absent and must never appear in the diff. An empty string on a nullable
// reference clears it.
type UpdateRequest struct {
	Name           *string        `json:"name,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Status         *domain.Status `json:"status,omitempty"`
	AssigneeID     *string        `json:"assignee_id,omitempty"`
	ReviewerID     *string        `json:"reviewer_id,omitempty"`
	ServiceID      *string        `json:"service_id,omitempty"`
	WorkspaceID    *string        `json:"workspace_id,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Position       *float64       `json:"position,omitempty"`
	AttachmentID   *string        `json:"attachment_id,omitempty"`
	IsConfidential *bool          `json:"is_confidential,omitempty"`
	Followers      *[]string      `json:"followers,omitempty"`
}

// Change is one detected field difference. Old and New carry the raw
// normalized values; the history recorder resolves references to display
// names before persisting.
type Change struct {
	Field string
	Old   string
	New   string
}

// detectChanges compares the current task against the fields present in the
// request. Output order is fixed so repeated diffs of the same update are
// identical. Absent fields never appear.
func detectChanges(task *domain.Task, req UpdateRequest) []Change {
	var changes []Change
	add := func(field, oldV, newV string) {
		if oldV != newV {
			changes = append(changes, Change{Field: field, Old: oldV, New: newV})
		}
	}

	if req.Name != nil {
		add(FieldName, norm(task.Name), norm(*req.Name))
	}
	if req.Description != nil {
		add(FieldDescription, norm(task.Description), norm(*req.Description))
	}
	if req.Status != nil {
		add(FieldStatus, string(task.Status), string(*req.Status))
	}
	if req.AssigneeID != nil {
		add(FieldAssignee, normPtr(task.AssigneeID), norm(*req.AssigneeID))
	}
	if req.ReviewerID != nil {
		add(FieldReviewer, normPtr(task.ReviewerID), norm(*req.ReviewerID))
	}
	if req.ServiceID != nil {
		add(FieldService, norm(task.ServiceID), norm(*req.ServiceID))
	}
	if req.WorkspaceID != nil {
		add(FieldWorkspace, norm(task.WorkspaceID), norm(*req.WorkspaceID))
	}
	if req.DueDate != nil {
		add(FieldDueDate, normDay(task.DueDate), normDay(*req.DueDate))
	}
	if req.Position != nil {
		add(FieldPosition, normFloat(task.Position), normFloat(*req.Position))
	}
	if req.AttachmentID != nil {
		add(FieldAttachment, normPtr(task.AttachmentID), norm(*req.AttachmentID))
	}
	if req.IsConfidential != nil {
		add(FieldConfidentially, strconv.FormatBool(task.IsConfidential), strconv.FormatBool(*req.IsConfidential))
	}
	if req.Followers != nil {
		add(FieldFollowers, normSet(task.Followers), normSet(*req.Followers))
	}
	return changes
}

// norm treats empty strings as absent values.
func norm(s string) string { return strings.TrimSpace(s) }

func normPtr(s *string) string {
	if s == nil {
		return ""
	}
	return norm(*s)
}

// normDay compares dates at calendar-day granularity.
func normDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func normFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// normSet compares follower lists as order-independent sets.
func normSet(ids []string) string {
	uniq := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = norm(id); id != "" {
			uniq[id] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
