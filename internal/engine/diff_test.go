package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3dhorse/task-management-system-sub000/internal/domain"
)

func baseTask() *domain.Task {
	return &domain.Task{
		Name:        "quarterly report",
		Status:      domain.StatusTodo,
		WorkspaceID: "ws1",
		ServiceID:   "svc1",
		DueDate:     time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC),
		Followers:   []string{"creator", "bob"},
	}
}

func TestDetectChanges_AbsentFieldsNeverAppear(t *testing.T) {
	changes := detectChanges(baseTask(), UpdateRequest{})
	assert.Empty(t, changes)
}

func TestDetectChanges_SameValuesProduceNothing(t *testing.T) {
	task := baseTask()
	sameDay := time.Date(2026, 3, 17, 23, 59, 0, 0, time.UTC)
	changes := detectChanges(task, UpdateRequest{
		Name:      strPtr("quarterly report"),
		DueDate:   &sameDay,
		Followers: &[]string{"bob", "creator", "bob"},
	})
	assert.Empty(t, changes, "day-equal dates and reordered follower sets are no change")
}

func TestDetectChanges_NilAndEmptyAreEquivalent(t *testing.T) {
	task := baseTask() // AssigneeID nil
	changes := detectChanges(task, UpdateRequest{AssigneeID: strPtr("")})
	assert.Empty(t, changes)
}

func TestDetectChanges_ClearingNullableField(t *testing.T) {
	task := baseTask()
	task.AssigneeID = strPtr("bob")
	changes := detectChanges(task, UpdateRequest{AssigneeID: strPtr("")})
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Field: FieldAssignee, Old: "bob", New: ""}, changes[0])
}

func TestDetectChanges_DueDateDayGranularity(t *testing.T) {
	task := baseTask()
	nextDay := time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)
	changes := detectChanges(task, UpdateRequest{DueDate: &nextDay})
	require.Len(t, changes, 1)
	assert.Equal(t, "2026-03-17", changes[0].Old)
	assert.Equal(t, "2026-03-18", changes[0].New)
}

func TestDetectChanges_FixedOrder(t *testing.T) {
	task := baseTask()
	inProgress := domain.StatusInProgress
	first := detectChanges(task, UpdateRequest{
		Name:       strPtr("renamed"),
		Status:     &inProgress,
		AssigneeID: strPtr("bob"),
	})
	second := detectChanges(task, UpdateRequest{
		AssigneeID: strPtr("bob"),
		Status:     &inProgress,
		Name:       strPtr("renamed"),
	})
	require.Equal(t, first, second, "diff order does not depend on request construction")
	assert.Equal(t, []string{FieldName, FieldStatus, FieldAssignee}, []string{
		first[0].Field, first[1].Field, first[2].Field,
	})
}

func TestDetectChanges_FollowersAsSet(t *testing.T) {
	task := baseTask()
	changes := detectChanges(task, UpdateRequest{Followers: &[]string{"creator", "bob", "dana"}})
	require.Len(t, changes, 1)
	assert.Equal(t, FieldFollowers, changes[0].Field)
	assert.Equal(t, "bob,creator", changes[0].Old)
	assert.Equal(t, "bob,creator,dana", changes[0].New)
}

func TestDetectChanges_ConfidentialityFlag(t *testing.T) {
	task := baseTask()
	confidential := true
	changes := detectChanges(task, UpdateRequest{IsConfidential: &confidential})
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Field: FieldConfidentially, Old: "false", New: "true"}, changes[0])
}
