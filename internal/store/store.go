package store

import (
	"context"
	"errors"

	"staff-ops/internal/model"
)

var (
	ErrTaskExists      = errors.New("task already exists")
	ErrTaskNotFound    = errors.New("task not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// TaskStore is the durable record of tasks and staff profiles. The store is
// the single source of truth; callers keep no caches. Reads coerce malformed
// records to nearest-valid defaults instead of failing.
type TaskStore interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	// UpdateTask merges the patch and always stamps UpdatedAt.
	UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) error
	ListByAssignee(ctx context.Context, groupID, userID string) ([]model.Task, error)
	// ListOpen returns every task in the group whose status is not done.
	ListOpen(ctx context.Context, groupID string) ([]model.Task, error)

	UpsertProfile(ctx context.Context, profile *model.StaffProfile) error
	GetProfile(ctx context.Context, groupID, userID string) (*model.StaffProfile, error)
}
