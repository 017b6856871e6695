package model

import (
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a task. Transitions are free: any
// authorized update may set any value, and "done" is not terminal.
type Status string

const (
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// Statuses lists the valid states in display order.
var Statuses = []Status{StatusAssigned, StatusInProgress, StatusBlocked, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// ParseStatus normalizes a raw value; unknown values fall back to "assigned".
func ParseStatus(raw string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	return StatusAssigned
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority normalizes a raw value; unknown values fall back to "medium".
func ParsePriority(raw string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if p.Valid() {
		return p
	}
	return PriorityMedium
}

// Task is the central record of the assignment subsystem. Mirror pointers
// record where the rendered summary has been published; each is optional and
// may legitimately stay empty when a publish attempt failed.
type Task struct {
	TaskID      string
	GroupID     string
	AssignedBy  string
	AssignedTo  string
	Title       string
	Description string
	Priority    Priority
	DueDate     *time.Time
	Status      Status
	Progress    int

	DMMessageID      string
	ChannelMessageID string
	ChannelID        string
	ThreadID         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Status           *Status
	Progress         *int
	DMMessageID      *string
	ChannelMessageID *string
	ChannelID        *string
	ThreadID         *string
}

// ClampProgress keeps progress inside [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// NewTaskID builds a short id from the group scope and the current time
// (base-36 millis). Uniqueness is enforced by the store on insert.
func NewTaskID(groupID string, now time.Time) string {
	scope := strings.TrimPrefix(strings.TrimSpace(groupID), "-")
	if len(scope) > 4 {
		scope = scope[len(scope)-4:]
	}
	if scope == "" {
		scope = "0"
	}
	return scope + "-" + strconv.FormatInt(now.UnixMilli(), 36)
}
