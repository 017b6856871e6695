package render

import (
	"strconv"
	"strings"

	"staff-ops/internal/model"
)

const (
	controlNamespace = "task"
	kindProgress     = "progress"
	kindStatus       = "status"
)

type ControlKind int

const (
	// ControlOther covers callback data owned by unrelated panels.
	ControlOther ControlKind = iota
	ControlProgress
	ControlStatus
)

// Control is the parsed form of a button's callback data.
type Control struct {
	Kind   ControlKind
	TaskID string
	// Value is the selected option: a percentage for progress controls, a
	// status name for status controls.
	Value string
}

// ProgressControl encodes the callback data for a progress option.
func ProgressControl(taskID string, pct int) string {
	return strings.Join([]string{controlNamespace, kindProgress, taskID, strconv.Itoa(pct)}, ":")
}

// StatusControl encodes the callback data for a status option.
func StatusControl(taskID string, st model.Status) string {
	return strings.Join([]string{controlNamespace, kindStatus, taskID, string(st)}, ":")
}

// ParseControl is the single place callback data is taken apart. Anything
// that is not a task control comes back as ControlOther.
func ParseControl(data string) Control {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != controlNamespace || parts[2] == "" {
		return Control{Kind: ControlOther}
	}
	switch parts[1] {
	case kindProgress:
		return Control{Kind: ControlProgress, TaskID: parts[2], Value: parts[3]}
	case kindStatus:
		return Control{Kind: ControlStatus, TaskID: parts[2], Value: parts[3]}
	default:
		return Control{Kind: ControlOther}
	}
}
