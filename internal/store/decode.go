package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"staff-ops/internal/model"
)

// decodeTask turns a raw item into a fully-typed task, coercing every field
// individually. Missing or malformed attributes become nearest-valid
// defaults; a corrupt record reads the same as an empty one.
func decodeTask(item map[string]types.AttributeValue) model.Task {
	t := model.Task{
		TaskID:           attrString(item, "task_id"),
		GroupID:          attrString(item, "group_id"),
		AssignedBy:       attrString(item, "assigned_by"),
		AssignedTo:       attrString(item, "assigned_to"),
		Title:            attrString(item, "title"),
		Description:      attrString(item, "description"),
		Priority:         model.ParsePriority(attrString(item, "priority")),
		Status:           model.ParseStatus(attrString(item, "status")),
		Progress:         model.ClampProgress(attrInt(item, "progress")),
		DMMessageID:      attrString(item, "dm_message_id"),
		ChannelMessageID: attrString(item, "channel_message_id"),
		ChannelID:        attrString(item, "channel_id"),
		ThreadID:         attrString(item, "thread_id"),
		CreatedAt:        time.UnixMilli(attrInt64(item, "created_at")),
		UpdatedAt:        time.UnixMilli(attrInt64(item, "updated_at")),
	}

	if raw := attrString(item, "due_date"); raw != "" {
		if due, err := time.Parse(time.RFC3339, raw); err == nil {
			t.DueDate = &due
		}
	}
	return t
}

// attrString reads an attribute as text, accepting S, N and BOOL members.
func attrString(item map[string]types.AttributeValue, name string) string {
	switch v := item[name].(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value)
	default:
		return ""
	}
}

// attrInt parses a numeric attribute, defaulting to 0 on any parse failure.
func attrInt(item map[string]types.AttributeValue, name string) int {
	n, err := strconv.Atoi(attrString(item, name))
	if err != nil {
		return 0
	}
	return n
}

func attrInt64(item map[string]types.AttributeValue, name string) int64 {
	n, err := strconv.ParseInt(attrString(item, name), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
