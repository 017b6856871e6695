package store

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"staff-ops/internal/model"
)

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func TestDecodeTaskCoercesProgress(t *testing.T) {
	cases := []struct {
		name string
		attr types.AttributeValue
		want int
	}{
		{name: "stored as text", attr: s("50"), want: 50},
		{name: "stored as number", attr: n("75"), want: 75},
		{name: "garbage", attr: s("half done"), want: 0},
		{name: "negative clamps", attr: s("-10"), want: 0},
		{name: "overflow clamps", attr: s("250"), want: 100},
		{name: "boolean", attr: &types.AttributeValueMemberBOOL{Value: true}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := map[string]types.AttributeValue{"progress": tc.attr}
			if got := decodeTask(item).Progress; got != tc.want {
				t.Fatalf("progress = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDecodeTaskMissingProgress(t *testing.T) {
	task := decodeTask(map[string]types.AttributeValue{"task_id": s("t1")})
	if task.Progress != 0 {
		t.Fatalf("progress = %d, want 0", task.Progress)
	}
}

func TestDecodeTaskCoercesStatusAndPriority(t *testing.T) {
	item := map[string]types.AttributeValue{
		"status":   s("archived"),
		"priority": s("urgent"),
	}
	task := decodeTask(item)
	if task.Status != model.StatusAssigned {
		t.Fatalf("unknown status must fall back to assigned, got %q", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Fatalf("unknown priority must fall back to medium, got %q", task.Priority)
	}
}

func TestDecodeTaskDueDate(t *testing.T) {
	due := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	item := map[string]types.AttributeValue{"due_date": s(due.Format(time.RFC3339))}
	task := decodeTask(item)
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Fatalf("due date = %v, want %v", task.DueDate, due)
	}

	task = decodeTask(map[string]types.AttributeValue{"due_date": s("next friday")})
	if task.DueDate != nil {
		t.Fatalf("malformed due date must decode as unset, got %v", task.DueDate)
	}
}

func TestDecodeTaskTimestamps(t *testing.T) {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	item := map[string]types.AttributeValue{
		"created_at": n("1717243200000"),
	}
	task := decodeTask(item)
	if !task.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", task.CreatedAt, created)
	}
}

func TestDecodeTaskFullItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"task_id":            s("g1-abc"),
		"group_id":           s("g1"),
		"assigned_by":        s("100"),
		"assigned_to":        s("200"),
		"title":              s("Ship the rota"),
		"description":        s("Rotate the weekend shifts"),
		"priority":           s("high"),
		"status":             s("in_progress"),
		"progress":           s("50"),
		"dm_message_id":      s("10"),
		"channel_message_id": s("11"),
		"channel_id":         s("chan1"),
		"thread_id":          s("12"),
	}
	task := decodeTask(item)
	if task.TaskID != "g1-abc" || task.AssignedTo != "200" {
		t.Fatalf("identity fields wrong: %+v", task)
	}
	if task.Status != model.StatusInProgress || task.Priority != model.PriorityHigh || task.Progress != 50 {
		t.Fatalf("lifecycle fields wrong: %+v", task)
	}
	if task.ThreadID != "12" || task.ChannelID != "chan1" {
		t.Fatalf("mirror fields wrong: %+v", task)
	}
}
