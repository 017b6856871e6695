package workflow

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"time"

	"staff-ops/internal/model"
	"staff-ops/internal/render"
)

// SendDueDigests DMs every assignee with open tasks a summary of their
// workload. Per-user failures are logged and skipped.
func (e *Engine) SendDueDigests(ctx context.Context, groupID string) error {
	tasks, err := e.store.ListOpen(ctx, groupID)
	if err != nil {
		return err
	}

	byAssignee := make(map[string][]model.Task)
	for _, task := range tasks {
		byAssignee[task.AssignedTo] = append(byAssignee[task.AssignedTo], task)
	}

	now := e.Now()
	for assignee, assigned := range byAssignee {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text := BuildDigest(assigned, now)
		if _, err := e.transport.SendDirect(ctx, assignee, render.Text(text)); err != nil {
			log.Printf("[warn] send digest to %s: %v", assignee, err)
		}
	}
	return nil
}

// BuildDigest renders a per-assignee summary of open tasks. Pure.
func BuildDigest(tasks []model.Task, now time.Time) string {
	sorted := make([]model.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		switch {
		case sorted[i].DueDate == nil && sorted[j].DueDate == nil:
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		case sorted[i].DueDate == nil:
			return false
		case sorted[j].DueDate == nil:
			return true
		default:
			return sorted[i].DueDate.Before(*sorted[j].DueDate)
		}
	})

	var b strings.Builder
	b.WriteString("🗒 <b>Your open tasks</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	if len(sorted) == 0 {
		b.WriteString("— nothing open, enjoy the quiet\n")
		return strings.TrimSpace(b.String())
	}

	for _, task := range sorted {
		b.WriteString(digestLine(task, now))
	}
	return strings.TrimSpace(b.String())
}

func digestLine(task model.Task, now time.Time) string {
	icon := "🟢"
	if task.DueDate != nil {
		switch {
		case now.After(*task.DueDate):
			icon = "⚠️"
		case task.DueDate.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b> <code>#%s</code>\n", icon, html.EscapeString(strings.TrimSpace(task.Title)), html.EscapeString(task.TaskID)))
	b.WriteString(fmt.Sprintf("   🚦 %s · 📊 %d%%", render.StatusLabel(task.Status), task.Progress))
	if task.DueDate != nil {
		if now.After(*task.DueDate) {
			b.WriteString(fmt.Sprintf(" · ⏰ %s, <b>overdue</b>", task.DueDate.Format("2006-01-02")))
		} else {
			b.WriteString(fmt.Sprintf(" · ⏰ %s", task.DueDate.Format("2006-01-02")))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
