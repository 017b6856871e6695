package render

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"staff-ops/internal/model"
)

// progressSteps are the only values the progress selector offers.
var progressSteps = []int{0, 25, 50, 75, 100}

const noDueDate = "Not set"
const noDescription = "No description provided."

// Payload is a rendered message: HTML text plus optional controls.
type Payload struct {
	Text     string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

// Summary maps a task to its presentational payload. Pure: the same record
// always renders the same payload.
func Summary(task model.Task) Payload {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📌 <b>%s</b>  <code>#%s</code>\n", escape(task.Title), escape(task.TaskID)))

	desc := strings.TrimSpace(task.Description)
	if desc == "" {
		desc = noDescription
	}
	b.WriteString(fmt.Sprintf("%s\n\n", escape(desc)))

	b.WriteString(fmt.Sprintf("👤 <b>Assignee:</b> %s\n", Mention(task.AssignedTo)))
	b.WriteString(fmt.Sprintf("🧑‍💼 <b>Assigned by:</b> %s\n", Mention(task.AssignedBy)))
	b.WriteString(fmt.Sprintf("❗ <b>Priority:</b> %s\n", strings.ToUpper(string(task.Priority))))
	b.WriteString(fmt.Sprintf("🚦 <b>Status:</b> %s\n", StatusLabel(task.Status)))
	b.WriteString(fmt.Sprintf("📊 <b>Progress:</b> %d%%\n", task.Progress))
	b.WriteString(fmt.Sprintf("📅 <b>Due:</b> %s", dueLabel(task)))

	kb := controlsKeyboard(task.TaskID)
	return Payload{Text: b.String(), Keyboard: &kb}
}

func controlsKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	var progressRow []tgbotapi.InlineKeyboardButton
	for _, pct := range progressSteps {
		progressRow = append(progressRow, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d%%", pct), ProgressControl(taskID, pct)))
	}

	var statusRow []tgbotapi.InlineKeyboardButton
	for _, st := range model.Statuses {
		statusRow = append(statusRow, tgbotapi.NewInlineKeyboardButtonData(
			StatusLabel(st), StatusControl(taskID, st)))
	}

	return tgbotapi.NewInlineKeyboardMarkup(progressRow, statusRow)
}

func dueLabel(task model.Task) string {
	if task.DueDate == nil {
		return noDueDate
	}
	return task.DueDate.Format("2006-01-02")
}

// StatusLabel renders a status for display, separators replaced by spaces.
func StatusLabel(st model.Status) string {
	return strings.ReplaceAll(string(st), "_", " ")
}

// Mention links a user id so chat clients render a profile link.
func Mention(userID string) string {
	if userID == "" {
		return "—"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, escape(userID), escape(userID))
}

// Text builds a plain payload with no controls attached.
func Text(text string) Payload {
	return Payload{Text: text}
}

func escape(s string) string {
	return html.EscapeString(s)
}
