package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"staff-ops/internal/model"
	"staff-ops/internal/render"
	"staff-ops/internal/store"
)

func (b *Bot) handleMyTasks(ctx context.Context, msg *tgbotapi.Message) error {
	userID := strconv.FormatInt(msg.From.ID, 10)
	tasks, err := b.engine.ListAssigned(ctx, b.groupIDFor(msg.Chat), userID)
	if err != nil {
		// Degrade to an empty panel rather than surfacing store trouble.
		log.Printf("[warn] list tasks for %s: %v", userID, err)
		tasks = nil
	}

	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, "📭 No tasks assigned to you.")
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Your tasks</b>\n\n")
	for _, task := range tasks {
		builder.WriteString(taskLine(task))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func taskLine(task model.Task) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("• <code>#%s</code> <b>%s</b>\n", escapeHTML(task.TaskID), escapeHTML(task.Title)))
	b.WriteString(fmt.Sprintf("   🚦 %s · 📊 %d%% · ❗ %s", render.StatusLabel(task.Status), task.Progress, strings.ToUpper(string(task.Priority))))
	if task.DueDate != nil {
		b.WriteString(" · 📅 " + task.DueDate.Format("2006-01-02"))
	}
	b.WriteByte('\n')
	return b.String()
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	requester := strconv.FormatInt(msg.From.ID, 10)
	groupID := b.groupIDFor(msg.Chat)
	if !b.auth.IsManager(ctx, groupID, requester) {
		return b.sendText(msg.Chat.ID, "Only staff managers can trigger the digest.")
	}
	if err := b.engine.SendDueDigests(ctx, groupID); err != nil {
		return b.sendText(msg.Chat.ID, "Couldn't build the digest: "+escapeHTML(err.Error()))
	}
	return b.sendText(msg.Chat.ID, "📨 Digest sent to everyone with open tasks.")
}

func (b *Bot) handleWhois(ctx context.Context, msg *tgbotapi.Message) error {
	var userID string
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		userID = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
	} else {
		arg := strings.TrimSpace(msg.CommandArguments())
		arg = strings.TrimPrefix(arg, "@")
		if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
			return b.sendText(msg.Chat.ID, "Who? /whois <user-id>, or reply to the member.")
		}
		userID = arg
	}

	groupID := b.groupIDFor(msg.Chat)
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🪪 <b>Member</b> %s\n", render.Mention(userID)))

	if b.linking != nil {
		account, err := b.linking.Resolve(ctx, userID, groupID)
		switch {
		case err != nil:
			log.Printf("[warn] linking lookup for %s: %v", userID, err)
			builder.WriteString("🔗 Account lookup is unavailable right now.\n")
		case account.Linked:
			builder.WriteString(fmt.Sprintf("🔗 Linked account: <b>%s</b> (<code>%s</code>)\n", escapeHTML(account.Username), escapeHTML(account.ID)))
		default:
			builder.WriteString("🔗 No linked account.\n")
		}
	}

	if profile, err := b.store.GetProfile(ctx, groupID, userID); err == nil && profile.Timezone != "" {
		builder.WriteString("🕰 Timezone: " + escapeHTML(profile.Timezone) + "\n")
	}

	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleTimezone(ctx context.Context, msg *tgbotapi.Message) error {
	userID := strconv.FormatInt(msg.From.ID, 10)
	groupID := b.groupIDFor(msg.Chat)
	arg := strings.TrimSpace(msg.CommandArguments())

	if arg == "" {
		profile, err := b.store.GetProfile(ctx, groupID, userID)
		if err != nil {
			if errors.Is(err, store.ErrProfileNotFound) {
				return b.sendText(msg.Chat.ID, "No timezone set. Try /timezone Europe/Berlin.")
			}
			return b.sendText(msg.Chat.ID, "Couldn't read your profile right now.")
		}
		if profile.Timezone == "" {
			return b.sendText(msg.Chat.ID, "No timezone set. Try /timezone Europe/Berlin.")
		}
		return b.sendText(msg.Chat.ID, "🕰 Your timezone: "+escapeHTML(profile.Timezone))
	}

	if _, err := time.LoadLocation(arg); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%q is not a known timezone. Use an IANA name like Europe/Berlin.", arg))
	}

	profile := &model.StaffProfile{
		UserID:      userID,
		GroupID:     groupID,
		DisplayName: strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		Timezone:    arg,
	}
	if err := b.store.UpsertProfile(ctx, profile); err != nil {
		return b.sendText(msg.Chat.ID, "Couldn't save your timezone: "+escapeHTML(err.Error()))
	}
	return b.sendText(msg.Chat.ID, "🕰 Timezone saved: "+escapeHTML(arg))
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}
