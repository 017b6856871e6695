package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"staff-ops/internal/workflow"
)

// cancelInput is the sentinel the /cancel command feeds into an open form.
const cancelInput = "/cancel"

// formCollector runs the title/description follow-up form in a chat. It
// blocks the assigning handler's goroutine until the requester answers, the
// wait window elapses, or the form is cancelled.
type formCollector struct {
	bot    *Bot
	chatID int64
}

func (b *Bot) collector(chatID int64) workflow.DetailCollector {
	return formCollector{bot: b, chatID: chatID}
}

func (c formCollector) Collect(ctx context.Context, requesterID string) (workflow.Details, error) {
	uid, err := strconv.ParseInt(requesterID, 10, 64)
	if err != nil {
		return workflow.Details{}, err
	}

	ch := c.bot.openForm(uid)
	defer c.bot.closeForm(uid)

	if err := c.bot.sendText(c.chatID, "🆕 <b>Step 1/2:</b> what's the task title? (/cancel to abort)"); err != nil {
		return workflow.Details{}, err
	}
	title, err := c.await(ctx, ch)
	if err != nil {
		return workflow.Details{}, err
	}

	if err := c.bot.sendText(c.chatID, "✏️ <b>Step 2/2:</b> add a short description (send <code>-</code> to skip)."); err != nil {
		return workflow.Details{}, err
	}
	description, err := c.await(ctx, ch)
	if err != nil {
		return workflow.Details{}, err
	}
	if description == "-" {
		description = ""
	}

	return workflow.Details{Title: title, Description: description}, nil
}

func (c formCollector) await(ctx context.Context, ch <-chan string) (string, error) {
	select {
	case text := <-ch:
		text = strings.TrimSpace(text)
		if text == cancelInput {
			return "", workflow.ErrFormCancelled
		}
		return text, nil
	case <-time.After(c.bot.config.FormTimeout):
		return "", workflow.ErrFormTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// openForm registers a pending form for the user, replacing a stale one.
func (b *Bot) openForm(userID int64) chan string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan string, 1)
	b.forms[userID] = ch
	return ch
}

func (b *Bot) closeForm(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.forms, userID)
}

// deliverFormInput feeds text into the user's pending form, if any.
func (b *Bot) deliverFormInput(userID int64, text string) bool {
	b.mu.Lock()
	ch, ok := b.forms[userID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- text:
	default:
		// The collector isn't waiting; drop rather than block the loop.
	}
	return true
}
