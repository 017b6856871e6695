package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"staff-ops/internal/config"
	"staff-ops/internal/linking"
	"staff-ops/internal/render"
	"staff-ops/internal/store"
	"staff-ops/internal/workflow"
)

// Bot aggregates the Telegram API with the workflow engine and routes
// inbound updates to it.
type Bot struct {
	api     *tgbotapi.BotAPI
	engine  *workflow.Engine
	store   store.TaskStore
	linking *linking.Client
	auth    *Authorizer
	config  *config.Config

	mu    sync.Mutex
	forms map[int64]chan string
}

func New(api *tgbotapi.BotAPI, engine *workflow.Engine, st store.TaskStore, link *linking.Client, auth *Authorizer, cfg *config.Config) *Bot {
	return &Bot{
		api:     api,
		engine:  engine,
		store:   st,
		linking: link,
		auth:    auth,
		config:  cfg,
		forms:   make(map[int64]chan string),
	}
}

// Start begins polling updates until ctx is cancelled. Every interaction is
// handled on its own goroutine; the only shared state is the store.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			cb := update.CallbackQuery
			b.handleAsync(chatOf(cb.Message), func() error {
				return b.handleCallback(ctx, cb)
			})
		case update.Message != nil:
			msg := update.Message
			b.handleAsync(msg.Chat.ID, func() error {
				return b.handleMessage(ctx, msg)
			})
		}
	}

	return nil
}

// handleAsync runs a handler on its own goroutine with a last-resort catch:
// no error or panic may kill the update loop or pass silently.
func (b *Bot) handleAsync(chatID int64, fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[error] handler panic: %v", r)
				if chatID != 0 {
					b.sendText(chatID, "Something went wrong. Please try again.")
				}
			}
		}()
		if err := fn(); err != nil {
			log.Printf("[error] handler: %v", err)
			if chatID != 0 {
				b.sendText(chatID, "Something went wrong. Please try again.")
			}
		}
	}()
}

func chatOf(msg *tgbotapi.Message) int64 {
	if msg == nil || msg.Chat == nil {
		return 0
	}
	return msg.Chat.ID
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	// Plain text feeds a pending detail form, if any.
	if b.deliverFormInput(msg.From.ID, msg.Text) {
		return nil
	}

	if msg.Chat.IsPrivate() {
		return b.sendText(msg.Chat.ID, "I didn't catch that. Try /help for the list of commands.")
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg)
	case "help":
		return b.handleHelp(msg)
	case "assign":
		return b.handleAssign(ctx, msg)
	case "mytasks":
		return b.handleMyTasks(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "whois":
		return b.handleWhois(ctx, msg)
	case "timezone":
		return b.handleTimezone(ctx, msg)
	case "cancel":
		if b.deliverFormInput(msg.From.ID, cancelInput) {
			return nil
		}
		return b.sendText(msg.Chat.ID, "Nothing to cancel.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I keep track of staff task assignments.</b>\n\nCommands:\n"+
			"• /assign — assign a task to a member (managers only)\n"+
			"• /mytasks — list tasks assigned to you\n"+
			"• /whois — look up a member's linked account\n"+
			"• /timezone — set your timezone\n"+
			"• /digest — send everyone their open-task digest (managers only)\n"+
			"• /help — usage details",
		escapeHTML(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Usage</b>\n" +
		"• /assign &lt;user-id&gt; &lt;low|medium|high&gt; [YYYY-MM-DD] — or reply to the member with /assign &lt;priority&gt; [due]. I'll ask for the title and description next.\n" +
		"• /mytasks — your open and finished tasks\n" +
		"• /whois &lt;user-id&gt; — linked account lookup (or reply to the member)\n" +
		"• /timezone &lt;IANA name&gt; — e.g. /timezone Europe/Berlin\n" +
		"• /digest — DM every assignee their open tasks\n" +
		"• /cancel — abort the current task form\n\n" +
		"Use the buttons under a task card to set its progress or status; only the assignee can."
	return b.sendText(msg.Chat.ID, text)
}

// handleAssign parses the command parameters and runs the creation flow.
// Title and description are collected through the follow-up form.
func (b *Bot) handleAssign(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())

	var assigneeID string
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		assigneeID = strconv.FormatInt(msg.ReplyToMessage.From.ID, 10)
	} else {
		if len(args) == 0 {
			return b.sendText(msg.Chat.ID, "Tell me who: /assign <user-id> <priority> [due], or reply to the member.")
		}
		raw := strings.TrimPrefix(args[0], "@")
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return b.sendText(msg.Chat.ID, "I need a numeric user id, or reply to the member with /assign.")
		}
		assigneeID = raw
		args = args[1:]
	}

	params := workflow.CreateParams{
		GroupID:     b.groupIDFor(msg.Chat),
		RequesterID: strconv.FormatInt(msg.From.ID, 10),
		AssigneeID:  assigneeID,
	}
	if len(args) > 0 {
		params.Priority = args[0]
	}
	if len(args) > 1 {
		params.Due = args[1]
	}

	result, err := b.engine.CreateTask(ctx, params, b.collector(msg.Chat.ID))
	if err != nil {
		return b.sendText(msg.Chat.ID, createFailureText(err))
	}

	log.Printf("[info] task created id=%s assignee=%s by=%s", result.Task.TaskID, result.Task.AssignedTo, result.Task.AssignedBy)

	var report strings.Builder
	report.WriteString(fmt.Sprintf("✅ Task <code>#%s</code> assigned to %s.", escapeHTML(result.Task.TaskID), render.Mention(result.Task.AssignedTo)))
	if result.DMFailed {
		report.WriteString("\n⚠️ The assignee couldn't be reached by direct message.")
	}
	for _, w := range result.Warnings {
		report.WriteString("\n⚠️ " + escapeHTML(w))
	}
	return b.sendText(msg.Chat.ID, report.String())
}

func createFailureText(err error) string {
	var ve *workflow.ValidationError
	switch {
	case errors.Is(err, workflow.ErrUnauthorized):
		return "Only staff managers can assign tasks."
	case errors.Is(err, workflow.ErrFormTimeout):
		return "⌛ Timed out waiting for the task details. Nothing was created."
	case errors.Is(err, workflow.ErrFormCancelled):
		return "⏪ Task creation cancelled. Nothing was created."
	case errors.As(err, &ve):
		return "🚫 " + escapeHTML(ve.Msg)
	default:
		return "Couldn't create the task: " + escapeHTML(err.Error())
	}
}

// handleCallback routes control activations to the engine; anything outside
// the task namespace belongs to other panels and is just acknowledged.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil {
		return nil
	}

	ctrl := render.ParseControl(cb.Data)
	if ctrl.Kind == render.ControlOther {
		b.ackCallback(cb.ID, "")
		return nil
	}

	log.Printf("[info] control from %d: %s", cb.From.ID, cb.Data)

	ev := workflow.ControlEvent{
		Control: ctrl,
		ActorID: strconv.FormatInt(cb.From.ID, 10),
		Origin: workflow.Surface{
			ChatID:    strconv.FormatInt(cb.Message.Chat.ID, 10),
			MessageID: strconv.Itoa(cb.Message.MessageID),
		},
		Ack: func(context.Context) error {
			return b.ackCallback(cb.ID, "")
		},
	}

	notice, err := b.engine.HandleControl(ctx, ev)
	if err != nil {
		var ve *workflow.ValidationError
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			b.ackCallback(cb.ID, "Task not found.")
		case errors.Is(err, workflow.ErrUnauthorized):
			b.ackCallback(cb.ID, "Only the assignee can update this task.")
		case errors.As(err, &ve):
			b.ackCallback(cb.ID, ve.Msg)
		default:
			b.ackCallback(cb.ID, "Update failed. Please try again.")
			return err
		}
		return nil
	}

	if notice != "" {
		return b.sendText(cb.Message.Chat.ID, notice)
	}
	return nil
}

func (b *Bot) ackCallback(id, text string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(id, text))
	if err != nil {
		log.Printf("[warn] callback ack: %v", err)
	}
	return err
}

// groupIDFor scopes records: group chats scope to themselves, private chats
// to the configured staff chat.
func (b *Bot) groupIDFor(chat *tgbotapi.Chat) string {
	if chat != nil && !chat.IsPrivate() {
		return strconv.FormatInt(chat.ID, 10)
	}
	if b.config.StaffChatID != 0 {
		return strconv.FormatInt(b.config.StaffChatID, 10)
	}
	if chat != nil {
		return strconv.FormatInt(chat.ID, 10)
	}
	return "0"
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}
