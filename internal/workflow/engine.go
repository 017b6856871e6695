package workflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"staff-ops/internal/model"
	"staff-ops/internal/render"
	"staff-ops/internal/store"
)

// Engine orchestrates the task lifecycle: creation with multi-surface
// publishing, and control-driven updates with mirror resynchronization.
type Engine struct {
	store     store.TaskStore
	transport Transport
	auth      Authorizer
	// channelID is the configured staff channel; empty means no channel
	// mirror is ever attempted.
	channelID string

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func(groupID string, now time.Time) string
}

func New(st store.TaskStore, tr Transport, auth Authorizer, channelID string) *Engine {
	return &Engine{
		store:     st,
		transport: tr,
		auth:      auth,
		channelID: channelID,
		Now:       time.Now,
		NewID:     model.NewTaskID,
	}
}

// CreateParams are the slash-command parameters of a task assignment.
type CreateParams struct {
	GroupID     string
	RequesterID string
	AssigneeID  string
	Priority    string
	// Due is the raw due-date argument, "" or "2006-01-02".
	Due string
}

// CreateResult reports the outcome of a creation, including every publish
// warning so none is silently dropped.
type CreateResult struct {
	Task     *model.Task
	DMFailed bool
	Warnings []string
}

// CreateTask runs the creation flow: authorize, validate, collect details,
// persist, then publish best-effort to the DM, channel and thread mirrors.
// Mirror failures never abort each other; only the initial persist is fatal.
func (e *Engine) CreateTask(ctx context.Context, p CreateParams, collect DetailCollector) (*CreateResult, error) {
	if !e.auth.IsManager(ctx, p.GroupID, p.RequesterID) {
		return nil, ErrUnauthorized
	}

	if strings.TrimSpace(p.AssigneeID) == "" {
		return nil, validationf("an assignee is required")
	}
	priority := model.PriorityMedium
	if raw := strings.TrimSpace(p.Priority); raw != "" {
		priority = model.Priority(strings.ToLower(raw))
		if !priority.Valid() {
			return nil, validationf("priority must be low, medium or high")
		}
	}
	var due *time.Time
	if raw := strings.TrimSpace(p.Due); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, validationf("due date %q is not a valid date, expected YYYY-MM-DD", raw)
		}
		due = &parsed
	}

	details, err := collect.Collect(ctx, p.RequesterID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(details.Title)
	if title == "" {
		return nil, validationf("a task title is required")
	}

	now := e.Now()
	task := &model.Task{
		TaskID:      e.NewID(p.GroupID, now),
		GroupID:     p.GroupID,
		AssignedBy:  p.RequesterID,
		AssignedTo:  p.AssigneeID,
		Title:       title,
		Description: strings.TrimSpace(details.Description),
		Priority:    priority,
		DueDate:     due,
		Status:      model.StatusAssigned,
		Progress:    0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	result := &CreateResult{Task: task}
	e.publishMirrors(ctx, task, result)
	return result, nil
}

// publishMirrors publishes the three mirrors in order, isolating each
// failure, then patches whichever identifiers were obtained.
func (e *Engine) publishMirrors(ctx context.Context, task *model.Task, result *CreateResult) {
	payload := render.Summary(*task)
	patch := model.TaskPatch{}

	if !attempt(&result.Warnings, "direct message", func() error {
		id, err := e.transport.SendDirect(ctx, task.AssignedTo, payload)
		if err != nil {
			return err
		}
		task.DMMessageID = id
		patch.DMMessageID = &task.DMMessageID
		return nil
	}) {
		result.DMFailed = true
	}

	if e.channelID == "" {
		result.Warnings = append(result.Warnings, "channel post skipped: no staff channel configured")
	} else if attempt(&result.Warnings, "channel post", func() error {
		id, err := e.transport.PostChannel(ctx, e.channelID, payload)
		if err != nil {
			return err
		}
		task.ChannelID = e.channelID
		task.ChannelMessageID = id
		patch.ChannelID = &task.ChannelID
		patch.ChannelMessageID = &task.ChannelMessageID
		return nil
	}) {
		e.publishThread(ctx, task, &patch, result)
	}

	if err := e.store.UpdateTask(ctx, task.TaskID, patch); err != nil {
		// The task and its mirrors already exist; report, don't retract.
		log.Printf("[warn] patch mirror ids for task %s: %v", task.TaskID, err)
		result.Warnings = append(result.Warnings, "mirror references could not be saved")
	}
}

// publishThread runs only when the channel mirror exists. Participant
// additions, the intro line and the mirror edit are each best-effort.
func (e *Engine) publishThread(ctx context.Context, task *model.Task, patch *model.TaskPatch, result *CreateResult) {
	name := fmt.Sprintf("Task #%s — %s", task.TaskID, task.Title)
	if !attempt(&result.Warnings, "thread", func() error {
		id, err := e.transport.CreateThread(ctx, task.ChannelID, task.ChannelMessageID, name)
		if err != nil {
			return err
		}
		task.ThreadID = id
		patch.ThreadID = &task.ThreadID
		return nil
	}) {
		return
	}

	attempt(&result.Warnings, "thread member (assignee)", func() error {
		return e.transport.AddThreadMember(ctx, task.ChannelID, task.ThreadID, task.AssignedTo)
	})
	attempt(&result.Warnings, "thread member (assigner)", func() error {
		return e.transport.AddThreadMember(ctx, task.ChannelID, task.ThreadID, task.AssignedBy)
	})
	attempt(&result.Warnings, "thread intro", func() error {
		intro := fmt.Sprintf("🧵 Discussion for task <code>#%s</code>. Updates land here.", task.TaskID)
		return e.transport.PostThread(ctx, task.ChannelID, task.ThreadID, intro)
	})
	attempt(&result.Warnings, "channel mirror update", func() error {
		return e.transport.EditMessage(ctx, task.ChannelID, task.ChannelMessageID, channelPayload(*task))
	})
}

// Surface identifies a published message.
type Surface struct {
	ChatID    string
	MessageID string
}

// ControlEvent is an inbound control activation, already parsed.
type ControlEvent struct {
	Control render.Control
	ActorID string
	// Origin is the message carrying the activated control.
	Origin Surface
	// Ack answers the interaction; called once authorization has passed,
	// before the mutation.
	Ack func(ctx context.Context) error
}

// HandleControl runs the update flow. The returned notice, when non-empty,
// should be shown to the actor; resync failures on secondary mirrors are
// logged but stay silent.
func (e *Engine) HandleControl(ctx context.Context, ev ControlEvent) (string, error) {
	task, err := e.store.GetTask(ctx, ev.Control.TaskID)
	if err != nil {
		return "", err
	}

	// Only the assignee may move a task.
	if task.AssignedTo != ev.ActorID {
		return "", ErrUnauthorized
	}

	if ev.Ack != nil {
		if err := ev.Ack(ctx); err != nil {
			log.Printf("[warn] ack control for task %s: %v", task.TaskID, err)
		}
	}

	patch, audit, err := controlPatch(ev.Control, task)
	if err != nil {
		return "", err
	}

	if err := e.store.UpdateTask(ctx, task.TaskID, patch); err != nil {
		return "", err
	}

	updated, err := e.store.GetTask(ctx, task.TaskID)
	if err != nil {
		log.Printf("[warn] reload task %s after update: %v", task.TaskID, err)
		return "Saved, but the view couldn't be refreshed.", nil
	}

	notice := e.resyncMirrors(ctx, updated, ev.Origin)
	e.appendAudit(ctx, updated, ev.ActorID, audit)
	return notice, nil
}

// controlPatch maps a control activation to a store patch and an audit line
// describing the before/after values.
func controlPatch(ctrl render.Control, task *model.Task) (model.TaskPatch, string, error) {
	switch ctrl.Kind {
	case render.ControlProgress:
		pct, err := strconv.Atoi(ctrl.Value)
		if err != nil {
			return model.TaskPatch{}, "", validationf("unrecognized progress value %q", ctrl.Value)
		}
		pct = model.ClampProgress(pct)
		audit := fmt.Sprintf("progress %d%% → %d%%", task.Progress, pct)
		return model.TaskPatch{Progress: &pct}, audit, nil
	case render.ControlStatus:
		st := model.Status(ctrl.Value)
		if !st.Valid() {
			return model.TaskPatch{}, "", validationf("unrecognized status %q", ctrl.Value)
		}
		audit := fmt.Sprintf("status %s → %s", render.StatusLabel(task.Status), render.StatusLabel(st))
		return model.TaskPatch{Status: &st}, audit, nil
	default:
		return model.TaskPatch{}, "", validationf("unrecognized control")
	}
}

// resyncMirrors pushes the fresh summary to the origin surface and, silently,
// to the other mirrors. Only the origin failure surfaces to the actor.
func (e *Engine) resyncMirrors(ctx context.Context, task *model.Task, origin Surface) string {
	notice := ""
	if err := e.transport.EditMessage(ctx, origin.ChatID, origin.MessageID, e.surfacePayload(task, origin)); err != nil {
		log.Printf("[warn] refresh origin surface for task %s: %v", task.TaskID, err)
		notice = "Saved, but this message couldn't be refreshed."
	}

	if task.DMMessageID != "" {
		dm := Surface{ChatID: task.AssignedTo, MessageID: task.DMMessageID}
		if dm != origin {
			if err := e.transport.EditMessage(ctx, dm.ChatID, dm.MessageID, render.Summary(*task)); err != nil {
				log.Printf("[warn] refresh dm mirror for task %s: %v", task.TaskID, err)
			}
		}
	}
	if task.ChannelID != "" && task.ChannelMessageID != "" {
		ch := Surface{ChatID: task.ChannelID, MessageID: task.ChannelMessageID}
		if ch != origin {
			if err := e.transport.EditMessage(ctx, ch.ChatID, ch.MessageID, channelPayload(*task)); err != nil {
				log.Printf("[warn] refresh channel mirror for task %s: %v", task.TaskID, err)
			}
		}
	}
	return notice
}

func (e *Engine) appendAudit(ctx context.Context, task *model.Task, actorID, change string) {
	if task.ThreadID == "" || task.ChannelID == "" {
		return
	}
	line := fmt.Sprintf("🔁 %s changed %s", render.Mention(actorID), change)
	if err := e.transport.PostThread(ctx, task.ChannelID, task.ThreadID, line); err != nil {
		log.Printf("[warn] audit line for task %s: %v", task.TaskID, err)
	}
}

// surfacePayload picks the channel variant when the origin is the channel
// mirror, so the thread footer survives edits.
func (e *Engine) surfacePayload(task *model.Task, origin Surface) render.Payload {
	if task.ChannelID != "" && origin.ChatID == task.ChannelID && origin.MessageID == task.ChannelMessageID {
		return channelPayload(*task)
	}
	return render.Summary(*task)
}

// channelPayload is the channel mirror rendering: the summary plus a thread
// pointer once one exists.
func channelPayload(task model.Task) render.Payload {
	p := render.Summary(task)
	if task.ThreadID != "" {
		p.Text += "\n🧵 Discussion in the attached thread."
	}
	return p
}

// ListAssigned returns the tasks assigned to a user within a group.
func (e *Engine) ListAssigned(ctx context.Context, groupID, userID string) ([]model.Task, error) {
	return e.store.ListByAssignee(ctx, groupID, userID)
}

// attempt runs one best-effort step, logging and collecting the failure.
// The asymmetry between surfaced and silent failures is decided at each
// call site, not here.
func attempt(warnings *[]string, what string, fn func() error) bool {
	if err := fn(); err != nil {
		log.Printf("[warn] %s: %v", what, err)
		*warnings = append(*warnings, fmt.Sprintf("%s failed: %v", what, err))
		return false
	}
	return true
}
