package workflow_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"staff-ops/internal/model"
	"staff-ops/internal/render"
	"staff-ops/internal/store"
	"staff-ops/internal/workflow"
)

type fakeStore struct {
	tasks    map[string]model.Task
	profiles map[string]model.StaffProfile

	failCreate   bool
	failUpdate   bool
	failList     bool
	failGetAfter int
	gets         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    make(map[string]model.Task),
		profiles: make(map[string]model.StaffProfile),
	}
}

func (s *fakeStore) CreateTask(_ context.Context, task *model.Task) error {
	if s.failCreate {
		return errors.New("store down")
	}
	if _, ok := s.tasks[task.TaskID]; ok {
		return store.ErrTaskExists
	}
	s.tasks[task.TaskID] = *task
	return nil
}

func (s *fakeStore) GetTask(_ context.Context, taskID string) (*model.Task, error) {
	s.gets++
	if s.failGetAfter > 0 && s.gets >= s.failGetAfter {
		return nil, errors.New("store down")
	}
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := task
	return &copied, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, taskID string, patch model.TaskPatch) error {
	if s.failUpdate {
		return errors.New("store down")
	}
	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return errors.New("invalid status")
		}
		task.Status = *patch.Status
	}
	if patch.Progress != nil {
		task.Progress = model.ClampProgress(*patch.Progress)
	}
	if patch.DMMessageID != nil {
		task.DMMessageID = *patch.DMMessageID
	}
	if patch.ChannelMessageID != nil {
		task.ChannelMessageID = *patch.ChannelMessageID
	}
	if patch.ChannelID != nil {
		task.ChannelID = *patch.ChannelID
	}
	if patch.ThreadID != nil {
		task.ThreadID = *patch.ThreadID
	}
	task.UpdatedAt = time.Now()
	s.tasks[taskID] = task
	return nil
}

func (s *fakeStore) ListByAssignee(_ context.Context, groupID, userID string) ([]model.Task, error) {
	if s.failList {
		return nil, errors.New("store down")
	}
	tasks := []model.Task{}
	for _, task := range s.tasks {
		if task.GroupID == groupID && task.AssignedTo == userID {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (s *fakeStore) ListOpen(_ context.Context, groupID string) ([]model.Task, error) {
	if s.failList {
		return nil, errors.New("store down")
	}
	tasks := []model.Task{}
	for _, task := range s.tasks {
		if task.GroupID == groupID && task.Status != model.StatusDone {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (s *fakeStore) UpsertProfile(_ context.Context, p *model.StaffProfile) error {
	s.profiles[p.GroupID+"#"+p.UserID] = *p
	return nil
}

func (s *fakeStore) GetProfile(_ context.Context, groupID, userID string) (*model.StaffProfile, error) {
	p, ok := s.profiles[groupID+"#"+userID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	copied := p
	return &copied, nil
}

type sent struct {
	target string
	text   string
}

type fakeTransport struct {
	failDM      bool
	failChannel bool
	failThread  bool
	failEdits   map[string]bool

	nextID      int
	dms         []sent
	channelMsgs []sent
	threads     []string
	threadPosts []sent
	members     []string
	edits       []sent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failEdits: make(map[string]bool)}
}

func (f *fakeTransport) id() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakeTransport) SendDirect(_ context.Context, userID string, p render.Payload) (string, error) {
	if f.failDM {
		return "", errors.New("dm unreachable")
	}
	f.dms = append(f.dms, sent{target: userID, text: p.Text})
	return f.id(), nil
}

func (f *fakeTransport) PostChannel(_ context.Context, channelID string, p render.Payload) (string, error) {
	if f.failChannel {
		return "", errors.New("channel unreachable")
	}
	f.channelMsgs = append(f.channelMsgs, sent{target: channelID, text: p.Text})
	return f.id(), nil
}

func (f *fakeTransport) CreateThread(_ context.Context, channelID, anchorMessageID, name string) (string, error) {
	if f.failThread {
		return "", errors.New("thread refused")
	}
	id := f.id()
	f.threads = append(f.threads, id)
	return id, nil
}

func (f *fakeTransport) AddThreadMember(_ context.Context, channelID, threadID, userID string) error {
	f.members = append(f.members, userID)
	return nil
}

func (f *fakeTransport) PostThread(_ context.Context, channelID, threadID, text string) error {
	f.threadPosts = append(f.threadPosts, sent{target: channelID + "/" + threadID, text: text})
	return nil
}

func (f *fakeTransport) EditMessage(_ context.Context, chatID, messageID string, p render.Payload) error {
	key := chatID + "/" + messageID
	if f.failEdits[key] {
		return errors.New("edit refused")
	}
	f.edits = append(f.edits, sent{target: key, text: p.Text})
	return nil
}

type fakeAuth struct {
	allowed map[string]bool
}

func (a fakeAuth) IsManager(_ context.Context, _, userID string) bool {
	return a.allowed[userID]
}

type collectorFunc func(ctx context.Context, requesterID string) (workflow.Details, error)

func (f collectorFunc) Collect(ctx context.Context, requesterID string) (workflow.Details, error) {
	return f(ctx, requesterID)
}

func staticDetails(title, description string) workflow.DetailCollector {
	return collectorFunc(func(context.Context, string) (workflow.Details, error) {
		return workflow.Details{Title: title, Description: description}, nil
	})
}

type testEnv struct {
	Store     *fakeStore
	Transport *fakeTransport
	Engine    *workflow.Engine
	Ctx       context.Context
}

func newTestEnv(t *testing.T, channelID string, managers ...string) testEnv {
	t.Helper()
	st := newFakeStore()
	tr := newFakeTransport()
	allowed := make(map[string]bool)
	for _, m := range managers {
		allowed[m] = true
	}
	eng := workflow.New(st, tr, fakeAuth{allowed: allowed}, channelID)
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Store: st, Transport: tr, Engine: eng, Ctx: context.Background()}
}

func validParams() workflow.CreateParams {
	return workflow.CreateParams{
		GroupID:     "g1",
		RequesterID: "boss",
		AssigneeID:  "u1",
		Priority:    "high",
		Due:         "2025-01-01",
	}
}

func TestCreateTaskHappyPath(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")

	result, err := env.Engine.CreateTask(env.Ctx, validParams(), staticDetails("Ship the rota", "New rotation plan"))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	task := result.Task
	if task.TaskID == "" {
		t.Fatal("expected a generated task id")
	}
	if task.Status != model.StatusAssigned {
		t.Fatalf("status = %q, want assigned", task.Status)
	}
	if task.Progress != 0 {
		t.Fatalf("progress = %d, want 0", task.Progress)
	}
	if task.Priority != model.PriorityHigh {
		t.Fatalf("priority = %q, want high", task.Priority)
	}
	if task.DueDate == nil || task.DueDate.Format("2006-01-02") != "2025-01-01" {
		t.Fatalf("due date = %v, want 2025-01-01", task.DueDate)
	}
	if result.DMFailed || len(result.Warnings) != 0 {
		t.Fatalf("unexpected failures: dm=%v warnings=%v", result.DMFailed, result.Warnings)
	}

	if len(env.Transport.dms) != 1 || env.Transport.dms[0].target != "u1" {
		t.Fatalf("dm mirror not published: %+v", env.Transport.dms)
	}
	if len(env.Transport.channelMsgs) != 1 || env.Transport.channelMsgs[0].target != "chan1" {
		t.Fatalf("channel mirror not published: %+v", env.Transport.channelMsgs)
	}
	if len(env.Transport.threads) != 1 {
		t.Fatalf("thread not created: %+v", env.Transport.threads)
	}
	if len(env.Transport.members) != 2 {
		t.Fatalf("expected assignee and assigner in thread, got %v", env.Transport.members)
	}

	stored := env.Store.tasks[task.TaskID]
	if stored.DMMessageID == "" || stored.ChannelMessageID == "" || stored.ChannelID != "chan1" || stored.ThreadID == "" {
		t.Fatalf("mirror ids not patched: %+v", stored)
	}
}

func TestCreateTaskInvalidDue(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")

	params := validParams()
	params.Due = "01/02/2025"
	_, err := env.Engine.CreateTask(env.Ctx, params, staticDetails("x", ""))

	var ve *workflow.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(env.Store.tasks) != 0 {
		t.Fatal("no task should be created on validation failure")
	}
	if len(env.Transport.dms)+len(env.Transport.channelMsgs) != 0 {
		t.Fatal("nothing should be published on validation failure")
	}
}

func TestCreateTaskInvalidPriority(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")

	params := validParams()
	params.Priority = "urgent"
	_, err := env.Engine.CreateTask(env.Ctx, params, staticDetails("x", ""))

	var ve *workflow.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateTaskUnauthorized(t *testing.T) {
	env := newTestEnv(t, "chan1") // nobody is a manager
	collected := false
	collector := collectorFunc(func(context.Context, string) (workflow.Details, error) {
		collected = true
		return workflow.Details{Title: "x"}, nil
	})

	_, err := env.Engine.CreateTask(env.Ctx, validParams(), collector)
	if !errors.Is(err, workflow.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if collected {
		t.Fatal("form must not run for unauthorized requesters")
	}
	if len(env.Store.tasks) != 0 {
		t.Fatal("no side effects expected")
	}
}

func TestCreateTaskFormTimeout(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")
	collector := collectorFunc(func(context.Context, string) (workflow.Details, error) {
		return workflow.Details{}, workflow.ErrFormTimeout
	})

	_, err := env.Engine.CreateTask(env.Ctx, validParams(), collector)
	if !errors.Is(err, workflow.ErrFormTimeout) {
		t.Fatalf("expected ErrFormTimeout, got %v", err)
	}
	if len(env.Store.tasks) != 0 {
		t.Fatal("no task should exist after a timed-out form")
	}
}

func TestCreateTaskPersistFailureAborts(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")
	env.Store.failCreate = true

	_, err := env.Engine.CreateTask(env.Ctx, validParams(), staticDetails("x", ""))
	if err == nil {
		t.Fatal("expected persist failure to abort")
	}
	if len(env.Transport.dms)+len(env.Transport.channelMsgs) != 0 {
		t.Fatal("no mirror may be published when persistence fails")
	}
}

func TestCreateTaskWithoutChannel(t *testing.T) {
	env := newTestEnv(t, "", "boss")

	result, err := env.Engine.CreateTask(env.Ctx, validParams(), staticDetails("x", ""))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if len(env.Transport.dms) != 1 {
		t.Fatal("dm mirror should still publish")
	}
	if len(env.Transport.channelMsgs) != 0 || len(env.Transport.threads) != 0 {
		t.Fatal("no channel or thread without a configured channel")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("skipping the channel must be reported as a warning")
	}
	if result.Task.ChannelMessageID != "" || result.Task.ThreadID != "" {
		t.Fatal("channel mirror ids must stay empty")
	}
}

func TestCreateTaskDMFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")
	env.Transport.failDM = true

	result, err := env.Engine.CreateTask(env.Ctx, validParams(), staticDetails("x", ""))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if !result.DMFailed {
		t.Fatal("dm failure must be reported")
	}
	if len(env.Transport.channelMsgs) != 1 || len(env.Transport.threads) != 1 {
		t.Fatal("channel and thread mirrors must proceed despite the dm failure")
	}
	if result.Task.DMMessageID != "" {
		t.Fatal("dm mirror id must stay empty")
	}
}

func TestCreateTaskChannelFailureSkipsThread(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")
	env.Transport.failChannel = true

	result, err := env.Engine.CreateTask(env.Ctx, validParams(), staticDetails("x", ""))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if len(env.Transport.threads) != 0 {
		t.Fatal("thread must not be attempted without a channel mirror")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("channel failure must be reported as a warning")
	}
	if len(env.Transport.dms) != 1 {
		t.Fatal("dm mirror must be unaffected")
	}
}

func TestCreateTaskThreadFailureKeepsChannel(t *testing.T) {
	env := newTestEnv(t, "chan1", "boss")
	env.Transport.failThread = true

	result, err := env.Engine.CreateTask(env.Ctx, validParams(), staticDetails("x", ""))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if result.Task.ChannelMessageID == "" {
		t.Fatal("channel mirror should exist")
	}
	if result.Task.ThreadID != "" {
		t.Fatal("thread id must stay empty when creation fails")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("thread failure must be reported as a warning")
	}
}

func seedTask(env testEnv, task model.Task) model.Task {
	if task.TaskID == "" {
		task.TaskID = "g1-t1"
	}
	if task.GroupID == "" {
		task.GroupID = "g1"
	}
	if task.Status == "" {
		task.Status = model.StatusAssigned
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	task.CreatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	task.UpdatedAt = task.CreatedAt
	env.Store.tasks[task.TaskID] = task
	return task
}

func progressEvent(task model.Task, actor string, pct int, acked *bool) workflow.ControlEvent {
	return workflow.ControlEvent{
		Control: render.ParseControl(render.ProgressControl(task.TaskID, pct)),
		ActorID: actor,
		Origin:  workflow.Surface{ChatID: actor, MessageID: task.DMMessageID},
		Ack: func(context.Context) error {
			if acked != nil {
				*acked = true
			}
			return nil
		},
	}
}

func TestHandleControlProgress(t *testing.T) {
	env := newTestEnv(t, "chan1")
	task := seedTask(env, model.Task{
		AssignedTo:       "u1",
		AssignedBy:       "boss",
		DMMessageID:      "10",
		ChannelID:        "chan1",
		ChannelMessageID: "11",
		ThreadID:         "12",
	})

	acked := false
	notice, err := env.Engine.HandleControl(env.Ctx, progressEvent(task, "u1", 50, &acked))
	if err != nil {
		t.Fatalf("handle control: %v", err)
	}
	if notice != "" {
		t.Fatalf("unexpected notice %q", notice)
	}
	if !acked {
		t.Fatal("interaction must be acknowledged")
	}

	stored := env.Store.tasks[task.TaskID]
	if stored.Progress != 50 {
		t.Fatalf("progress = %d, want 50", stored.Progress)
	}
	if stored.Status != model.StatusAssigned {
		t.Fatalf("status must be unchanged, got %q", stored.Status)
	}
	if !stored.UpdatedAt.After(task.UpdatedAt) {
		t.Fatal("updated_at must advance")
	}

	// Origin (the DM here) plus the channel mirror are refreshed.
	if len(env.Transport.edits) != 2 {
		t.Fatalf("expected 2 edits, got %+v", env.Transport.edits)
	}
	if len(env.Transport.threadPosts) != 1 || !strings.Contains(env.Transport.threadPosts[0].text, "0% → 50%") {
		t.Fatalf("audit line missing: %+v", env.Transport.threadPosts)
	}
}

func TestHandleControlStatus(t *testing.T) {
	env := newTestEnv(t, "chan1")
	task := seedTask(env, model.Task{AssignedTo: "u1", Progress: 75, DMMessageID: "10"})

	ev := workflow.ControlEvent{
		Control: render.ParseControl(render.StatusControl(task.TaskID, model.StatusBlocked)),
		ActorID: "u1",
		Origin:  workflow.Surface{ChatID: "u1", MessageID: "10"},
	}
	if _, err := env.Engine.HandleControl(env.Ctx, ev); err != nil {
		t.Fatalf("handle control: %v", err)
	}

	stored := env.Store.tasks[task.TaskID]
	if stored.Status != model.StatusBlocked {
		t.Fatalf("status = %q, want blocked", stored.Status)
	}
	if stored.Progress != 75 {
		t.Fatalf("progress must be unchanged, got %d", stored.Progress)
	}
}

func TestHandleControlRejectsNonAssignee(t *testing.T) {
	env := newTestEnv(t, "chan1")
	task := seedTask(env, model.Task{AssignedTo: "u1", DMMessageID: "10"})

	acked := false
	_, err := env.Engine.HandleControl(env.Ctx, progressEvent(task, "u2", 50, &acked))
	if !errors.Is(err, workflow.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if acked {
		t.Fatal("rejected activations are not acknowledged by the engine")
	}
	if env.Store.tasks[task.TaskID].Progress != 0 {
		t.Fatal("store must be unmodified")
	}
}

func TestHandleControlUnknownTask(t *testing.T) {
	env := newTestEnv(t, "chan1")
	ev := workflow.ControlEvent{
		Control: render.ParseControl(render.ProgressControl("missing", 25)),
		ActorID: "u1",
	}
	_, err := env.Engine.HandleControl(env.Ctx, ev)
	if !errors.Is(err, store.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestHandleControlWithoutChannelMirror(t *testing.T) {
	env := newTestEnv(t, "chan1")
	task := seedTask(env, model.Task{AssignedTo: "u1", DMMessageID: "10"})

	notice, err := env.Engine.HandleControl(env.Ctx, progressEvent(task, "u1", 25, nil))
	if err != nil {
		t.Fatalf("update with a null channel mirror must not fail: %v", err)
	}
	if notice != "" {
		t.Fatalf("unexpected notice %q", notice)
	}
	if env.Store.tasks[task.TaskID].Progress != 25 {
		t.Fatal("progress must be stored")
	}
	if len(env.Transport.edits) != 1 {
		t.Fatalf("only the origin surface should be refreshed, got %+v", env.Transport.edits)
	}
}

func TestHandleControlReloadFailureDegrades(t *testing.T) {
	env := newTestEnv(t, "chan1")
	task := seedTask(env, model.Task{AssignedTo: "u1", DMMessageID: "10"})
	env.Store.failGetAfter = 2 // first load succeeds, reload fails

	notice, err := env.Engine.HandleControl(env.Ctx, progressEvent(task, "u1", 50, nil))
	if err != nil {
		t.Fatalf("reload failure must degrade, not error: %v", err)
	}
	if notice == "" {
		t.Fatal("degraded refresh must be reported")
	}
	if env.Store.tasks[task.TaskID].Progress != 50 {
		t.Fatal("the mutation itself must have been applied")
	}
	if len(env.Transport.edits) != 0 {
		t.Fatal("no resync without a reloaded record")
	}
}

func TestHandleControlOriginEditFailureIsVisible(t *testing.T) {
	env := newTestEnv(t, "chan1")
	task := seedTask(env, model.Task{AssignedTo: "u1", DMMessageID: "10"})
	env.Transport.failEdits["u1/10"] = true

	notice, err := env.Engine.HandleControl(env.Ctx, progressEvent(task, "u1", 50, nil))
	if err != nil {
		t.Fatalf("handle control: %v", err)
	}
	if notice == "" {
		t.Fatal("a failed origin refresh must surface a notice")
	}
}

func TestListAssignedEmpty(t *testing.T) {
	env := newTestEnv(t, "chan1")
	tasks, err := env.Engine.ListAssigned(env.Ctx, "g1", "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty list, got %d", len(tasks))
	}
}
