package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"staff-ops/internal/model"
)

// sqlTask mirrors the document shape on SQLite for local runs. Progress is a
// text column on purpose, matching the document backend's coercion policy.
type sqlTask struct {
	TaskID           string `gorm:"primaryKey"`
	GroupID          string `gorm:"index"`
	AssignedTo       string `gorm:"index"`
	AssignedBy       string
	Title            string
	Description      string
	Priority         string
	DueDate          *time.Time
	Status           string
	Progress         string
	DMMessageID      string
	ChannelMessageID string
	ChannelID        string
	ThreadID         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type sqlProfile struct {
	ProfileID   string `gorm:"primaryKey"`
	UserID      string `gorm:"index"`
	GroupID     string `gorm:"index"`
	DisplayName string
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SQLStore is the SQLite-backed TaskStore used for local development.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL opens a SQLite database and runs migrations.
func OpenSQL(dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = "staff_ops.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&sqlTask{}, &sqlProfile{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// ensureDirForSQLite creates the parent dir for the SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

func (s *SQLStore) CreateTask(ctx context.Context, task *model.Task) error {
	row := toSQLTask(task)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrTaskExists
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *SQLStore) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var row sqlTask
	err := s.db.WithContext(ctx).Where("task_id = ?", taskID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	task := fromSQLTask(row)
	return &task, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return fmt.Errorf("invalid status %q", *patch.Status)
		}
		updates["status"] = string(*patch.Status)
	}
	if patch.Progress != nil {
		updates["progress"] = strconv.Itoa(model.ClampProgress(*patch.Progress))
	}
	if patch.DMMessageID != nil {
		updates["dm_message_id"] = *patch.DMMessageID
	}
	if patch.ChannelMessageID != nil {
		updates["channel_message_id"] = *patch.ChannelMessageID
	}
	if patch.ChannelID != nil {
		updates["channel_id"] = *patch.ChannelID
	}
	if patch.ThreadID != nil {
		updates["thread_id"] = *patch.ThreadID
	}

	res := s.db.WithContext(ctx).Model(&sqlTask{}).Where("task_id = ?", taskID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLStore) ListByAssignee(ctx context.Context, groupID, userID string) ([]model.Task, error) {
	var rows []sqlTask
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND assigned_to = ?", groupID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return fromSQLTasks(rows), nil
}

func (s *SQLStore) ListOpen(ctx context.Context, groupID string) ([]model.Task, error) {
	var rows []sqlTask
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND status <> ?", groupID, string(model.StatusDone)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	return fromSQLTasks(rows), nil
}

func (s *SQLStore) UpsertProfile(ctx context.Context, p *model.StaffProfile) error {
	now := time.Now()
	row := sqlProfile{
		ProfileID:   profileKey(p.GroupID, p.UserID),
		UserID:      p.UserID,
		GroupID:     p.GroupID,
		DisplayName: p.DisplayName,
		Timezone:    p.Timezone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	db := s.db.WithContext(ctx)
	var existing sqlProfile
	err := db.Where("profile_id = ?", row.ProfileID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"display_name": row.DisplayName,
			"timezone":     row.Timezone,
			"updated_at":   now,
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find profile: %w", err)
	}
}

func (s *SQLStore) GetProfile(ctx context.Context, groupID, userID string) (*model.StaffProfile, error) {
	var row sqlProfile
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileKey(groupID, userID)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &model.StaffProfile{
		UserID:      row.UserID,
		GroupID:     row.GroupID,
		DisplayName: row.DisplayName,
		Timezone:    row.Timezone,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func toSQLTask(t *model.Task) sqlTask {
	return sqlTask{
		TaskID:           t.TaskID,
		GroupID:          t.GroupID,
		AssignedTo:       t.AssignedTo,
		AssignedBy:       t.AssignedBy,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         string(t.Priority),
		DueDate:          t.DueDate,
		Status:           string(t.Status),
		Progress:         strconv.Itoa(t.Progress),
		DMMessageID:      t.DMMessageID,
		ChannelMessageID: t.ChannelMessageID,
		ChannelID:        t.ChannelID,
		ThreadID:         t.ThreadID,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func fromSQLTask(row sqlTask) model.Task {
	progress, err := strconv.Atoi(row.Progress)
	if err != nil {
		progress = 0
	}
	return model.Task{
		TaskID:           row.TaskID,
		GroupID:          row.GroupID,
		AssignedTo:       row.AssignedTo,
		AssignedBy:       row.AssignedBy,
		Title:            row.Title,
		Description:      row.Description,
		Priority:         model.ParsePriority(row.Priority),
		DueDate:          row.DueDate,
		Status:           model.ParseStatus(row.Status),
		Progress:         model.ClampProgress(progress),
		DMMessageID:      row.DMMessageID,
		ChannelMessageID: row.ChannelMessageID,
		ChannelID:        row.ChannelID,
		ThreadID:         row.ThreadID,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func fromSQLTasks(rows []sqlTask) []model.Task {
	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, fromSQLTask(row))
	}
	return tasks
}
