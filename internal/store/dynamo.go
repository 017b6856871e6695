package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"staff-ops/internal/model"
)

// DynamoConfig holds the connection settings for the production backend.
type DynamoConfig struct {
	Region        string
	TasksTable    string
	ProfilesTable string
	// Endpoint overrides the AWS endpoint (local DynamoDB). Empty = default.
	Endpoint string
}

// DynamoStore keeps tasks and profiles in DynamoDB. Tasks are keyed by
// task_id; profiles by a group#user composite key.
type DynamoStore struct {
	db            *dynamodb.Client
	tasksTable    string
	profilesTable string
}

func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	if cfg.TasksTable == "" {
		return nil, fmt.Errorf("dynamo tasks table is required")
	}
	if cfg.ProfilesTable == "" {
		cfg.ProfilesTable = cfg.TasksTable + "-profiles"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &DynamoStore{
		db:            client,
		tasksTable:    cfg.TasksTable,
		profilesTable: cfg.ProfilesTable,
	}, nil
}

// taskItem is the wire shape of a task. Progress travels as text and is
// parsed back to an integer on read, so the representation never drifts
// between writers.
type taskItem struct {
	TaskID           string `dynamodbav:"task_id"`
	GroupID          string `dynamodbav:"group_id"`
	AssignedBy       string `dynamodbav:"assigned_by"`
	AssignedTo       string `dynamodbav:"assigned_to"`
	Title            string `dynamodbav:"title"`
	Description      string `dynamodbav:"description"`
	Priority         string `dynamodbav:"priority"`
	DueDate          string `dynamodbav:"due_date"`
	Status           string `dynamodbav:"status"`
	Progress         string `dynamodbav:"progress"`
	DMMessageID      string `dynamodbav:"dm_message_id"`
	ChannelMessageID string `dynamodbav:"channel_message_id"`
	ChannelID        string `dynamodbav:"channel_id"`
	ThreadID         string `dynamodbav:"thread_id"`
	CreatedAt        int64  `dynamodbav:"created_at"`
	UpdatedAt        int64  `dynamodbav:"updated_at"`
}

func toTaskItem(t *model.Task) taskItem {
	due := ""
	if t.DueDate != nil {
		due = t.DueDate.UTC().Format(time.RFC3339)
	}
	return taskItem{
		TaskID:           t.TaskID,
		GroupID:          t.GroupID,
		AssignedBy:       t.AssignedBy,
		AssignedTo:       t.AssignedTo,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         string(t.Priority),
		DueDate:          due,
		Status:           string(t.Status),
		Progress:         strconv.Itoa(t.Progress),
		DMMessageID:      t.DMMessageID,
		ChannelMessageID: t.ChannelMessageID,
		ChannelID:        t.ChannelID,
		ThreadID:         t.ThreadID,
		CreatedAt:        t.CreatedAt.UnixMilli(),
		UpdatedAt:        t.UpdatedAt.UnixMilli(),
	}
}

func (s *DynamoStore) CreateTask(ctx context.Context, task *model.Task) error {
	item, err := attributevalue.MarshalMap(toTaskItem(task))
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tasksTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(task_id)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrTaskExists
		}
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tasksTable),
		Key: map[string]types.AttributeValue{
			"task_id": &types.AttributeValueMemberS{Value: taskID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if out.Item == nil {
		return nil, ErrTaskNotFound
	}

	task := decodeTask(out.Item)
	return &task, nil
}

func (s *DynamoStore) UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) error {
	sets := []string{"updated_at = :u"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":u": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return fmt.Errorf("invalid status %q", *patch.Status)
		}
		sets = append(sets, "#st = :st")
		names["#st"] = "status"
		values[":st"] = &types.AttributeValueMemberS{Value: string(*patch.Status)}
	}
	if patch.Progress != nil {
		p := model.ClampProgress(*patch.Progress)
		sets = append(sets, "progress = :p")
		values[":p"] = &types.AttributeValueMemberS{Value: strconv.Itoa(p)}
	}
	stringPatches := []struct {
		attr  string
		value *string
	}{
		{"dm_message_id", patch.DMMessageID},
		{"channel_message_id", patch.ChannelMessageID},
		{"channel_id", patch.ChannelID},
		{"thread_id", patch.ThreadID},
	}
	for i, sp := range stringPatches {
		if sp.value == nil {
			continue
		}
		ph := fmt.Sprintf(":m%d", i)
		sets = append(sets, sp.attr+" = "+ph)
		values[ph] = &types.AttributeValueMemberS{Value: *sp.value}
	}

	expr := "SET " + sets[0]
	for _, s := range sets[1:] {
		expr += ", " + s
	}

	in := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tasksTable),
		Key: map[string]types.AttributeValue{
			"task_id": &types.AttributeValueMemberS{Value: taskID},
		},
		ConditionExpression:       aws.String("attribute_exists(task_id)"),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	if _, err := s.db.UpdateItem(ctx, in); err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *DynamoStore) ListByAssignee(ctx context.Context, groupID, userID string) ([]model.Task, error) {
	return s.scanTasks(ctx, "group_id = :g AND assigned_to = :a", map[string]types.AttributeValue{
		":g": &types.AttributeValueMemberS{Value: groupID},
		":a": &types.AttributeValueMemberS{Value: userID},
	}, nil)
}

func (s *DynamoStore) ListOpen(ctx context.Context, groupID string) ([]model.Task, error) {
	return s.scanTasks(ctx, "group_id = :g AND #st <> :done", map[string]types.AttributeValue{
		":g":    &types.AttributeValueMemberS{Value: groupID},
		":done": &types.AttributeValueMemberS{Value: string(model.StatusDone)},
	}, map[string]string{"#st": "status"})
}

func (s *DynamoStore) scanTasks(ctx context.Context, filter string, values map[string]types.AttributeValue, names map[string]string) ([]model.Task, error) {
	in := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tasksTable),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}

	var tasks []model.Task
	for {
		out, err := s.db.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan tasks: %w", err)
		}
		for _, item := range out.Items {
			// One bad record never fails the whole list.
			tasks = append(tasks, decodeTask(item))
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return tasks, nil
}

type profileItem struct {
	ProfileID   string `dynamodbav:"profile_id"`
	UserID      string `dynamodbav:"user_id"`
	GroupID     string `dynamodbav:"group_id"`
	DisplayName string `dynamodbav:"display_name"`
	Timezone    string `dynamodbav:"timezone"`
	CreatedAt   int64  `dynamodbav:"created_at"`
	UpdatedAt   int64  `dynamodbav:"updated_at"`
}

func profileKey(groupID, userID string) string {
	return groupID + "#" + userID
}

func (s *DynamoStore) UpsertProfile(ctx context.Context, p *model.StaffProfile) error {
	now := time.Now()
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	item, err := attributevalue.MarshalMap(profileItem{
		ProfileID:   profileKey(p.GroupID, p.UserID),
		UserID:      p.UserID,
		GroupID:     p.GroupID,
		DisplayName: p.DisplayName,
		Timezone:    p.Timezone,
		CreatedAt:   created.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.profilesTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func (s *DynamoStore) GetProfile(ctx context.Context, groupID, userID string) (*model.StaffProfile, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.profilesTable),
		Key: map[string]types.AttributeValue{
			"profile_id": &types.AttributeValueMemberS{Value: profileKey(groupID, userID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if out.Item == nil {
		return nil, ErrProfileNotFound
	}

	return &model.StaffProfile{
		UserID:      attrString(out.Item, "user_id"),
		GroupID:     attrString(out.Item, "group_id"),
		DisplayName: attrString(out.Item, "display_name"),
		Timezone:    attrString(out.Item, "timezone"),
		CreatedAt:   time.UnixMilli(attrInt64(out.Item, "created_at")),
		UpdatedAt:   time.UnixMilli(attrInt64(out.Item, "updated_at")),
	}, nil
}
