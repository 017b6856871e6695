package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendDynamo = "dynamo"
	BackendSQLite = "sqlite"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken string
	// StaffChatID is the shared channel mirror target; 0 disables it.
	StaffChatID int64
	// ManagerIDs is the allow-list of users who may assign tasks, in
	// addition to staff-chat administrators.
	ManagerIDs []int64
	// FormTimeout bounds the title/description follow-up form.
	FormTimeout time.Duration

	StoreBackend   string
	DatabaseURL    string
	AWSRegion      string
	TasksTable     string
	ProfilesTable  string
	DynamoEndpoint string

	LinkingBaseURL string
	DigestInterval time.Duration
	HTTPAddr       string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		StaffChatID:    parseID(os.Getenv("STAFF_CHAT_ID")),
		ManagerIDs:     parseIDList(os.Getenv("MANAGER_IDS")),
		FormTimeout:    parseSeconds(os.Getenv("FORM_TIMEOUT_SECONDS"), 120*time.Second),
		StoreBackend:   strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND"))),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AWSRegion:      strings.TrimSpace(os.Getenv("AWS_REGION")),
		TasksTable:     strings.TrimSpace(os.Getenv("DYNAMO_TASKS_TABLE")),
		ProfilesTable:  strings.TrimSpace(os.Getenv("DYNAMO_PROFILES_TABLE")),
		DynamoEndpoint: strings.TrimSpace(os.Getenv("DYNAMO_ENDPOINT")),
		LinkingBaseURL: strings.TrimSpace(os.Getenv("LINKING_BASE_URL")),
		DigestInterval: parseHours(os.Getenv("DIGEST_INTERVAL_HOURS")),
		HTTPAddr:       strings.TrimSpace(os.Getenv("HTTP_ADDR")),
	}

	if cfg.StoreBackend == "" {
		cfg.StoreBackend = BackendDynamo
	}
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "us-east-1"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "staff_ops.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	switch cfg.StoreBackend {
	case BackendDynamo:
		if cfg.TasksTable == "" {
			return cfg, fmt.Errorf("DYNAMO_TASKS_TABLE is required with the dynamo backend")
		}
	case BackendSQLite:
	default:
		return cfg, fmt.Errorf("STORE_BACKEND must be %q or %q", BackendDynamo, BackendSQLite)
	}

	return cfg, nil
}

func parseID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		if id := parseID(part); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseSeconds(raw string, def time.Duration) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func parseHours(raw string) time.Duration {
	hours, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || hours <= 0 {
		return 0
	}
	return time.Duration(hours) * time.Hour
}
