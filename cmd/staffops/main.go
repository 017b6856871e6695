package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"staff-ops/internal/bot"
	"staff-ops/internal/config"
	"staff-ops/internal/health"
	"staff-ops/internal/linking"
	"staff-ops/internal/schedule"
	"staff-ops/internal/store"
	"staff-ops/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	taskStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("bot api: %v", err)
	}
	log.Printf("[info] authorized on account %s", api.Self.UserName)

	channelID := ""
	if cfg.StaffChatID != 0 {
		channelID = strconv.FormatInt(cfg.StaffChatID, 10)
	}

	transport := bot.NewTelegram(api)
	auth := bot.NewAuthorizer(api, cfg.StaffChatID, cfg.ManagerIDs)
	engine := workflow.New(taskStore, transport, auth, channelID)

	var linkClient *linking.Client
	if cfg.LinkingBaseURL != "" {
		linkClient = linking.New(cfg.LinkingBaseURL)
	}

	staffBot := bot.New(api, engine, taskStore, linkClient, auth, &cfg)

	scheduler := schedule.New(time.Local)
	if cfg.DigestInterval > 0 && channelID != "" {
		if _, err := scheduler.Interval(cfg.DigestInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := engine.SendDueDigests(jobCtx, channelID); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("digest: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule digest: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	healthSrv := health.NewServer(cfg.HTTPAddr)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("health server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = healthSrv.Shutdown(shutdownCtx)
	}()

	log.Println("Staff ops bot started.")
	if err := staffBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}

func openStore(ctx context.Context, cfg config.Config) (store.TaskStore, error) {
	if cfg.StoreBackend == config.BackendSQLite {
		return store.OpenSQL(cfg.DatabaseURL)
	}
	return store.NewDynamoStore(ctx, store.DynamoConfig{
		Region:        cfg.AWSRegion,
		TasksTable:    cfg.TasksTable,
		ProfilesTable: cfg.ProfilesTable,
		Endpoint:      cfg.DynamoEndpoint,
	})
}
