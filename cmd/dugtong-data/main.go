package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dugtong/common/logger"
	"dugtong/common/mqtt"
	commonredis "dugtong/common/redis"
	"dugtong/internal/chatbot"
	"dugtong/internal/config"
	httpapi "dugtong/internal/http"
	"dugtong/internal/navigation"
	"dugtong/internal/repository"
	"dugtong/internal/service"
	"dugtong/internal/store"

	"go.uber.org/zap"
)

const streamMaxLen = 10000

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	v, err := config.ReadFile(os.Getenv("DUGTONG_CONFIG"))
	if err != nil {
		panic(err)
	}
	cfg := config.LoadWith(v)

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "dugtong-data")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.ValidateServer(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Backend != string(repository.BackendSQL) {
		log.Fatal("dugtong-data serves the sql backend only", zap.String("backend", cfg.Backend))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, closeRepos, err := repository.Open(ctx, repository.Options{
		Backend:  repository.BackendSQL,
		Database: &cfg.Database,
		Migrate:  true,
	}, log)
	if err != nil {
		log.Fatal("Failed to open data backend", zap.Error(err))
	}
	defer closeRepos()

	// 告警广播（可选）；有 redis 时令牌吊销列表也放在 redis
	var broadcasters service.Broadcasters
	var revoked store.KV = store.NewMemoryKV()
	if cfg.RedisEnabled {
		rc := commonredis.NewRedisClient(&cfg.Redis)
		if err := commonredis.Ping(ctx, rc); err != nil {
			log.Warn("Redis unavailable, alert stream disabled", zap.Error(err))
			_ = commonredis.Close(rc)
		} else {
			defer commonredis.Close(rc)
			broadcasters = append(broadcasters,
				service.NewStreamBroadcaster(commonredis.NewStreamPublisher(rc, streamMaxLen), service.AlertStream))
			revoked = store.NewRedisKV(rc, "dugtong:")
		}
	}
	if cfg.MQTTEnabled {
		mc, err := mqtt.NewClient(&cfg.MQTT, log, nil)
		if err != nil {
			log.Warn("MQTT unavailable, alert topic disabled", zap.Error(err))
		} else {
			defer mc.Disconnect()
			broadcasters = append(broadcasters, service.NewMQTTBroadcaster(mc, service.AlertTopic))
		}
	}
	var broadcaster service.Broadcaster
	if len(broadcasters) > 0 {
		broadcaster = broadcasters
	}

	responder, err := chatbot.NewDefaultResponder(chatbot.LLMConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKeys: cfg.LLM.APIKeys,
		Models:  cfg.LLM.Models,
	}, log)
	if err != nil {
		log.Fatal("Failed to build chatbot", zap.Error(err))
	}

	notifications := service.NewNotificationService(repos.Notifications, repos.Preferences, log)
	users := service.NewUserService(repos.Users, repos.Preferences, log)
	auth := service.NewAuthService(repos.Users, service.AuthConfig{
		Secret:     cfg.Auth.Secret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		Revoked:    revoked,
	}, log)

	if err := bootstrapAdmin(ctx, users, log); err != nil {
		log.Fatal("Failed to bootstrap admin account", zap.Error(err))
	}

	router := httpapi.NewRouter(auth, navigation.DefaultPolicy(), log)
	router.RegisterRoutes(httpapi.Services{
		Auth:          auth,
		Donors:        service.NewDonorService(repos.Donors, log),
		Registrations: service.NewRegistrationService(repos.Registrations, notifications, log),
		Users:         users,
		Notifications: notifications,
		Alerts:        service.NewAlertService(repos.Alerts, repos.Donors, notifications, broadcaster, log),
		Reports:       service.NewReportService(repos.Donors, log),
		ChatHistory:   service.NewChatHistoryService(repos.Chat),
		Bot:           responder,
	})

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop server", zap.Error(err))
	}
}

// bootstrapAdmin creates the first admin from BOOTSTRAP_ADMIN_CONTACT / BOOTSTRAP_ADMIN_PASSWORD
// when no account holds that contact yet.
func bootstrapAdmin(ctx context.Context, users service.UserService, log *zap.Logger) error {
	contact := os.Getenv("BOOTSTRAP_ADMIN_CONTACT")
	password := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if contact == "" || password == "" {
		return nil
	}
	_, err := users.FindByContact(ctx, contact)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	u, err := users.Create(ctx, service.CreateUserRequest{
		Role:          "admin",
		FullName:      "Administrator",
		ContactNumber: contact,
		Password:      password,
	})
	if err != nil {
		return err
	}
	log.Info("Bootstrap admin created", zap.String("user_id", u.ID))
	return nil
}
