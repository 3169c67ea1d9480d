package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"juraganbot/internal/infrastructure"
	"juraganbot/internal/interfaces"
	httpiface "juraganbot/internal/interfaces/http"
	"juraganbot/internal/repository"
	"juraganbot/internal/usecases"
	"juraganbot/pkg/logger"
)

func main() {
	// Load .env file (optional, env vars may come from the platform)
	_ = godotenv.Load()

	if err := logger.Init("logs/bot.log"); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := loadEnv()
	if err != nil {
		logger.Error("Startup configuration invalid", zap.Error(err))
		os.Exit(1)
	}

	// Optional Postgres backend. Without it the bot still answers but
	// analytics become no-ops and config comes from the local file only.
	var (
		analyticsSink interfaces.AnalyticsSink
		profiles      interfaces.ProfileStore
		analyticsRepo *repository.AnalyticsRepository
		configRepo    *repository.ConfigRepository
		pg            *infrastructure.PostgresClient
	)
	if cfg.DatabaseURL != "" {
		pg, err = infrastructure.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			os.Exit(1)
		}
		defer pg.Pool.Close()

		analyticsRepo = repository.NewAnalyticsRepository(pg.Pool)
		analyticsSink = analyticsRepo
		profiles = analyticsRepo
		configRepo = repository.NewConfigRepository(pg.Pool)
		logger.Info("Analytics storage connected")
	} else {
		noop := repository.NewNoopAnalytics()
		analyticsSink = noop
		profiles = noop
		logger.Warn("DATABASE_URL not set, analytics disabled")
	}

	configProvider := usecases.NewConfigProvider(remoteOrNil(configRepo), "messages.json")
	if err := configProvider.Load(); err != nil {
		logger.Error("No usable bot configuration", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Bot configuration loaded", zap.String("source", configProvider.Source()))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configRepo != nil {
		go configProvider.Watch(rootCtx)
	}

	waClient := infrastructure.NewWhatsAppBusinessClient(cfg.WAToken, cfg.PhoneID)
	cache := infrastructure.NewMessageCache(1000, 500)
	limiter := infrastructure.NewRateLimiter(5 * time.Second)
	defer limiter.Stop()

	messageService := usecases.NewMessageService(
		waClient, analyticsSink, profiles, configProvider,
		cache, limiter, cfg.AdminNumber,
	)

	var authUsecase *usecases.AuthUsecase
	if pg != nil {
		userRepo := repository.NewUserRepository(pg.Pool)
		authUsecase = usecases.NewAuthUsecase(userRepo, cfg.JWTSecret)
		if cfg.AdminUser != "" && cfg.AdminPass != "" {
			if err := authUsecase.EnsureAdmin(cfg.AdminUser, cfg.AdminPass); err != nil {
				logger.Error("Failed to provision admin user", zap.Error(err))
			}
		}
	}

	handler := httpiface.NewHandler(
		messageService, configProvider, authUsecase,
		waClient, analyticsRepo, configWriterOrNil(configRepo),
		cache, limiter,
		cfg.VerifyToken, cfg.AppSecret,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.SetupRoutes(router, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server stopped unexpectedly", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

type envConfig struct {
	WAToken     string
	PhoneID     string
	VerifyToken string
	AdminNumber string
	Port        string
	DatabaseURL string
	AppSecret   string
	JWTSecret   string
	AdminUser   string
	AdminPass   string
}

func loadEnv() (envConfig, error) {
	cfg := envConfig{
		WAToken:     os.Getenv("WA_TOKEN"),
		PhoneID:     os.Getenv("PHONE_ID"),
		VerifyToken: os.Getenv("VERIFY_TOKEN"),
		AdminNumber: os.Getenv("ADMIN_NUMBER"),
		Port:        os.Getenv("PORT"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AppSecret:   os.Getenv("APP_SECRET"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		AdminUser:   os.Getenv("BOT_ADMIN_USER"),
		AdminPass:   os.Getenv("BOT_ADMIN_PASS"),
	}

	missing := []string{}
	for _, pair := range []struct{ name, value string }{
		{"WA_TOKEN", cfg.WAToken},
		{"PHONE_ID", cfg.PhoneID},
		{"VERIFY_TOKEN", cfg.VerifyToken},
		{"ADMIN_NUMBER", cfg.AdminNumber},
	} {
		if pair.value == "" {
			missing = append(missing, pair.name)
		}
	}
	if len(missing) > 0 {
		return cfg, &missingEnvError{names: missing}
	}

	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = cfg.VerifyToken // admin API disabled in practice without a real secret
	}
	return cfg, nil
}

type missingEnvError struct {
	names []string
}

func (e *missingEnvError) Error() string {
	msg := "missing required environment variables:"
	for _, n := range e.names {
		msg += " " + n
	}
	return msg
}

func remoteOrNil(repo *repository.ConfigRepository) usecases.RemoteConfigStore {
	if repo == nil {
		return nil
	}
	return repo
}

func configWriterOrNil(repo *repository.ConfigRepository) httpiface.ConfigWriter {
	if repo == nil {
		return nil
	}
	return repo
}
