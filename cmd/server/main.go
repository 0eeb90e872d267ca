package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"probable/internal/analytics"
	"probable/internal/auth"
	cacheredis "probable/internal/cache/redis"
	"probable/internal/chat"
	"probable/internal/config"
	cronrunner "probable/internal/cron"
	"probable/internal/db"
	"probable/internal/handler"
	"probable/internal/insights"
	"probable/internal/leads"
	"probable/internal/logger"
	"probable/internal/notify"
	gormrepository "probable/internal/repository/gorm"
	"probable/internal/uistate"

	_ "probable/docs"
)

func main() {
	cfgPath := os.Getenv("PB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cacheredis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	defer redisClient.Close()

	store := gormrepository.New(dbConn.Gorm)

	insightsHTTP := &http.Client{Timeout: cfg.Insights.Timeout}
	insightsClient := insights.NewClient(insightsHTTP, cfg.Insights.BaseURL)

	var senders []notify.Sender
	if cfg.Leads.NotifyWebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Leads.NotifyWebhookURL, cfg.Leads.NotifyTimeout))
	}
	if cfg.Leads.TelegramToken != "" && cfg.Leads.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Leads.TelegramToken, cfg.Leads.TelegramChatID))
	}
	notifier := notify.New(senders, logger)

	recorder := analytics.NewRecorder(store, logger,
		analytics.WithFlushSize(cfg.Analytics.FlushSize),
		analytics.WithFlushInterval(cfg.Analytics.FlushInterval),
		analytics.WithDedupWindow(cfg.Analytics.DedupWindow),
	)
	defer recorder.Close()
	attribution := analytics.NewAttribution(redisClient, cfg.Analytics.SessionTTL)

	leadService := &leads.Service{
		Repo:           store,
		Notifier:       notifier,
		Recorder:       recorder,
		Logger:         logger,
		WaitlistSource: cfg.Leads.WaitlistSource,
		DemoSource:     cfg.Leads.DemoSource,
		NotifyTimeout:  cfg.Leads.NotifyTimeout,
	}
	chatStore := chat.NewStore(redisClient, insightsClient, logger, 0)
	waitlistModal := uistate.NewWaitlistModal(redisClient, recorder, cfg.Analytics.SessionTTL)
	authFlow := auth.NewFlow(cfg.Auth, redisClient, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.SessionMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Redis: redisClient}
	healthHandler.Register(engine)
	marketHandler := &handler.MarketHandler{
		Insights:    insightsClient,
		Recorder:    recorder,
		Logger:      logger,
		SearchLimit: cfg.Insights.SearchLimit,
		MarketLimit: cfg.Insights.MarketLimit,
	}
	marketHandler.Register(engine)
	leadHandler := &handler.LeadHandler{Service: leadService}
	leadHandler.Register(engine)
	analyticsHandler := &handler.AnalyticsHandler{
		Recorder:    recorder,
		Attribution: attribution,
		Logger:      logger,
	}
	analyticsHandler.Register(engine)
	chatHandler := &handler.ChatHandler{Store: chatStore, Recorder: recorder, Logger: logger}
	chatHandler.Register(engine)
	uiHandler := &handler.UIStateHandler{Waitlist: waitlistModal}
	uiHandler.Register(engine)
	authHandler := &handler.AuthHandler{Flow: authFlow, Recorder: recorder, Logger: logger}
	authHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	cronRunner := cronrunner.New(logger, ctx)
	retention := time.Duration(cfg.Analytics.RetentionDays) * 24 * time.Hour
	_, err = cronRunner.Add(cfg.Analytics.PurgeCron, func(ctx context.Context) {
		n, err := store.DeleteAnalyticsEventsBefore(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			logger.Warn("analytics purge failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("purged old analytics events", zap.Int64("count", n))
		}
	})
	if err != nil {
		logger.Warn("cron register analytics purge failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+handler.SessionHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", handler.SessionHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
