package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/irizigit/whatsapbootirizi/internal/bot"
	"github.com/irizigit/whatsapbootirizi/internal/catalog"
	"github.com/irizigit/whatsapbootirizi/internal/config"
	"github.com/irizigit/whatsapbootirizi/internal/dialog"
	"github.com/irizigit/whatsapbootirizi/internal/groups"
	"github.com/irizigit/whatsapbootirizi/internal/httpserver"
	"github.com/irizigit/whatsapbootirizi/internal/retry"
	"github.com/irizigit/whatsapbootirizi/internal/schedule"
	"github.com/irizigit/whatsapbootirizi/internal/stats"
	"github.com/irizigit/whatsapbootirizi/internal/transport"
	"github.com/irizigit/whatsapbootirizi/internal/wweb"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	httpClient := transport.NewHTTPClient(cfg.RequestTimeout)
	bridge := wweb.NewClient(cfg.Bridge, httpClient)

	metaStore, err := catalog.NewFileStore(cfg.MetadataPath)
	if err != nil {
		log.Fatalf("failed to init metadata store: %v", err)
	}
	statsStore, err := stats.NewStore(cfg.StatsPath)
	if err != nil {
		log.Fatalf("failed to init stats store: %v", err)
	}

	groupService := groups.NewService(groups.ServiceConfig{
		Client:        bridge,
		OwnerID:       cfg.OwnerID,
		AdminCacheTTL: cfg.AdminCacheTTL,
		Logger:        logger,
	})

	catalogService := catalog.NewService(catalog.ServiceConfig{
		Store:         metaStore,
		Archiver:      &imageArchiver{bridge: bridge, chatID: cfg.ImagesArchiveChat},
		Announcer:     groupService,
		Contributions: statsStore,
		DataDir:       cfg.DataDir,
		ImageCap:      cfg.ImageCap,
		Logger:        logger,
	})

	engine := dialog.NewEngine(dialog.EngineConfig{
		Store:       dialog.NewStore(),
		ImageCap:    cfg.ImageCap,
		ImageWindow: cfg.ImageWindow,
	})

	dispatcher := bot.NewDispatcher(bot.DispatcherDeps{
		Transport: bridge,
		Groups:    groupService,
		Catalog:   catalogService,
		Engine:    engine,
		Stats:     statsStore,
		Logger:    logger,
	})

	webhookHandler := wweb.NewWebhookHandler(wweb.WebhookDeps{
		Dispatcher:    dispatcher,
		Logger:        logger,
		WebhookSecret: cfg.Bridge.WebhookSecret,
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:         logger,
		WebhookHandler: webhookHandler,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Мост может подниматься дольше бота, поэтому стартовый опрос с повторами.
	go func() {
		err := retry.Do(ctx, retry.DefaultPolicy(), logger, groupService.Bootstrap)
		if err != nil {
			logger.Error("group bootstrap failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("group registry ready")
	}()

	scheduler := schedule.New(schedule.Config{
		Gate:      groupService,
		Sender:    bridge,
		CloseCron: cfg.CloseCron,
		OpenCron:  cfg.OpenCron,
		Logger:    logger,
	})
	if err := scheduler.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// imageArchiver пересылает изображения лекции в выделенный чат-архив.
type imageArchiver struct {
	bridge *wweb.HTTPClient
	chatID string
}

func (a *imageArchiver) ArchiveImage(ctx context.Context, media wweb.Media, caption string) (string, error) {
	return a.bridge.SendImage(ctx, a.chatID, media, caption)
}

func newLogger(level string) *slog.Logger {
	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
