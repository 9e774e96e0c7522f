package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/database"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"
	"admissions-go/internal/router"
	"admissions-go/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the auto-call scheduler",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log, db, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()
	conf := config.Get()

	if err := database.Migrate(db, log); err != nil {
		log.Error("Failed to migrate database", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := loadCatalog(conf.Catalog, log)

	attendees := repository.NewAttendeeRepository(db)
	notifications := repository.NewNotificationRepository(db)
	settings := repository.NewSettingsRepository(db)

	var forwarder *services.EventForwarder
	if conf.Nurture.EventsWebhookURL != "" {
		forwarder, err = services.NewEventForwarder(log, conf.Nurture.EventsWebhookURL, conf.Nurture.EventsAuthToken,
			conf.Nurture.WebhookWorkers, config.Timeout(conf.Telephony.TimeoutSeconds, 10*time.Second))
		if err != nil {
			log.Error("Invalid events webhook", zap.Error(err))
			return err
		}
		forwarder.Start(ctx)
		defer func() {
			stop()
			forwarder.Close()
		}()
	}

	drafter, closeDrafter, err := services.NewDrafter(ctx, conf.LLM, log)
	if err != nil {
		log.Error("Failed to initialize drafter", zap.Error(err))
		return err
	}
	defer func() { _ = closeDrafter() }()

	mailer := services.NewMailer(conf.Mail, log)
	notifier := services.NewNotifier(notifications, forwarder, log)
	orchestrator := services.NewOrchestrator(config.Get, attendees, settings, notifier, drafter, mailer,
		services.ClickToChat{}, services.NewWebhookDialer(conf.Telephony, log), log)

	services.NewScheduler(config.Get, attendees, orchestrator, log).Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := router.Setup(log, conf, router.Dependencies{
		DB:            db,
		Users:         repository.NewUserRepository(db),
		Attendees:     attendees,
		Notifications: notifications,
		Settings:      settings,
		Reports:       repository.NewReportRepository(db),
		Submissions:   services.NewSubmissionService(config.Get, attendees, settings, notifier, mailer, catalog, log),
		Orchestrator:  orchestrator,
		Notifier:      notifier,
	})

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost" + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Failed to run server", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadCatalog reads the plans file, falling back to the built-in catalog.
func loadCatalog(conf config.CatalogConfig, log *zap.Logger) *models.Catalog {
	path := conf.PlansFile
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot, path)
	}
	catalog := models.DefaultCatalog()
	if path != "" {
		loaded, err := models.LoadCatalog(path)
		if err != nil {
			log.Warn("Using built-in plan catalog", zap.String("path", path), zap.Error(err))
		} else {
			catalog = loaded
		}
	}
	if conf.DefaultPlan != "" {
		catalog.DefaultPlan = conf.DefaultPlan
	}
	log.Info("Plan catalog loaded", zap.Int("plans", len(catalog.Plans)), zap.String("default", catalog.DefaultPlan))
	return catalog
}
