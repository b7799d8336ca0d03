package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/activity"
	"github.com/palma21/linkedin-outreach-bot/internal/ai"
	"github.com/palma21/linkedin-outreach-bot/internal/api"
	"github.com/palma21/linkedin-outreach-bot/internal/commentbot"
	"github.com/palma21/linkedin-outreach-bot/internal/config"
	"github.com/palma21/linkedin-outreach-bot/internal/dispatch"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/matcher"
	"github.com/palma21/linkedin-outreach-bot/internal/notifications"
	"github.com/palma21/linkedin-outreach-bot/internal/pacing"
	"github.com/palma21/linkedin-outreach-bot/internal/poller"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/scheduler"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting LinkedIn outreach bot")

	store, err := storage.Open(cfg.Database())
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var archive storage.Archive = storage.NewMemoryArchive()
	if cfg.StorageAccount != "" {
		azureArchive, err := storage.NewAzureArchive(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		archive = azureArchive
	} else {
		logrus.Warn("No storage account configured, job reports are kept in memory")
	}

	var notifier notifications.Notifier
	var alerter linkedapi.Alerter
	if cfg.NotificationsEnabled() {
		svc := notifications.NewService(cfg)
		notifier, alerter = svc, svc
	}

	clients := linkedapi.NewProvider(store, alerter, linkedapi.Options{
		BaseURL:      cfg.LinkedAPIBaseURL,
		APIKey:       cfg.LinkedAPIKey,
		PollInterval: cfg.LinkedAPIPollInterval,
		MaxPolls:     cfg.LinkedAPIMaxPolls,
	})

	writer := ai.NewWriter(nil)
	if cfg.AIEnabled() {
		gemini, err := ai.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModels...)
		if err != nil {
			logrus.Fatalf("Failed to initialize Gemini: %v", err)
		}
		writer = ai.NewWriter(gemini)
	} else {
		logrus.Warn("No Gemini API key configured, falling back to templates")
	}
	var classifier matcher.Classifier
	if writer.Enabled() {
		classifier = writer
	}

	var delayer pacing.Delayer = pacing.NewRandomDelayer()
	if !cfg.PacingEnabled {
		logrus.Warn("Pacing disabled, actions run back to back")
		delayer = pacing.NoDelay{}
	}

	// One gate for every write path, scheduled or manual
	gate := pacing.NewAccountGate()
	leadService := leads.NewService(store)
	limiter := ratelimit.NewLimiter(store)
	activityLog := activity.NewLogger(store)
	match := matcher.NewMatcher(store, classifier)

	dispatcherFor := func(d pacing.Delayer) *dispatch.Dispatcher {
		return dispatch.New(dispatch.Deps{
			Store:    store,
			Leads:    leadService,
			Limiter:  limiter,
			Delayer:  d,
			Gate:     gate,
			Writer:   writer,
			Activity: activityLog,
		})
	}
	dispatcher := dispatcherFor(delayer)
	manualDispatcher := dispatcherFor(pacing.NoDelay{})

	jobs := scheduler.NewJobs(scheduler.Deps{
		Store:       store,
		Clients:     clients,
		Poller:      poller.NewPoller(store, clients, match, leadService, dispatcher, delayer, activityLog),
		Engager:     commentbot.NewEngager(store, clients, limiter, writer, delayer, gate, activityLog),
		Dispatcher:  dispatcher,
		Leads:       leadService,
		Limiter:     limiter,
		Delayer:     delayer,
		Activity:    activityLog,
		Notifier:    notifier,
		Archive:     archive,
		Concurrency: cfg.AccountConcurrency,
	})

	schedulerService, err := scheduler.NewService(cfg, jobs)
	if err != nil {
		logrus.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Clients:    clients,
		Poller:     poller.NewPoller(store, clients, match, leadService, manualDispatcher, pacing.NoDelay{}, activityLog),
		Dispatcher: manualDispatcher,
		Leads:      leadService,
		Limiter:    limiter,
		Jobs:       jobs,
	})

	// Manual sends wait on the provider's workflow polling, so the write timeout is generous
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
