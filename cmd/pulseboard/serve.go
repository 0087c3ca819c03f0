package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pulseboard/pulseboard/internal/alerting"
	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/channels"
	"github.com/pulseboard/pulseboard/internal/conf"
	"github.com/pulseboard/pulseboard/internal/datastore"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/notify"
	"github.com/pulseboard/pulseboard/internal/optin"
	"github.com/pulseboard/pulseboard/internal/realtime"
)

func serveCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and alerting pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(*configFile)
			if err != nil {
				return err
			}
			return runServe(settings)
		},
	}
}

func runServe(settings *conf.Settings) error {
	level := logger.ParseLevel(settings.Logging.Level)
	log := logger.NewSlogLogger(os.Stdout, level, []logger.Field{
		logger.String("service", "pulseboard"),
	})

	if dsn := settings.Telemetry.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     dsn,
			Release: "pulseboard@" + version,
		}); err != nil {
			log.Warn("sentry init failed, continuing without telemetry", logger.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	db, err := datastore.Open(&settings.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	ruleRepo := repository.NewAlertRuleRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	optInRepo := repository.NewOptInRepository(db)

	optIns := optin.NewRegistry(optInRepo, log.With(logger.String("component", "optin")))
	hub := realtime.NewHub(settings.Realtime.ClientBuffer, log.With(logger.String("component", "realtime")))
	statuses := notify.NewStatusStore(settings.Queues.StatusRetention.Std())
	templates := notify.NewTemplateStore()

	queueCfg := notify.QueueConfig{
		TickInterval: settings.Queues.TickInterval.Std(),
		MaxRetries:   settings.Queues.MaxRetries,
		BackoffBase:  settings.Queues.BackoffBase.Std(),
	}
	queueLog := log.With(logger.String("component", "notify"))

	emailClient := channels.NewEmailClient(settings.Email.APIKey, settings.Email.FromAddress, settings.Email.FromName)
	emailQueue := notify.NewQueue[notify.EmailRequest]("email", emailClient, nil, statuses, queueCfg, queueLog)

	smsClient := channels.NewSMSClient(settings.SMS.AccountSID, settings.SMS.AuthToken, settings.SMS.FromNumber)
	// The consent gate runs again at send time: a recipient who texted STOP
	// while the item sat in the queue must not receive the message.
	smsGate := func(ctx context.Context, req notify.SMSRequest) (bool, string) {
		if optIns.IsOptedIn(ctx, req.To, req.TenantID) {
			return true, ""
		}
		return false, "recipient not opted in"
	}
	smsQueue := notify.NewQueue[notify.SMSRequest]("sms", smsClient, smsGate, statuses, queueCfg, queueLog)

	dispatcher := notify.NewDispatcher(
		emailQueue,
		smsQueue,
		channels.NewWebhookClient(settings.Alerting.WebhookTimeout.Std()),
		channels.NewEscalationClient(),
		hub,
		optIns,
		templates,
		log.With(logger.String("component", "dispatcher")),
	)

	evaluator := alerting.NewEvaluator(feedbackRepo, log.With(logger.String("component", "evaluator")))
	engine := alerting.NewEngine(
		ruleRepo,
		evaluator,
		dispatcher.Dispatch,
		settings.Alerting.DefaultCooldown.Std(),
		log.With(logger.String("component", "engine")),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.RefreshRules(startCtx); err != nil {
		cancelStart()
		return fmt.Errorf("loading alert rules: %w", err)
	}
	cancelStart()
	log.Info("alert rules loaded", logger.Int("count", engine.RuleCount()))

	bus := alerting.NewEventBus()
	bus.Subscribe(engine.HandleEvent)

	emailQueue.Start()
	smsQueue.Start()
	engine.StartMaintenance(settings.Alerting.HistoryRetentionDays)

	e := echo.New()
	e.HideBanner = true
	api.New(e, api.ControllerDeps{
		Settings:     settings,
		Log:          log.With(logger.String("component", "api")),
		RuleRepo:     ruleRepo,
		FeedbackRepo: feedbackRepo,
		Engine:       engine,
		Bus:          bus,
		Hub:          hub,
		OptIns:       optIns,
		Statuses:     statuses,
		EmailQueue:   emailQueue,
		SMSQueue:     smsQueue,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", logger.String("address", settings.Server.Address))
		if err := e.Start(settings.Server.Address); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout.Std())
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown error", logger.Error(err))
		}

		// Stop intake first, then drain the pipeline behind it.
		bus.Stop()
		engine.Stop()
		emailQueue.Stop()
		smsQueue.Stop()
		hub.Shutdown()
		return nil
	})

	return g.Wait()
}
