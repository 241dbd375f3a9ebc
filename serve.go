package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"runwayiq/calling"
	"runwayiq/config"
	controller "runwayiq/controllers"
	"runwayiq/importer"
	"runwayiq/integrations/elevenlabs"
	"runwayiq/integrations/openai"
	"runwayiq/integrations/sheets"
	"runwayiq/integrations/twilio"
	"runwayiq/middleware"
	"runwayiq/queue"
	"runwayiq/routes"
	"runwayiq/session"
	"runwayiq/utils"
	"runwayiq/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bootstrap(); err != nil {
				return err
			}
			defer sentry.Flush(2 * time.Second)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, &config.AppConfig, config.DB)
		},
	}
}

// server holds everything serve wires together
type server struct {
	deps    *routes.Dependencies
	workers []func(context.Context) error
	closers []func() error
}

func (rt *server) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logrus.WithError(err).Warn("Shutdown cleanup failed")
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	rt, err := wire(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer rt.close()

	app := routes.NewApp(cfg)
	routes.SetupRoutes(app, rt.deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("🚀 Server starting on port %s", cfg.ServerPort)
		return app.Listen(":" + cfg.ServerPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	for _, start := range rt.workers {
		start := start
		g.Go(func() error { return start(gctx) })
	}

	err = g.Wait()
	rt.deps.Webhooks.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logrus.Info("Server stopped")
	return nil
}

// wire builds the dependency graph; optional integrations are skipped with a log line when unconfigured
func wire(ctx context.Context, cfg *config.Config, db *gorm.DB) (*server, error) {
	rt := &server{}
	log := utils.Logger("serve")

	engine, err := newEngine(db, cfg)
	if err != nil {
		return nil, err
	}

	var store session.Store = session.NewMemoryStore()
	var limiter fiber.Storage
	if cfg.Redis.Enabled {
		redisStore := session.NewRedisStore(cfg.Redis)
		store = redisStore
		rt.closers = append(rt.closers, redisStore.Close)
		limiter = middleware.RateLimitStorage(cfg.Redis)
	}

	hub := calling.NewHub(utils.Logger("hub"))
	opts := []calling.Option{}

	var signature middleware.SignatureValidator
	if tw, err := twilio.NewClient(cfg.Twilio, cfg.PublicBaseURL); err == nil {
		opts = append(opts, calling.WithDialer(tw))
		signature = tw
	} else {
		log.WithError(err).Warn("Outbound calling disabled")
	}

	if ai, err := openai.NewClient(cfg.OpenAI); err == nil {
		opts = append(opts, calling.WithConversation(ai))
	} else {
		log.WithError(err).Warn("AI conversation disabled, calls use scripted replies")
	}

	var consumer worker.JobConsumer
	var broker *queue.RabbitMQ
	if cfg.RabbitMQConfigured() {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQ)
		if err != nil {
			rt.close()
			return nil, err
		}
		broker = rmq
		rt.closers = append(rt.closers, rmq.Close)
		opts = append(opts, calling.WithPublisher(queue.NewProducer(rmq)))
		consumer = queue.NewConsumer(rmq, utils.Logger("callqueue"))
	}

	svc := calling.NewService(db, hub, cfg.PublicBaseURL, utils.Logger("calling"), opts...)

	deps := &routes.Dependencies{
		DB:        db,
		Config:    cfg,
		Engine:    engine,
		Importer:  importer.NewImporter(db, engine, utils.Logger("import")),
		Sessions:  session.NewManager(db, store, utils.Logger("session")),
		Calling:   svc,
		Hub:       hub,
		Webhooks:  controller.NewTwilioController(svc, utils.Logger("twilio")),
		Broker:    broker,
		Signature: signature,
		Limiter:   limiter,
	}

	if sc, err := sheets.NewClient(ctx, cfg.Sheets); err == nil {
		deps.Sheets = sc
	} else {
		log.WithError(err).Warn("Google Sheets import disabled")
	}
	if voice, err := elevenlabs.NewClient(cfg.ElevenLabs); err == nil {
		deps.Voice = voice
	} else {
		log.WithError(err).Warn("Voice preview disabled")
	}
	rt.deps = deps

	callWorker := worker.NewCallQueueWorker(svc, consumer, utils.Logger("callqueue"))
	rt.workers = append(rt.workers, callWorker.Start)

	if cfg.DigestEnabled {
		mailer, err := utils.NewMailer(cfg.SMTP)
		if err != nil {
			rt.close()
			return nil, err
		}
		digest := worker.NewDigestWorker(db, mailer, cfg.DigestHour, cfg.Location(), utils.Logger("digest"))
		rt.workers = append(rt.workers, digest.Start)
	}

	return rt, nil
}
