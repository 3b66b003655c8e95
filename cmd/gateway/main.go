package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/whatsapp-gateway/internal/broker"
	"github.com/example/whatsapp-gateway/internal/config"
	"github.com/example/whatsapp-gateway/internal/events"
	"github.com/example/whatsapp-gateway/internal/listener"
	"github.com/example/whatsapp-gateway/internal/logger"
	"github.com/example/whatsapp-gateway/internal/server"
	"github.com/example/whatsapp-gateway/internal/session"
	"github.com/example/whatsapp-gateway/internal/store"
	"github.com/example/whatsapp-gateway/internal/transport"
	"github.com/example/whatsapp-gateway/internal/transport/forward"
	"github.com/example/whatsapp-gateway/internal/transport/meow"
	"github.com/example/whatsapp-gateway/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "gateway").Logger()

	stores, err := store.New(cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise store")
	}

	tenants := config.NewStaticProvider(cfg.Tenant)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	hooks, err := listener.NewWebhook(tenants, httpClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise webhook listener")
	}

	container, err := meow.NewContainer(ctx, cfg.Store.DeviceDriver, cfg.Store.DeviceDSN, cfg.Session.QRTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open device store")
	}
	factories := map[string]transport.Factory{
		config.ConnectionNative:  container.Factory(),
		config.ConnectionForward: forward.NewFactory(httpClient, log),
	}

	registry, err := session.NewRegistry(cfg.Session, session.Dependencies{
		Tenants:   tenants,
		Stores:    stores,
		Factories: factories,
		Listener:  hooks,
		HTTP:      httpClient,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise session registry")
	}

	conn, err := broker.DialWithRetry(ctx, cfg.AMQP, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer conn.Close()

	publisher, err := broker.NewPublisher(conn, cfg.AMQP, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise job publisher")
	}

	var statusPublisher *events.StatusPublisher
	var dlqPublisher *events.DLQPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := events.NewProducer(cfg.Kafka.Brokers, log.With().Str("component", "kafka").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		statusPublisher = events.NewStatusPublisher(prod, cfg.Kafka.StatusTopic, log)
		dlqPublisher = events.NewDLQPublisher(prod, cfg.Kafka.DLQTopic, log)
	} else {
		log.Info().Msg("kafka disabled, lifecycle events are dropped")
	}

	engine, err := worker.NewEngine(worker.Config{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseBackoff:       cfg.Retry.BaseBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		WorkerConcurrency: cfg.Retry.WorkerConcurrency,
	}, worker.Dependencies{
		Sender:          session.NewRegistrySender(registry),
		StatusPublisher: statusPublisher,
		DLQPublisher:    dlqPublisher,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	var consumers []*broker.Consumer
	for _, variant := range []string{config.ConnectionNative, config.ConnectionForward} {
		cons, err := broker.NewConsumer(conn, cfg.AMQP, variant, engine.HandleDelivery, log)
		if err != nil {
			log.Fatal().Err(err).Str("variant", variant).Msg("failed to initialise consumer")
		}
		if err := cons.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("variant", variant).Msg("failed to start consumer")
		}
		consumers = append(consumers, cons)
	}

	srv, err := server.New(server.Dependencies{
		Tenants:   tenants,
		Stores:    stores,
		Publisher: publisher,
		Listener:  hooks,
		Status:    statusPublisher,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise http server")
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: srv.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Int("port", cfg.App.Port).Str("exchange", cfg.AMQP.Exchange).Msg("gateway started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	for _, cons := range consumers {
		if err := cons.Close(); err != nil {
			log.Warn().Err(err).Msg("consumer close failed")
		}
	}
	registry.Shutdown(shutdownCtx)
	log.Info().Msg("gateway stopped")
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("gateway init failed")
}
