package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-notifier/internal/config"
	delivery "chat-notifier/internal/delivery/http"
	"chat-notifier/internal/messaging"
	"chat-notifier/internal/metrics"
	"chat-notifier/internal/repository"
	"chat-notifier/internal/service"
	"chat-notifier/internal/trigger"
	"chat-notifier/pkg/logger"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	rabbitMaxRetries = 50
	rabbitRetryDelay = 5 * time.Second
	shutdownTimeout  = 10 * time.Second

	metricsPushInterval = 15 * time.Second

	serviceName = "chat-notifier"
)

// version задается при сборке: -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yml", "Path to the YAML config file")
	flag.Parse()

	// --- Конфигурация ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// --- Логгер ---
	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		Service:  serviceName,
		Version:  version,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)
	zapLogger.Info("Logger initialized",
		zap.String("level", cfg.Log.Level),
		zap.String("gateway", cfg.Gateway),
	)

	ctx := context.Background()

	// --- Firebase: Firestore и, при PUSH_GATEWAY=fcm, FCM ---
	app, err := newFirebaseApp(ctx, cfg.Firebase, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize Firebase app", zap.Error(err))
	}
	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		zapLogger.Fatal("Failed to create Firestore client", zap.Error(err))
	}
	defer firestoreClient.Close()
	store := repository.NewFirestoreStore(firestoreClient, zapLogger)

	gateway, err := service.NewGateway(ctx, cfg, app, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize push gateway", zap.Error(err))
	}
	zapLogger.Info("Push gateway ready", zap.String("gateway", gateway.Name()))

	// --- Метрики ---
	m := metrics.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	pusher := m.NewPusher(cfg.Metrics.PushgatewayURL, zapLogger)
	pushCtx, stopPush := context.WithCancel(ctx)
	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		pusher.Run(pushCtx, metricsPushInterval)
	}()

	// --- Триггеры ---
	registry := trigger.NewRegistry(zapLogger, m)
	dispatcher := trigger.NewDispatcher(gateway, store, service.FailureReason, zapLogger, m)
	observer := trigger.NewProfileObserver(zapLogger, m)
	if err := trigger.RegisterHandlers(registry, dispatcher, observer, cfg.Collections); err != nil {
		zapLogger.Fatal("Failed to register triggers", zap.Error(err))
	}

	// --- HTTP ---
	handler := delivery.NewHandler(registry, zapLogger, cfg.EventProcessingTimeout)
	router := delivery.NewRouter(handler, zapLogger, cfg.HTTP.GinMode)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.EventProcessingTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// --- RabbitMQ (необязательно) ---
	var (
		rabbitConn *amqp.Connection
		consumers  []*messaging.Consumer
	)
	consumerDone := make(chan struct{}, 2)
	if cfg.RabbitMQEnabled() {
		rabbitConn, err = messaging.Dial(cfg.RabbitMQ.URI, rabbitMaxRetries, rabbitRetryDelay, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		queues := map[string]string{
			trigger.NameSendChatNotification: cfg.RabbitMQ.NotificationRequestsQueue,
			trigger.NameOnUserUpdate:         cfg.RabbitMQ.UserUpdatesQueue,
		}
		for name, queue := range queues {
			processor := messaging.NewProcessor(zapLogger, registry, name, cfg.EventProcessingTimeout)
			consumer, err := messaging.NewConsumer(rabbitConn, zapLogger, queue, cfg.RabbitMQ.WorkerConcurrency, processor)
			if err != nil {
				zapLogger.Fatal("Failed to create RabbitMQ consumer", zap.String("queue", queue), zap.Error(err))
			}
			consumers = append(consumers, consumer)
			go func(c *messaging.Consumer, queue string) {
				if err := c.Start(); err != nil {
					zapLogger.Error("RabbitMQ consumer stopped with error", zap.String("queue", queue), zap.Error(err))
				}
				consumerDone <- struct{}{}
			}(consumer, queue)
		}
	} else {
		zapLogger.Info("RABBITMQ_URI is not set, RabbitMQ transport disabled")
	}

	// --- Ожидание сигнала ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		zapLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		zapLogger.Error("HTTP server failed, shutting down", zap.Error(err))
	}

	// --- Graceful shutdown ---
	for _, c := range consumers {
		c.Stop()
	}
	for range consumers {
		<-consumerDone
	}
	if rabbitConn != nil {
		if err := rabbitConn.Close(); err != nil {
			zapLogger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	stopPush()
	<-pushDone
	pusher.Delete()
	zapLogger.Info("Server exiting")
}

// newFirebaseApp uses the service account file when configured and
// Application Default Credentials otherwise.
func newFirebaseApp(ctx context.Context, cfg config.FirebaseConfig, logger *zap.Logger) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		logger.Info("FIREBASE_CREDENTIALS_PATH is not set, using Application Default Credentials")
	}

	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	return firebase.NewApp(ctx, fbConfig, opts...)
}
