package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/config"
	"calltriage-server/pkg/correlation"
	http_server "calltriage-server/pkg/http"
	"calltriage-server/pkg/lifecycle"
	"calltriage-server/pkg/messaging"
	"calltriage-server/pkg/metrics"
	"calltriage-server/pkg/rum"
	"calltriage-server/pkg/transform"
	"calltriage-server/pkg/version"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	amqpClient *messaging.AMQPClient
	httpServer *http_server.Server
	wsHub      *http_server.SummaryHub

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	// Bootstrap logging before configuration is available
	logger.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	var err error
	appConfig, err = config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := appConfig.ApplyLogging(logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply logging configuration")
	}

	logger.WithField("version", version.Version).Info("Starting call triage server")

	metrics.StartMetrics(logger, appConfig.HTTP.EnableMetrics)

	service, err := buildService()
	if err != nil {
		logger.WithError(err).Fatal("Failed to build triage service")
	}

	startHTTPServer(service)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	shutdown()
}

// buildService wires the telemetry client, row builder, and optional
// incident publisher and live summary feed into the lifecycle service.
func buildService() (*lifecycle.Service, error) {
	rumClient, err := rum.NewClient(rum.Config{
		APIKey:  appConfig.Telemetry.APIKey,
		AppKey:  appConfig.Telemetry.AppKey,
		Site:    appConfig.Telemetry.Site,
		Timeout: appConfig.Telemetry.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	normalizer, err := transform.NewNormalizer(appConfig.Analysis.Timezone)
	if err != nil {
		return nil, err
	}
	builder := transform.NewRowBuilder(normalizer)

	service := lifecycle.NewService(rumClient, builder, logger)

	if appConfig.Messaging.AMQPUrl != "" {
		amqpClient = messaging.NewAMQPClient(logger, messaging.AMQPConfig{
			URL:       appConfig.Messaging.AMQPUrl,
			QueueName: appConfig.Messaging.AMQPQueueName,
			Durable:   true,
		})

		// Incident publishing is best effort, the server runs without it
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP connection failed, incident publishing disabled until reconnect")
		}
		service.WithPublisher(amqpClient)
	}

	if appConfig.HTTP.EnableWebSocket {
		wsHub = http_server.NewSummaryHub(logger)
		go wsHub.Run(rootCtx)
		service.WithBroadcaster(wsHub)
	}

	return service, nil
}

func startHTTPServer(service *lifecycle.Service) {
	httpServer = http_server.NewServer(logger, &http_server.Config{
		Port:            appConfig.HTTP.Port,
		EnableMetrics:   appConfig.HTTP.EnableMetrics,
		EnableWebSocket: appConfig.HTTP.EnableWebSocket,
		MetricsPath:     "/metrics",
		ReadTimeout:     appConfig.HTTP.ReadTimeout,
		WriteTimeout:    appConfig.HTTP.WriteTimeout,
		ShutdownTimeout: http_server.DefaultConfig().ShutdownTimeout,
	})

	httpServer.SetCorrelationMiddleware(correlation.NewHTTPMiddleware(logger, nil))

	apiHandler := http_server.NewAPIHandler(logger, service,
		appConfig.Analysis.DefaultPageLimit, appConfig.Analysis.DefaultMaxPages)
	apiHandler.RegisterHandlers(httpServer)

	if wsHub != nil {
		httpServer.SetWebSocketHub(wsHub)
	}
	if amqpClient != nil {
		httpServer.SetAMQPClient(amqpClient)
	}

	httpServer.Start()
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), http_server.DefaultConfig().ShutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("HTTP server shutdown failed")
		}
	}

	rootCancel()

	if amqpClient != nil {
		amqpClient.Disconnect()
	}

	logger.Info("Call triage server stopped")
}
