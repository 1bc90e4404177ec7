package unifiedpush

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-unifiedpush-service/internal/api"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/fanout"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/pipeline"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/sender"
	"github.com/tinywideclouds/go-unifiedpush-service/internal/telemetry"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
	"github.com/tinywideclouds/go-unifiedpush-service/unifiedpush/config"
)

// MetricsPath is where the Prometheus collectors are exposed.
const MetricsPath = "/metrics/unifiedpush"

const retentionInterval = time.Hour

// MetricsStore records push submissions and can prune old ones.
type MetricsStore interface {
	push.MetricsRecorder
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Dependencies are the storage and channel components the service is built from.
type Dependencies struct {
	Consumer      messagepipeline.MessageConsumer
	Applications  push.ApplicationFinder
	Variants      push.VariantFinder
	Installations push.InstallationStore
	Metrics       MetricsStore
	Documents     api.DocumentService
	// Dispatchers maps each channel type to its delivery client. Types without
	// a dispatcher are accepted but their events are dropped.
	Dispatchers map[push.VariantType]push.TokenDispatcher
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.PushRequest]
	bus             *fanout.Bus
	metrics         MetricsStore
	retention       time.Duration
	logger          *slog.Logger

	stopRetention context.CancelFunc
	retentionDone sync.WaitGroup
}

// New assembles the service.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Wrapper, error) {
	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Fan-out: one delivery handler per configured channel
	handlers := make(map[push.VariantType]fanout.Handler, len(deps.Dispatchers))
	for variantType, dispatcher := range deps.Dispatchers {
		handlers[variantType] = pipeline.NewDeliveryHandler(variantType, dispatcher, deps.Installations, logger)
	}
	bus := fanout.NewBus(fanout.Config{QueueSize: cfg.Fanout.QueueSize}, handlers, logger)

	// 3. Sender dispatch
	senderService := sender.NewService(deps.Variants, deps.Metrics, bus, logger)

	// 4. Pipeline for queued sender requests
	processor := pipeline.NewProcessor(deps.Applications, senderService, logger)
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		deps.Consumer,
		pipeline.PushRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 5. REST API
	mux := baseServer.Mux()
	api.RegisterRoutes(mux, api.Handlers{
		Auth:         api.NewAuthenticator(deps.Applications, deps.Variants, deps.Installations, logger),
		Sender:       api.NewSenderAPI(senderService, logger),
		Documents:    api.NewDocumentAPI(deps.Documents, logger),
		Registration: api.NewRegistrationAPI(deps.Installations, logger),
		Wrap:         middleware.NewCorsMiddleware(cfg.CorsConfig, logger),
	})
	mux.Handle("GET "+MetricsPath, telemetry.Handler())

	var retention time.Duration
	if cfg.Postgres.RetentionDays > 0 {
		retention = time.Duration(cfg.Postgres.RetentionDays) * 24 * time.Hour
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		bus:             bus,
		metrics:         deps.Metrics,
		retention:       retention,
		logger:          logger,
	}, nil
}

// Start brings up the fan-out consumers, then the pipeline, then the HTTP server.
// It blocks until the server stops.
func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Fan-out consumers starting...")
	if err := w.bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start fan-out bus: %w", err)
	}

	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}

	if w.retention > 0 {
		retentionCtx, cancel := context.WithCancel(ctx)
		w.stopRetention = cancel
		w.retentionDone.Add(1)
		go w.pruneMetrics(retentionCtx)
	}

	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

// Shutdown stops intake first so the bus can drain what was already emitted.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.bus.Stop(ctx); err != nil {
		w.logger.Error("Fan-out bus shutdown failed.", "err", err)
		finalErr = err
	}
	if w.stopRetention != nil {
		w.stopRetention()
		w.retentionDone.Wait()
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}

func (w *Wrapper) pruneMetrics(ctx context.Context) {
	defer w.retentionDone.Done()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-w.retention)
		deleted, err := w.metrics.DeleteOlderThan(ctx, cutoff)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("Push metrics pruning failed", "err", err)
		} else if deleted > 0 {
			w.logger.Info("Pruned push metrics", "deleted", deleted, "cutoff", cutoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
