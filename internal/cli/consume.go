package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsm/churnflow/internal/dlq"
	"github.com/lsm/churnflow/internal/kafka"
	"github.com/lsm/churnflow/internal/model"
	"github.com/lsm/churnflow/internal/observability"
	"github.com/lsm/churnflow/internal/pipeline"
	"github.com/lsm/churnflow/internal/retry"
	"github.com/lsm/churnflow/internal/scoring"
	"github.com/lsm/churnflow/internal/tracing"
)

// Constructor hooks so tests can stub out the broker layer.
var (
	newRecordSource = func(cfg kafka.ConsumerConfig, logger *slog.Logger) (pipeline.RecordSource, error) {
		return kafka.NewConsumer(cfg, logger)
	}
	newPipelinePublisher = func(cluster *kafka.ClusterConfig) (pipeline.Publisher, error) {
		return kafka.NewPublisher(cluster)
	}
	pingBroker = kafka.Ping
)

// RunConsume runs the scoring pipeline in batch or continuous mode.
func RunConsume(args []string) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println(`Usage: churnflow consume (--batch | --continuous) [options]

Consumes customer events, scores each with the model artifact, and
publishes predictions to the scored topic. An offset is committed only
after its prediction is durably published.

Modes:
  --batch                 Drain all currently available events, then exit
  --continuous            Poll forever until SIGINT/SIGTERM

Options:
  --poll-interval <d>     Sleep between continuous polls (default: 1s)
  --poll-timeout <d>      Per-poll wait bound (default: 5s)
  --quiescence <d>        Batch mode: emptiness window read as end of log (default: 10s)
  --dlq                   Park permanently failed events on <input>.dlq instead of failing the run
  --metrics-addr <addr>   Serve Prometheus metrics on this address (e.g. :9090)
  --model <path>          Model artifact path (overrides config)
  --config <path>         Config file path
  --brokers <addrs>       Broker addresses, comma separated
  --log-level <level>     debug, info, warn, or error

Examples:
  churnflow consume --batch
  churnflow consume --continuous --poll-interval 2s --dlq --metrics-addr :9090`)
		return nil
	}

	cfg, logger, err := loadRuntime("consumer", args)
	if err != nil {
		return err
	}

	batch := hasFlag(args, "--batch")
	continuous := hasFlag(args, "--continuous")
	if batch == continuous {
		return errors.New("exactly one of --batch or --continuous is required")
	}

	pollInterval, err := parseDurationFlag(args, "--poll-interval", time.Second)
	if err != nil {
		return err
	}
	pollTimeout, err := parseDurationFlag(args, "--poll-timeout", 5*time.Second)
	if err != nil {
		return err
	}
	quiescence, err := parseDurationFlag(args, "--quiescence", 10*time.Second)
	if err != nil {
		return err
	}
	metricsAddr, err := parseStringFlag(args, "--metrics-addr")
	if err != nil {
		return err
	}
	modelPath, err := parseStringFlag(args, "--model")
	if err != nil {
		return err
	}
	if modelPath == "" {
		modelPath = cfg.Model
	}

	// A consumer that cannot score refuses to start.
	m, err := model.Load(modelPath)
	if err != nil {
		return fmt.Errorf("load model artifact: %w", err)
	}
	engine := scoring.NewEngine(m)
	logger.Info("model loaded", "path", modelPath, "version", engine.ModelVersion())

	// An unreachable broker refuses to start too; clients otherwise
	// connect lazily and the failure surfaces mid-run.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()
	if err := pingBroker(pingCtx, &cfg.Cluster); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	tracer, shutdownTracing, err := tracing.Initialize(tracing.GetConfig("churnflow-consumer"), logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	source, err := newRecordSource(kafka.ConsumerConfig{
		Cluster: &cfg.Cluster,
		Topic:   cfg.Topics.Input.Name,
		Group:   cfg.Group,
	}, logger)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer func() { _ = source.Close() }()

	pub, err := newPipelinePublisher(&cfg.Cluster)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer func() { _ = pub.Close() }()

	var dlqHandler *dlq.Handler
	if hasFlag(args, "--dlq") {
		dlqPub, err := newPipelinePublisher(&cfg.Cluster)
		if err != nil {
			return fmt.Errorf("create dead-letter publisher: %w", err)
		}
		dlqHandler = dlq.NewHandler(dlqPub)
		logger.Info("dead-letter parking enabled", "topic", dlqHandler.Topic(cfg.Topics.Input.Name))
	}
	if dlqHandler != nil {
		defer func() { _ = dlqHandler.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	if metricsAddr != "" {
		stopMetrics := serveMetrics(metricsAddr, reg, logger)
		defer stopMetrics()
	}

	var summary pipeline.Summary
	var runErr error
	if batch {
		quiescentPolls := int(quiescence / pollTimeout)
		if quiescentPolls < 1 {
			quiescentPolls = 1
		}
		b, err := pipeline.NewBatch(pipeline.BatchConfig{
			OutputTopic:    cfg.Topics.Scored.Name,
			PollTimeout:    pollTimeout,
			QuiescentPolls: quiescentPolls,
			Retry:          retry.DefaultPolicy(),
		}, source, engine, pub, dlqHandler, logger, metrics, tracer)
		if err != nil {
			return err
		}
		summary, runErr = b.Run(ctx)
	} else {
		c, err := pipeline.NewContinuous(pipeline.ContinuousConfig{
			OutputTopic:  cfg.Topics.Scored.Name,
			PollInterval: pollInterval,
			PollTimeout:  pollTimeout,
			Retry:        retry.DefaultPolicy(),
		}, source, engine, pub, dlqHandler, logger, metrics, tracer)
		if err != nil {
			return err
		}
		summary, runErr = c.Run(ctx)
	}

	printJSON(map[string]any{
		"topic":         cfg.Topics.Input.Name,
		"output_topic":  cfg.Topics.Scored.Name,
		"model_version": engine.ModelVersion(),
		"processed":     summary.Processed,
		"skipped":       summary.Skipped,
		"parked":        summary.Parked,
		"failed":        summary.Failed,
		"duration":      summary.Duration.String(),
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	return runErr
}

// serveMetrics exposes the registry on addr until the returned stop
// function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
