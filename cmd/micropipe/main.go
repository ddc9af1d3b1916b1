// Package main implements the micropipe node: it loads a node configuration,
// registers the built-in components and plugins, instantiates every pipeline
// found in the pipeline directory and runs them until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/componentregistry"
	"github.com/c360/micropipe/config"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/natsclient"
	"github.com/c360/micropipe/pipeline"
	"github.com/c360/micropipe/pkg/retry"
	"github.com/c360/micropipe/pkg/worker"
	"github.com/c360/micropipe/stats"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "micropipe"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// run starts the node and blocks until ctx is done.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cli, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	node, err := loadNode(cli)
	if err != nil {
		return err
	}

	logger := setupLogger(stdout, cli.LogLevel, cli.LogFormat, node.NodeID)
	slog.SetDefault(logger)

	pipelines, err := loadPipelines(node.PipelineDir)
	if err != nil {
		return err
	}

	if cli.Validate {
		logger.Info("Configuration is valid", "pipelines", len(pipelines))
		return nil
	}

	logger.Info("Starting micropipe",
		"build_time", BuildTime,
		"config_path", cli.ConfigPath,
		"pipeline_dir", node.PipelineDir)

	n := &nodeRuntime{config: node, logger: logger}
	defer n.close()

	if err := n.start(ctx); err != nil {
		return err
	}
	n.instantiate(ctx, pipelines)

	<-ctx.Done()
	logger.Info("Received shutdown signal")
	return nil
}

// loadNode loads the node configuration and applies the flag overrides.
func loadNode(cli *CLIConfig) (*config.NodeConfig, error) {
	node, err := config.LoadNode(cli.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load node config: %w", err)
	}
	if cli.PipelineDir != "" {
		node.PipelineDir = cli.PipelineDir
	}
	if cli.ShutdownTimeout > 0 {
		node.ShutdownTimeout = cli.ShutdownTimeout
	}
	return node, nil
}

// loadPipelines reads and validates every pipeline file in dir. An empty dir
// yields no pipelines.
func loadPipelines(dir string) ([]*config.PipelineConfiguration, error) {
	if dir == "" {
		return nil, nil
	}
	configs, err := config.LoadPipelineDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load pipelines: %w", err)
	}
	for _, cfg := range configs {
		if err := pipeline.Validate(cfg); err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", cfg.PipelineID, err)
		}
	}
	return configs, nil
}

// nodeRuntime owns the long-lived parts of a running node.
type nodeRuntime struct {
	config *config.NodeConfig
	logger *slog.Logger

	metricsRegistry *metric.MetricsRegistry
	metricsServer   *metric.Server
	natsClient      *natsclient.Client
	pool            *worker.Pool[worker.Task]
	manager         *pipeline.Manager
}

func (n *nodeRuntime) start(ctx context.Context) error {
	n.metricsRegistry = metric.NewMetricsRegistry()
	sinks, err := n.setupStats(ctx)
	if err != nil {
		return err
	}

	registry := component.NewRegistry(
		component.WithLogger(n.logger),
		component.WithPluginDir(n.config.PluginDir),
	)
	deps := component.Dependencies{
		NATSClient:      n.natsClient,
		MetricsRegistry: n.metricsRegistry,
		Logger:          n.logger,
	}
	if err := componentregistry.Register(registry, deps); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	if n.config.PluginDir != "" {
		loaded, err := registry.LoadPluginDir(n.config.PluginDir)
		if err != nil {
			// plugins that did load stay usable
			n.logger.Error("Some plugins failed to load", "dir", n.config.PluginDir, "error", err)
		}
		n.logger.Info("Plugins loaded", "dir", n.config.PluginDir, "count", loaded)
	}
	n.logger.Info("Component registrations", "count", len(registry.ListRegistrations()))

	n.pool = worker.NewTaskPool(n.config.SourceWorkers,
		worker.WithLogger[worker.Task](n.logger),
		worker.WithMetricsRegistry[worker.Task](n.metricsRegistry, "source"),
	)
	if err := n.pool.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start source workers: %w", err)
	}

	n.manager = pipeline.NewManager(registry,
		pipeline.WithLogger(n.logger),
		pipeline.WithMetrics(n.metricsRegistry),
		pipeline.WithNodeID(n.config.NodeID),
		pipeline.WithExecutor(n.pool),
		pipeline.WithStatsInterval(n.config.StatsInterval),
		pipeline.WithStatsSinks(sinks...),
		pipeline.WithShutdownTimeout(n.config.ShutdownTimeout),
	)

	if n.config.Metrics.Enabled {
		n.metricsServer = metric.NewServer(n.config.Metrics.Port, n.config.Metrics.Path,
			n.metricsRegistry, n.manager.Health)
		if err := n.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		n.logger.Info("Metrics server listening", "addr", n.metricsServer.Address())
	}
	return nil
}

// setupStats connects NATS when configured and returns the statistics sinks.
func (n *nodeRuntime) setupStats(ctx context.Context) ([]stats.Sink, error) {
	promSink, err := stats.NewPrometheusSink(n.metricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("create statistics metrics: %w", err)
	}
	sinks := []stats.Sink{promSink}

	if n.config.NATS.URL == "" {
		return sinks, nil
	}

	client, err := natsclient.NewClient(n.config.NATS.URL,
		natsclient.WithLogger(n.logger),
		natsclient.WithName(appName+"-"+n.config.NodeID),
		natsclient.WithMaxReconnects(n.config.NATS.MaxReconnects),
		natsclient.WithReconnectWait(n.config.NATS.ReconnectWait),
		natsclient.WithMetrics(n.metricsRegistry),
		natsclient.WithCredentials(n.config.NATS.Username, n.config.NATS.Password),
		natsclient.WithToken(n.config.NATS.Token),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	n.logger.Info("Connecting to NATS", "url", n.config.NATS.URL)
	if err := client.ConnectWithRetry(ctx, retry.Quick()); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n.natsClient = client

	return append(sinks, stats.NewNATSSink(client, n.config.NATS.StatsSubject)), nil
}

// instantiate starts every pipeline. A failing pipeline is logged with its
// status and does not stop the others.
func (n *nodeRuntime) instantiate(ctx context.Context, pipelines []*config.PipelineConfiguration) {
	started := 0
	for _, cfg := range pipelines {
		id, err := n.manager.Instantiate(ctx, cfg)
		if err != nil {
			n.logger.Error("Pipeline not started", "pipeline", id, "status", pipeline.StatusOf(err), "error", err)
			continue
		}
		started++
	}
	n.logger.Info("Node started", "pipelines", started, "failed", len(pipelines)-started)
}

// close shuts everything down in reverse start order.
func (n *nodeRuntime) close() {
	timeout := n.config.ShutdownTimeout
	if n.manager != nil {
		if err := n.manager.ShutdownAll(); err != nil {
			n.logger.Error("Error shutting down pipelines", "error", err)
		}
	}
	if n.pool != nil {
		if err := n.pool.Stop(timeout); err != nil {
			n.logger.Warn("Source workers did not stop in time", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()
	if n.metricsServer != nil {
		if err := n.metricsServer.Stop(ctx); err != nil {
			n.logger.Warn("Error stopping metrics server", "error", err)
		}
	}
	if n.natsClient != nil {
		if err := n.natsClient.Close(ctx); err != nil {
			n.logger.Warn("Error closing NATS connection", "error", err)
		}
	}
	n.logger.Info("Node shutdown complete")
}
