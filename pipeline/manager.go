package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/config"
	"github.com/c360/micropipe/environment"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/health"
	"github.com/c360/micropipe/metric"
	"github.com/c360/micropipe/queue"
	"github.com/c360/micropipe/stats"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger; environments and queues derive from it.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records pipeline, environment and queue metrics in registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.metricsRegistry = registry
	}
}

// WithNodeID sets the node id stamped on statistics.
func WithNodeID(id string) Option {
	return func(m *Manager) {
		m.nodeID = id
	}
}

// WithExecutor runs sources on executor instead of private goroutines.
func WithExecutor(executor environment.Executor) Option {
	return func(m *Manager) {
		m.executor = executor
	}
}

// WithStatsInterval sets the statistics reporting interval.
func WithStatsInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.statsInterval = d
		}
	}
}

// WithStatsSinks adds sinks receiving the statistics of every pipeline.
func WithStatsSinks(sinks ...stats.Sink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithClock sets the clock used for statistics and timer flush strategies.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// WithShutdownTimeout bounds how long each environment waits for its loops.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownTimeout = d
		}
	}
}

// Manager assembles pipelines from configurations and owns their lifecycle.
type Manager struct {
	registry *component.Registry
	logger   *slog.Logger

	metricsRegistry *metric.MetricsRegistry
	metrics         *metric.Metrics
	queueMetrics    *queue.Metrics

	nodeID          string
	executor        environment.Executor
	statsInterval   time.Duration
	sinks           []stats.Sink
	clock           clock.Clock
	shutdownTimeout time.Duration

	mu        sync.Mutex
	pipelines map[string]*Pipeline
	pending   map[string]struct{}

	// failed instantiations, kept for Health
	monitor *health.Monitor
}

// NewManager creates a manager resolving components through registry.
func NewManager(registry *component.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry:        registry,
		logger:          slog.Default(),
		statsInterval:   10 * time.Second,
		clock:           clock.New(),
		shutdownTimeout: 5 * time.Second,
		pipelines:       make(map[string]*Pipeline),
		pending:         make(map[string]struct{}),
		monitor:         health.NewMonitor(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.metricsRegistry != nil {
		m.metrics = m.metricsRegistry.CoreMetrics()
		qm, err := queue.NewMetrics(m.metricsRegistry)
		if err != nil {
			m.logger.Warn("queue metrics unavailable", "error", err)
		}
		m.queueMetrics = qm
	}
	return m
}

// Instantiate validates cfg, builds its queues, components and runtime
// environments, and starts them. On any failure everything built so far is
// torn down before the error is returned; StatusOf maps the error to a Status.
// The running pipeline does not depend on ctx.
func (m *Manager) Instantiate(ctx context.Context, cfg *config.PipelineConfiguration) (string, error) {
	id, err := m.instantiate(ctx, cfg)
	status := StatusOf(err)
	if m.metrics != nil {
		m.metrics.RecordPipelineStatus(status.String())
	}

	if err != nil {
		// a duplicate id belongs to a pipeline that is running fine
		if id != "" && status != StatusNonUniquePipelineID {
			m.monitor.UpdateUnhealthy(id, fmt.Sprintf("%s: %v", status, err))
		}
		m.logger.Error("pipeline instantiation failed", "pipeline", id, "status", status, "error", err)
		return id, err
	}

	m.monitor.Remove(id)
	if m.metrics != nil {
		m.metrics.PipelinesActive.Inc()
	}
	m.logger.Info("pipeline instantiated", "pipeline", id, "status", status)
	return id, nil
}

func (m *Manager) instantiate(ctx context.Context, cfg *config.PipelineConfiguration) (string, error) {
	if err := Validate(cfg); err != nil {
		var id string
		if cfg != nil {
			id = cfg.PipelineID
		}
		return id, errors.WrapInvalid(errors.Cause(errors.ErrPipelineInstantiationFailed, err),
			"Manager", "Instantiate", "validate pipeline configuration")
	}
	cfg = cfg.Clone()
	id := cfg.PipelineID

	if err := m.reserve(id); err != nil {
		return id, errors.WrapInvalid(errors.Cause(errors.ErrPipelineInstantiationFailed, err),
			"Manager", "Instantiate", "reserve pipeline id")
	}
	defer m.release(id)

	graph := NewFlowGraph(cfg)
	m.logAnalysis(id, graph.AnalyzeConnectivity())

	p := newPipeline(cfg)
	if err := m.build(ctx, p, graph); err != nil {
		if terr := p.teardown(false); terr != nil {
			m.logger.Warn("rollback incomplete", "pipeline", id, "error", terr)
		}
		return id, errors.WrapFatal(errors.Cause(errors.ErrPipelineInstantiationFailed, err),
			"Manager", "Instantiate", "assemble pipeline "+id)
	}

	m.mu.Lock()
	m.pipelines[id] = p
	m.mu.Unlock()
	return id, nil
}

func (m *Manager) reserve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.pipelines[id]; running {
		return ErrDuplicatePipelineID
	}
	if _, building := m.pending[id]; building {
		return ErrDuplicatePipelineID
	}
	m.pending[id] = struct{}{}
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
}

func (m *Manager) logAnalysis(id string, analysis *FlowAnalysisResult) {
	for _, q := range analysis.OrphanedQueues {
		m.logger.Warn("queue is not fully connected", "pipeline", id, "queue", q.QueueID, "issue", q.Issue)
	}
	for _, n := range analysis.DisconnectedNodes {
		m.logger.Warn("component exchanges no messages", "pipeline", id, "component", n.ComponentID)
	}
}

// build runs the assembly steps in order: queues, components, environments,
// statistics, start. Partial state stays on p for teardown.
func (m *Manager) build(ctx context.Context, p *Pipeline, graph *FlowGraph) error {
	logger := m.logger.With("pipeline", p.id)

	for _, qc := range p.config.Queues {
		q, err := queue.New(qualifiedQueueID(p.id, qc.ID), qc.Settings,
			queue.WithLogger(logger), queue.WithMetrics(m.queueMetrics))
		if err != nil {
			return err
		}
		p.queues[qc.ID] = q
		p.queueOrder = append(p.queueOrder, qc.ID)
	}

	for _, cc := range p.config.Components {
		comp, err := m.registry.NewInstance(cc.ID, cc.Name, cc.Version, component.Settings(cc.Settings))
		if err != nil {
			return err
		}
		p.components[cc.ID] = comp
		p.compOrder = append(p.compOrder, cc.ID)

		if err := checkDeclaredType(cc, comp); err != nil {
			return err
		}
	}

	reporter := stats.NewReporter(m.statsInterval,
		stats.WithReporterClock(m.clock), stats.WithReporterLogger(logger))
	for _, cc := range p.config.Components {
		env, err := m.newEnvironment(p, cc, logger)
		if err != nil {
			return err
		}
		p.environments[cc.ID] = env
		reporter.AddCollector(env.Statistics())
	}

	for _, sink := range m.sinks {
		reporter.AddSink(sink)
	}
	if p.config.StatsQueueID != "" {
		reporter.AddSink(stats.NewQueueSink(p.queues[p.config.StatsQueueID].Producer()))
	}

	// detached from the caller: the pipeline outlives the request
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.reporter = reporter

	p.startOrder = graph.StartOrder()
	for _, id := range p.startOrder {
		if err := p.environments[id].Start(runCtx); err != nil {
			return errors.Cause(errors.ErrComponentInitializationFailed,
				fmt.Errorf("start %s: %w", id, err))
		}
		p.started = append(p.started, id)
	}

	reporter.Start(runCtx)
	p.startedAt = m.clock.Now()
	return nil
}

// checkDeclaredType rejects a component whose implementation does not match
// the type named in the configuration. OPERATOR accepts either operator kind.
func checkDeclaredType(cc config.ComponentConfiguration, comp component.Component) error {
	actual := comp.Type()
	if strings.EqualFold(strings.TrimSpace(cc.Type), "OPERATOR") {
		if actual.IsOperator() {
			return nil
		}
	} else if declared, _ := component.ParseType(cc.Type); declared == actual {
		return nil
	}
	return errors.Cause(errors.ErrComponentInstantiationFailed,
		fmt.Errorf("component %s is configured as %s but %s@%s is %s", cc.ID, cc.Type, cc.Name, cc.Version, actual))
}

func (m *Manager) newEnvironment(
	p *Pipeline,
	cc config.ComponentConfiguration,
	logger *slog.Logger,
) (environment.RuntimeEnvironment, error) {
	opts := []environment.Option{
		environment.WithLogger(logger),
		environment.WithPipelineID(p.id),
		environment.WithCollector(stats.NewCollector(m.nodeID, p.id, cc.ID, m.clock)),
		environment.WithShutdownTimeout(m.shutdownTimeout),
	}
	if m.metrics != nil {
		opts = append(opts, environment.WithMetrics(m.metrics))
	}

	producers := make([]queue.Producer, 0, len(cc.ToQueues))
	for _, qid := range cc.ToQueues {
		producers = append(producers, p.queues[qid].Producer())
	}
	consumers := make([]queue.Consumer, 0, len(cc.FromQueues))
	for _, qid := range cc.FromQueues {
		consumers = append(consumers, p.queues[qid].Consumer())
	}

	comp := p.components[cc.ID]
	switch comp.Type() {
	case component.TypeSource:
		var sourceOpts []environment.SourceOption
		if m.executor != nil {
			sourceOpts = append(sourceOpts, environment.WithExecutor(m.executor))
		}
		return environment.NewSourceRuntimeEnvironment(comp.(component.Source), producers, sourceOpts, opts...), nil

	case component.TypeDirectResponseOperator:
		return environment.NewDirectResponseOperatorRuntimeEnvironment(
			comp.(component.DirectResponseOperator), consumers, producers, opts...), nil

	case component.TypeDelayedResponseOperator:
		strategy, err := environment.NewDelayedResponseWaitStrategy(component.Settings(cc.Settings), m.clock)
		if err != nil {
			return nil, errors.Cause(errors.ErrComponentInitializationFailed,
				fmt.Errorf("flush strategy of %s: %w", cc.ID, err))
		}
		return environment.NewDelayedResponseOperatorRuntimeEnvironment(
			comp.(component.DelayedResponseOperator), strategy, consumers, producers, opts...), nil

	case component.TypeEmitter:
		return environment.NewEmitterRuntimeEnvironment(comp.(component.Emitter), consumers, opts...), nil

	default:
		return nil, errors.Cause(errors.ErrComponentInstantiationFailed,
			fmt.Errorf("component %s implements no runtime capability", cc.ID))
	}
}

// Shutdown stops a pipeline: environments in reverse start order, the
// statistics reporter, then the queues. Teardown is best effort; the
// collected errors are returned after every step ran.
func (m *Manager) Shutdown(pipelineID string) error {
	m.mu.Lock()
	p, ok := m.pipelines[pipelineID]
	delete(m.pipelines, pipelineID)
	m.mu.Unlock()

	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: pipeline %q is not running", errors.ErrNotStarted, pipelineID),
			"Manager", "Shutdown", "lookup pipeline")
	}

	err := p.teardown(true)
	for _, sink := range m.sinks {
		if f, ok := sink.(stats.Forgetter); ok {
			f.Forget(pipelineID)
		}
	}
	if m.metrics != nil {
		m.metrics.PipelinesActive.Dec()
	}
	if err != nil {
		m.logger.Warn("pipeline shut down with errors", "pipeline", pipelineID, "error", err)
		return errors.Wrap(err, "Manager", "Shutdown", "shut down pipeline "+pipelineID)
	}
	m.logger.Info("pipeline shut down", "pipeline", pipelineID)
	return nil
}

// ShutdownAll stops every pipeline concurrently and joins their errors.
func (m *Manager) ShutdownAll() error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, id := range m.Pipelines() {
		id := id
		g.Go(func() error {
			if err := m.Shutdown(id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Pipelines returns the ids of running pipelines, sorted.
func (m *Manager) Pipelines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pipeline returns a running pipeline.
func (m *Manager) Pipeline(id string) (*Pipeline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[id]
	return p, ok
}

// Health returns one status per running pipeline plus one per failed
// instantiation that has not been retried successfully, sorted by id.
func (m *Manager) Health() []health.Status {
	m.mu.Lock()
	running := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		running = append(running, p)
	}
	m.mu.Unlock()

	statuses := m.monitor.Snapshot()
	for _, p := range running {
		statuses = append(statuses, p.Health())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Component < statuses[j].Component })
	return statuses
}

// Healthy reports whether no pipeline is unhealthy.
func (m *Manager) Healthy() bool {
	for _, s := range m.Health() {
		if s.IsUnhealthy() {
			return false
		}
	}
	return true
}

func qualifiedQueueID(pipelineID, queueID string) string {
	return pipelineID + "/" + queueID
}
