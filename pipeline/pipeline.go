package pipeline

import (
	"context"
	"time"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/config"
	"github.com/c360/micropipe/environment"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/health"
	"github.com/c360/micropipe/queue"
	"github.com/c360/micropipe/stats"
)

// Pipeline is a running pipeline: its queues, components and the runtime
// environments driving them.
type Pipeline struct {
	id        string
	config    *config.PipelineConfiguration
	startedAt time.Time

	queues     map[string]queue.Queue
	queueOrder []string

	components map[string]component.Component
	compOrder  []string

	environments map[string]environment.RuntimeEnvironment
	startOrder   []string
	started      []string

	reporter *stats.Reporter
	cancel   context.CancelFunc
}

func newPipeline(cfg *config.PipelineConfiguration) *Pipeline {
	return &Pipeline{
		id:           cfg.PipelineID,
		config:       cfg,
		queues:       make(map[string]queue.Queue, len(cfg.Queues)),
		components:   make(map[string]component.Component, len(cfg.Components)),
		environments: make(map[string]environment.RuntimeEnvironment, len(cfg.Components)),
	}
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string { return p.id }

// Config returns a copy of the configuration the pipeline was built from.
func (p *Pipeline) Config() *config.PipelineConfiguration { return p.config.Clone() }

// StartedAt returns when the pipeline finished starting.
func (p *Pipeline) StartedAt() time.Time { return p.startedAt }

// Queue returns the queue with the given configuration id.
func (p *Pipeline) Queue(id string) (queue.Queue, bool) {
	q, ok := p.queues[id]
	return q, ok
}

// Component returns the component instance with the given id.
func (p *Pipeline) Component(id string) (component.Component, bool) {
	c, ok := p.components[id]
	return c, ok
}

// Environment returns the runtime environment of a component.
func (p *Pipeline) Environment(id string) (environment.RuntimeEnvironment, bool) {
	env, ok := p.environments[id]
	return env, ok
}

// StartOrder returns component ids in the order they were started.
func (p *Pipeline) StartOrder() []string {
	return append([]string(nil), p.startOrder...)
}

// Health reports every component of the pipeline.
func (p *Pipeline) Health() health.Status {
	subs := make([]health.Status, 0, len(p.startOrder))
	uptime := time.Since(p.startedAt)
	for _, id := range p.startOrder {
		env := p.environments[id]
		messages, errs := env.Statistics().Totals()
		report := health.Report{
			Running:  env.IsRunning(),
			Messages: messages,
			Errors:   errs,
			Uptime:   uptime,
		}
		if src, ok := env.(*environment.SourceRuntimeEnvironment); ok && !report.Running {
			select {
			case <-src.Done():
				report.Finished = true
			default:
			}
		}
		subs = append(subs, health.FromReport(id, report))
	}
	return health.Aggregate(p.id, subs)
}

// teardown stops everything the pipeline owns: started environments in
// reverse start order, then every remaining environment, components that
// never got an environment, the stats reporter and finally the queues.
// Every step runs regardless of earlier failures. With flush set the last
// statistics window is handed to the sinks before the reporter stops.
func (p *Pipeline) teardown(flush bool) error {
	var errs []error

	stopped := make(map[string]bool, len(p.environments))
	for i := len(p.started) - 1; i >= 0; i-- {
		id := p.started[i]
		if err := p.environments[id].Shutdown(); err != nil {
			errs = append(errs, err)
		}
		stopped[id] = true
	}
	for i := len(p.compOrder) - 1; i >= 0; i-- {
		id := p.compOrder[i]
		if stopped[id] {
			continue
		}
		if env, ok := p.environments[id]; ok {
			if err := env.Shutdown(); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := p.components[id].Shutdown(); err != nil {
			errs = append(errs, errors.Wrap(err, "Pipeline", "teardown", "shut down component "+id))
		}
	}

	if p.reporter != nil {
		p.reporter.Stop()
		if flush {
			p.reporter.Flush(context.Background())
		}
	}
	if p.cancel != nil {
		p.cancel()
	}

	for i := len(p.queueOrder) - 1; i >= 0; i-- {
		if err := p.queues[p.queueOrder[i]].Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
