package pipeline

import (
	"fmt"
	"strings"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/config"
	"github.com/c360/micropipe/errors"
)

// Validate checks the structure of a pipeline configuration: identifiers,
// queue references and the queue directions allowed for each component type.
// The returned error wraps the most specific sentinel: ErrConfigurationMissing,
// ErrNonUniqueIdentifier or ErrInvalidConfig.
func Validate(cfg *config.PipelineConfiguration) error {
	if cfg == nil {
		return fmt.Errorf("%w: pipeline configuration is nil", errors.ErrConfigurationMissing)
	}
	if strings.TrimSpace(cfg.PipelineID) == "" {
		return fmt.Errorf("%w: pipelineId is empty", errors.ErrConfigurationMissing)
	}
	if len(cfg.Components) == 0 {
		return fmt.Errorf("%w: pipeline %s has no components", errors.ErrConfigurationMissing, cfg.PipelineID)
	}

	queues := make(map[string]bool, len(cfg.Queues))
	for _, q := range cfg.Queues {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("%w: queue without id", errors.ErrConfigurationMissing)
		}
		if queues[q.ID] {
			return fmt.Errorf("%w: queue id %q declared twice", errors.ErrNonUniqueIdentifier, q.ID)
		}
		queues[q.ID] = true
	}

	if cfg.StatsQueueID != "" && !queues[cfg.StatsQueueID] {
		return fmt.Errorf("%w: stats queue %q is not declared", errors.ErrInvalidConfig, cfg.StatsQueueID)
	}

	components := make(map[string]bool, len(cfg.Components))
	for _, c := range cfg.Components {
		if err := validateComponent(c, queues); err != nil {
			return err
		}
		if components[c.ID] {
			return fmt.Errorf("%w: component id %q declared twice", errors.ErrNonUniqueIdentifier, c.ID)
		}
		components[c.ID] = true
	}
	return nil
}

func validateComponent(c config.ComponentConfiguration, queues map[string]bool) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: component without id", errors.ErrConfigurationMissing)
	}
	if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("%w: component %q needs name and version", errors.ErrConfigurationMissing, c.ID)
	}

	typ, ok := component.ParseType(c.Type)
	if !ok {
		return fmt.Errorf("%w: component %q has unknown type %q", errors.ErrInvalidConfig, c.ID, c.Type)
	}

	for _, set := range []struct {
		name string
		ids  []string
	}{{"fromQueues", c.FromQueues}, {"toQueues", c.ToQueues}} {
		seen := make(map[string]bool, len(set.ids))
		for _, qid := range set.ids {
			if !queues[qid] {
				return fmt.Errorf("%w: component %q references unknown queue %q in %s",
					errors.ErrInvalidConfig, c.ID, qid, set.name)
			}
			if seen[qid] {
				return fmt.Errorf("%w: component %q lists queue %q twice in %s",
					errors.ErrNonUniqueIdentifier, c.ID, qid, set.name)
			}
			seen[qid] = true
		}
	}

	reads, writes := len(c.FromQueues) > 0, len(c.ToQueues) > 0
	switch {
	case typ.ReadsQueues() && !reads:
		return fmt.Errorf("%w: %s %q must read from at least one queue", errors.ErrInvalidConfig, typ, c.ID)
	case !typ.ReadsQueues() && reads:
		return fmt.Errorf("%w: %s %q cannot read from queues", errors.ErrInvalidConfig, typ, c.ID)
	case typ.WritesQueues() && !writes:
		return fmt.Errorf("%w: %s %q must write to at least one queue", errors.ErrInvalidConfig, typ, c.ID)
	case !typ.WritesQueues() && writes:
		return fmt.Errorf("%w: %s %q cannot write to queues", errors.ErrInvalidConfig, typ, c.ID)
	}
	return nil
}
