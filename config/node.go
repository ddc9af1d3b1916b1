package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/c360/micropipe/errors"
)

// EnvPrefix is the prefix of every node environment override (MICROPIPE_NODE_ID, ...).
const EnvPrefix = "MICROPIPE"

// NodeConfig is the configuration of one micropipe process.
type NodeConfig struct {
	NodeID          string        `json:"nodeId" yaml:"nodeId" envconfig:"node_id"`
	PluginDir       string        `json:"pluginDir,omitempty" yaml:"pluginDir,omitempty" envconfig:"plugin_dir"`
	PipelineDir     string        `json:"pipelineDir,omitempty" yaml:"pipelineDir,omitempty" envconfig:"pipeline_dir"`
	StatsInterval   time.Duration `json:"statsInterval" yaml:"statsInterval" envconfig:"stats_interval"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" envconfig:"shutdown_timeout"`
	SourceWorkers   int           `json:"sourceWorkers" yaml:"sourceWorkers" envconfig:"source_workers"`
	Metrics         MetricsConfig `json:"metrics" yaml:"metrics" envconfig:"metrics"`
	NATS            NATSConfig    `json:"nats" yaml:"nats" envconfig:"nats"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" envconfig:"enabled"`
	Port    int    `json:"port" yaml:"port" envconfig:"port"`
	Path    string `json:"path" yaml:"path" envconfig:"path"`
}

// NATSConfig defines the optional NATS connection. An empty URL disables NATS.
type NATSConfig struct {
	URL           string        `json:"url,omitempty" yaml:"url,omitempty" envconfig:"url"`
	StatsSubject  string        `json:"statsSubject,omitempty" yaml:"statsSubject,omitempty" envconfig:"stats_subject"`
	MaxReconnects int           `json:"maxReconnects,omitempty" yaml:"maxReconnects,omitempty" envconfig:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnectWait,omitempty" yaml:"reconnectWait,omitempty" envconfig:"reconnect_wait"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty" envconfig:"username"`
	Password      string        `json:"-" yaml:"password,omitempty" envconfig:"password"`
	Token         string        `json:"-" yaml:"token,omitempty" envconfig:"token"`
}

// DefaultNodeConfig returns the configuration used when no file is given.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		StatsInterval:   10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		SourceWorkers:   16,
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			StatsSubject:  "micropipe.stats",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// Validate checks the node configuration.
func (c *NodeConfig) Validate() error {
	var problems []string

	if c.NodeID != "" && !govalidator.Matches(c.NodeID, `^[A-Za-z0-9._-]+$`) {
		problems = append(problems, fmt.Sprintf("nodeId %q may only contain letters, digits, '.', '_' and '-'", c.NodeID))
	}
	if c.StatsInterval <= 0 {
		problems = append(problems, "statsInterval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdownTimeout must be positive")
	}
	if c.SourceWorkers < 1 {
		problems = append(problems, "sourceWorkers must be at least 1")
	}
	if c.Metrics.Enabled {
		if !govalidator.IsPort(strconv.Itoa(c.Metrics.Port)) {
			problems = append(problems, fmt.Sprintf("metrics.port %d is not a valid port", c.Metrics.Port))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			problems = append(problems, "metrics.path must start with '/'")
		}
	}
	if c.NATS.URL != "" {
		for _, u := range strings.Split(c.NATS.URL, ",") {
			if !govalidator.IsRequestURL(strings.TrimSpace(u)) {
				problems = append(problems, fmt.Sprintf("nats.url %q is not a valid URL", u))
			}
		}
		if (c.NATS.Username == "") != (c.NATS.Password == "") {
			problems = append(problems, "nats.username and nats.password must be set together")
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"NodeConfig", "Validate", "node configuration validation")
	}
	return nil
}

// Loader loads a NodeConfig from defaults, file layers and the environment,
// in that order of precedence (later wins).
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load merges defaults, every layer and environment overrides.
func (l *Loader) Load() (*NodeConfig, error) {
	cfg := DefaultNodeConfig()

	for _, path := range l.layers {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "read "+path)
		}
		// yaml.v3 leaves fields absent from the layer untouched and reads
		// JSON documents as well
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
				"Loader", "Load", "parse "+path)
		}
	}

	if err := envconfig.Process(l.envPrefix, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment overrides")
	}

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadNode loads the node configuration from path, or from defaults and the
// environment when path is empty.
func LoadNode(path string) (*NodeConfig, error) {
	loader := NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	return loader.Load()
}
