package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/micropipe/errors"
)

// Format identifies the encoding of a pipeline document.
type Format string

// Supported pipeline document formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	default:
		return "", false
	}
}

// PipelineConfiguration describes one pipeline: its queues and the
// components wired between them.
type PipelineConfiguration struct {
	PipelineID   string                   `json:"pipelineId" yaml:"pipelineId"`
	Components   []ComponentConfiguration `json:"components" yaml:"components"`
	Queues       []QueueConfiguration     `json:"queues" yaml:"queues"`
	StatsQueueID string                   `json:"statsQueueId,omitempty" yaml:"statsQueueId,omitempty"`
}

// ComponentConfiguration describes one component instance.
type ComponentConfiguration struct {
	ID         string   `json:"id" yaml:"id"`
	Type       string   `json:"type" yaml:"type"`
	Name       string   `json:"name" yaml:"name"`
	Version    string   `json:"version" yaml:"version"`
	Settings   Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
	FromQueues []string `json:"fromQueues,omitempty" yaml:"fromQueues,omitempty"`
	ToQueues   []string `json:"toQueues,omitempty" yaml:"toQueues,omitempty"`
}

// QueueConfiguration describes one queue.
type QueueConfiguration struct {
	ID       string   `json:"id" yaml:"id"`
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Settings are string key/value pairs. Scalar values of any JSON or YAML
// type are accepted and kept in their textual form.
type Settings map[string]string

// UnmarshalJSON accepts strings, numbers and booleans.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Settings, len(raw))
	for k, v := range raw {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			out[k] = str
			continue
		}
		trimmed := bytes.TrimSpace(v)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			return fmt.Errorf("setting %q must be a scalar", k)
		}
		if string(trimmed) == "null" {
			continue
		}
		out[k] = string(trimmed)
	}
	*s = out
	return nil
}

// UnmarshalYAML accepts any scalar node.
func (s *Settings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: settings must be a mapping", node.Line)
	}
	out := make(Settings, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: setting %q must be a scalar", v.Line, k.Value)
		}
		if v.Tag == "!!null" {
			continue
		}
		out[k.Value] = v.Value
	}
	*s = out
	return nil
}

// Clone returns a deep copy.
func (p *PipelineConfiguration) Clone() *PipelineConfiguration {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Queues = make([]QueueConfiguration, len(p.Queues))
	for i, q := range p.Queues {
		clone.Queues[i] = QueueConfiguration{ID: q.ID, Settings: q.Settings.clone()}
	}
	clone.Components = make([]ComponentConfiguration, len(p.Components))
	for i, c := range p.Components {
		c.Settings = c.Settings.clone()
		c.FromQueues = append([]string(nil), c.FromQueues...)
		c.ToQueues = append([]string(nil), c.ToQueues...)
		clone.Components[i] = c
	}
	return &clone
}

func (s Settings) clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ParsePipeline decodes a pipeline document.
func ParsePipeline(data []byte, format Format) (*PipelineConfiguration, error) {
	var cfg PipelineConfiguration
	var err error

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported format %q", errors.ErrInvalidConfig, format),
			"config", "ParsePipeline", "format selection")
	}

	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
			"config", "ParsePipeline", "decode pipeline")
	}
	return &cfg, nil
}

// LoadPipeline reads and decodes a pipeline file; the format follows the extension.
func LoadPipeline(path string) (*PipelineConfiguration, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown extension %q", errors.ErrInvalidConfig, filepath.Ext(path)),
			"config", "LoadPipeline", "format detection for "+path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadPipeline", "read "+path)
	}
	cfg, err := ParsePipeline(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadPipelineDir loads every .json, .yaml and .yml file in dir, sorted by
// file name. Other files are ignored. The first failing file aborts the load.
func LoadPipelineDir(dir string) ([]*PipelineConfiguration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadPipelineDir", "read "+dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	configs := make([]*PipelineConfiguration, 0, len(names))
	for _, name := range names {
		cfg, err := LoadPipeline(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Marshal encodes the configuration in the given format.
func (p *PipelineConfiguration) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(p, "", "  ")
	case FormatYAML:
		return yaml.Marshal(p)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported format %q", errors.ErrInvalidConfig, format),
			"config", "Marshal", "format selection")
	}
}
