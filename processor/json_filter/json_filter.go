package jsonfilter

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"

	"github.com/c360/micropipe/component"
	"github.com/c360/micropipe/errors"
	"github.com/c360/micropipe/message"
)

// Registration identity.
const (
	Name    = "json-filter"
	Version = "1.0.0"
)

// Settings keys.
const (
	SettingField   = "field"
	SettingPattern = "pattern"
	SettingInvert  = "invert"
)

// Filter forwards JSON messages whose field value fully matches a regular
// expression and drops the rest. Messages without the field are dropped;
// bodies that are not JSON fail with an error.
type Filter struct {
	component.Base

	field   string
	path    []any
	pattern *regexp.Regexp
	invert  bool

	logger  *slog.Logger
	metrics *filterMetrics

	processed atomic.Int64
	passed    atomic.Int64
	dropped   atomic.Int64
}

// NewFilter creates an uninitialized filter without metrics.
func NewFilter(logger *slog.Logger) *Filter {
	return newFilter(logger, nil)
}

func newFilter(logger *slog.Logger, metrics *filterMetrics) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{logger: logger, metrics: metrics}
}

// Register adds the json-filter factory to registry.
func Register(registry *component.Registry, deps component.Dependencies) error {
	metrics, err := newFilterMetrics(deps.MetricsRegistry)
	if err != nil {
		deps.GetLogger().Error("Failed to initialize JSON filter metrics", "error", err)
		metrics = nil
	}
	logger := deps.GetLoggerWithComponent(Name)

	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Name,
		Version:     Version,
		Type:        string(component.TypeDirectResponseOperator),
		Description: "Drops JSON messages whose field does not match a regular expression",
		Factory: func() component.Component {
			return newFilter(logger, metrics)
		},
	})
}

// Type implements component.Component.
func (f *Filter) Type() component.Type {
	return component.TypeDirectResponseOperator
}

// Initialize reads field, pattern and the optional invert flag.
func (f *Filter) Initialize(settings component.Settings) error {
	field, err := settings.Required(SettingField)
	if err != nil {
		return err
	}
	expr, err := settings.Required(SettingPattern)
	if err != nil {
		return err
	}
	pattern, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return errors.Cause(errors.ErrComponentInitializationFailed,
			fmt.Errorf("pattern %q: %w", expr, err))
	}
	invert, err := settings.Bool(SettingInvert, false)
	if err != nil {
		return err
	}

	f.field = field
	f.path = ParsePath(field)
	f.pattern = pattern
	f.invert = invert
	f.logger = f.logger.With("id", f.ID())
	return nil
}

// OnMessage returns msg when it passes the filter and nothing otherwise.
func (f *Filter) OnMessage(msg message.Message) ([]message.Message, error) {
	start := time.Now()
	f.processed.Add(1)

	value, found, err := f.lookup(msg.Body)
	if err != nil {
		f.metrics.recordError(f.ID(), "parse")
		return nil, errors.WrapInvalid(err, "JSONFilter", "OnMessage", "read field "+f.field)
	}

	matched := found && f.pattern.MatchString(value)
	if f.invert {
		matched = !matched
	}
	f.metrics.recordEvaluation(f.ID(), matched, time.Since(start))

	if !matched {
		f.dropped.Add(1)
		return nil, nil
	}
	f.passed.Add(1)
	return []message.Message{msg}, nil
}

// lookup returns the field as text. Strings are unquoted; numbers, booleans,
// objects and arrays are returned as raw JSON.
func (f *Filter) lookup(body []byte) (string, bool, error) {
	node, err := sonic.Get(body, f.path...)
	if err != nil {
		if stderrors.Is(err, ast.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}

	switch node.Type() {
	case ast.V_NULL:
		return "", false, nil
	case ast.V_STRING:
		s, err := node.String()
		return s, err == nil, err
	default:
		raw, err := node.Raw()
		return raw, err == nil, err
	}
}

// Counts returns processed, passed and dropped message totals.
func (f *Filter) Counts() (processed, passed, dropped int64) {
	return f.processed.Load(), f.passed.Load(), f.dropped.Load()
}

// Shutdown implements component.Component.
func (f *Filter) Shutdown() error {
	processed, passed, _ := f.Counts()
	f.metrics.updateMatchRate(f.ID(), passed, processed)
	f.logger.Debug("JSON filter stopped", "processed", processed, "passed", passed)
	return nil
}

// ParsePath splits a dot path into lookup keys. Segments that are
// non-negative integers index arrays.
func ParsePath(field string) []any {
	parts := strings.Split(field, ".")
	path := make([]any, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil && n >= 0 {
			path = append(path, n)
			continue
		}
		path = append(path, p)
	}
	return path
}
