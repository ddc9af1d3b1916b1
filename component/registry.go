package component

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/c360/micropipe/errors"
)

// Factory creates an uninitialized component.
type Factory func() Component

// Registration describes one deployable component implementation.
type Registration struct {
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Type        Type    `json:"type"`
	Description string  `json:"description"`
	Factory     Factory `json:"-"`
}

// Key returns the "name@version" identity of the registration.
func (r Registration) Key() string {
	return key(r.Name, r.Version)
}

func key(name, version string) string {
	return name + "@" + version
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPluginDir makes lookups of unknown pairs rescan dir for new plugins.
func WithPluginDir(dir string) RegistryOption {
	return func(r *Registry) {
		r.pluginDir = dir
	}
}

// Registry is the component repository. Descriptors are written rarely and
// guarded by mu; resolved lookups go through a sharded concurrent map so
// cached reads never wait on registration.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Registration
	resolved    cmap.ConcurrentMap[string, *Registration]

	pluginMu  sync.Mutex
	plugins   map[string]struct{}
	pluginDir string

	logger *slog.Logger
}

// NewRegistry creates an empty repository.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		descriptors: make(map[string]*Registration),
		resolved:    cmap.New[*Registration](),
		plugins:     make(map[string]struct{}),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a registration. A second registration of the same
// (name, version) fails with ErrNonUniqueIdentifier.
func (r *Registry) Register(reg Registration) error {
	if strings.TrimSpace(reg.Name) == "" || strings.TrimSpace(reg.Version) == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "name and version validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}
	if _, ok := ParseType(string(reg.Type)); !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := reg.Key()
	if _, exists := r.descriptors[k]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: component %s already registered", errors.ErrNonUniqueIdentifier, k),
			"Registry", "Register", "duplicate registration check")
	}

	stored := reg
	r.descriptors[k] = &stored
	r.logger.Debug("component registered", "name", reg.Name, "version", reg.Version, "type", reg.Type)
	return nil
}

// RegistrationConfig is the loosely typed form of a Registration used by
// built-ins and plugins. Type is parsed with ParseType; Version defaults to 1.0.0.
type RegistrationConfig struct {
	Name        string
	Version     string
	Type        string
	Description string
	Factory     Factory
}

// RegisterWithConfig converts cfg to a Registration and registers it.
func (r *Registry) RegisterWithConfig(cfg RegistrationConfig) error {
	typ, ok := ParseType(cfg.Type)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown component type %q", errors.ErrInvalidConfig, cfg.Type),
			"Registry", "RegisterWithConfig", "component type validation")
	}
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}
	return r.Register(Registration{
		Name:        cfg.Name,
		Version:     version,
		Type:        typ,
		Description: cfg.Description,
		Factory:     cfg.Factory,
	})
}

// Lookup returns the registration for (name, version).
func (r *Registry) Lookup(name, version string) (Registration, error) {
	reg, err := r.resolve(name, version)
	if err != nil {
		return Registration{}, err
	}
	return *reg, nil
}

// ListRegistrations returns every registration sorted by key.
func (r *Registry) ListRegistrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.descriptors))
	for _, reg := range r.descriptors {
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ResolvedCount returns how many pairs are cached.
func (r *Registry) ResolvedCount() int {
	return r.resolved.Count()
}

// NewInstance builds, identifies and initializes a component.
func (r *Registry) NewInstance(id, name, version string, settings Settings) (Component, error) {
	reg, err := r.resolve(name, version)
	if err != nil {
		return nil, err
	}

	comp, err := construct(reg)
	if err != nil {
		return nil, errors.Cause(errors.ErrComponentInstantiationFailed,
			fmt.Errorf("component %s (%s): %w", id, reg.Key(), err))
	}

	comp.SetID(id)
	if settings == nil {
		settings = Settings{}
	}
	if err := initialize(comp, settings); err != nil {
		return nil, errors.Cause(errors.ErrComponentInstantiationFailed,
			fmt.Errorf("component %s (%s): %w", id, reg.Key(), err))
	}

	return comp, nil
}

func (r *Registry) resolve(name, version string) (*Registration, error) {
	k := key(name, version)
	if reg, ok := r.resolved.Get(k); ok {
		return reg, nil
	}

	reg := r.descriptor(k)
	if reg == nil && r.pluginDir != "" {
		if _, err := r.LoadPluginDir(r.pluginDir); err != nil {
			r.logger.Warn("plugin rescan failed", "dir", r.pluginDir, "error", err)
		}
		reg = r.descriptor(k)
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownComponent, k)
	}

	// first load wins
	r.resolved.SetIfAbsent(k, reg)
	cached, _ := r.resolved.Get(k)
	return cached, nil
}

func (r *Registry) descriptor(k string) *Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[k]
}

func construct(reg *Registration) (comp Component, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("factory panic: %v", p)
		}
	}()

	comp = reg.Factory()
	if comp == nil {
		return nil, fmt.Errorf("factory returned nil")
	}
	if comp.Type() != reg.Type {
		return nil, fmt.Errorf("factory built a %s, registration declares %s", comp.Type(), reg.Type)
	}
	if !HasCapability(comp) {
		return nil, fmt.Errorf("%T does not implement the %s capability", comp, reg.Type)
	}
	return comp, nil
}

func initialize(comp Component, settings Settings) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: initialize panic: %v", errors.ErrComponentInitializationFailed, p)
		}
	}()
	return comp.Initialize(settings)
}
