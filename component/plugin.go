package component

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"

	"github.com/c360/micropipe/errors"
)

// PluginRegisterSymbol is the exported function every plugin must provide:
//
//	func Register(registry *component.Registry) error
const PluginRegisterSymbol = "Register"

// PluginRegisterFunc is the signature of PluginRegisterSymbol.
type PluginRegisterFunc = func(*Registry) error

// LoadPluginDir loads every *.so file in dir that was not loaded before and
// returns how many were loaded. A missing directory loads nothing. Failures
// of individual plugins are joined; the remaining plugins still load.
func (r *Registry) LoadPluginDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "Registry", "LoadPluginDir", "read plugin directory")
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".so") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	loaded := 0
	var errs []error
	for _, path := range paths {
		ok, err := r.LoadPlugin(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			loaded++
		}
	}
	return loaded, errors.Join(errs...)
}

// LoadPlugin opens one plugin and calls its Register function. It reports
// false when path was loaded before. Each plugin keeps its own handle.
func (r *Registry) LoadPlugin(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, errors.Wrap(err, "Registry", "LoadPlugin", "resolve plugin path")
	}

	r.pluginMu.Lock()
	defer r.pluginMu.Unlock()

	if _, seen := r.plugins[abs]; seen {
		return false, nil
	}
	// a failed plugin is not retried on every lookup
	r.plugins[abs] = struct{}{}

	handle, err := plugin.Open(abs)
	if err != nil {
		return false, errors.Wrap(err, "Registry", "LoadPlugin", "open "+abs)
	}

	sym, err := handle.Lookup(PluginRegisterSymbol)
	if err != nil {
		return false, errors.Wrap(err, "Registry", "LoadPlugin", "lookup Register in "+abs)
	}

	register, ok := sym.(PluginRegisterFunc)
	if !ok {
		return false, errors.WrapInvalid(
			fmt.Errorf("%s: Register has type %T", abs, sym),
			"Registry", "LoadPlugin", "plugin symbol validation")
	}

	if err := register(r); err != nil {
		return false, errors.Wrap(err, "Registry", "LoadPlugin", "register components from "+abs)
	}

	r.logger.Info("plugin loaded", "path", abs)
	return true, nil
}
